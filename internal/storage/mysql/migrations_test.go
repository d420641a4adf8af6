package mysql

import (
	"context"
	"database/sql/driver"
	"testing"
	"testing/fstest"

	"OpenUTR/internal/storage/mysql/mysqltest"
)

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`

func TestMigrateAppliesPendingFilesInOrder(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"0002_index.sql":  {Data: []byte("CREATE INDEX idx ON batches (caller);")},
		"0001_create.sql": {Data: []byte("CREATE TABLE batches (id INT); ALTER TABLE batches ADD COLUMN caller CHAR(42);")},
		"README.md":       {Data: []byte("ignored")},
	}
	db, drv := mysqltest.Open(t,
		mysqltest.Exec(createMigrationsTable, mysqltest.Result{}),
		mysqltest.Query(`SELECT version FROM schema_migrations`, mysqltest.Rows{Columns: []string{"version"}}),
		mysqltest.Begin(),
		mysqltest.Exec("CREATE TABLE batches (id INT)", mysqltest.Result{}),
		mysqltest.Exec("ALTER TABLE batches ADD COLUMN caller CHAR(42)", mysqltest.Result{}),
		mysqltest.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mysqltest.Result{Affected: 1}),
		mysqltest.Commit(),
		mysqltest.Begin(),
		mysqltest.Exec("CREATE INDEX idx ON batches (caller)", mysqltest.Result{}),
		mysqltest.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mysqltest.Result{Affected: 1}),
		mysqltest.Commit(),
	)

	if err := migrate(context.Background(), db, files); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
	drv.AssertConsumed(t)
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"0001_create.sql": {Data: []byte("CREATE TABLE batches (id INT);")},
	}
	db, drv := mysqltest.Open(t,
		mysqltest.Exec(createMigrationsTable, mysqltest.Result{}),
		mysqltest.Query(`SELECT version FROM schema_migrations`, mysqltest.Rows{
			Columns: []string{"version"},
			Values:  [][]driver.Value{{"0001"}},
		}),
	)
	if err := migrate(context.Background(), db, files); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
	drv.AssertConsumed(t)
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles(embeddedMigrations)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(files) < 2 || files[0].version != "0001" {
		t.Fatalf("unexpected migrations: %+v", files)
	}
	if len(files[1].statements) != 2 {
		t.Fatalf("index migration should hold 2 statements, got %d", len(files[1].statements))
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("期望空 DSN 报错")
	}
}
