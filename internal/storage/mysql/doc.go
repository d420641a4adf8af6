// Package mysql opens the MySQL connection pool used by the batch store and
// applies the SQL migrations embedded from deploy/migrations.
package mysql
