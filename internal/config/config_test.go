package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openutr.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"devnet": {"genesis": "devnet.yaml"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Storage.BatchStore.Driver != "memory" || cfg.BatchQueue.Driver != "memory" {
		t.Fatalf("unexpected drivers %+v / %+v", cfg.Storage.BatchStore, cfg.BatchQueue)
	}
	if cfg.BatchQueue.Workers != 4 || cfg.BatchQueue.MaxRetries != 3 || cfg.BatchQueue.Buffer != 1024 {
		t.Fatalf("unexpected queue defaults %+v", cfg.BatchQueue)
	}
	if cfg.Auth.Mode != "disabled" || cfg.Auth.Store != "memory" {
		t.Fatalf("auth should default to disabled/memory, got %+v", cfg.Auth)
	}
	if cfg.Router.DiscardPolicy != "revert" || cfg.Router.RequirePauserForUnpause {
		t.Fatalf("unexpected router defaults %+v", cfg.Router)
	}
	if want := filepath.Join(filepath.Dir(path), "devnet.yaml"); cfg.Devnet.Genesis != want {
		t.Fatalf("genesis path should be resolved relative to the config: %s", cfg.Devnet.Genesis)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"store":  `{"storage": {"batch_store": {"driver": "sqlite"}}}`,
		"dsn":    `{"storage": {"batch_store": {"driver": "mysql"}}}`,
		"queue":  `{"batch_queue": {"driver": "kafka"}}`,
		"policy": `{"router": {"discard_policy": "ignore"}}`,
		"auth":   `{"auth": {"mode": "oauth"}}`,
		"secret": `{"auth": {"mode": "jwt"}}`,
		"users":  `{"auth": {"store": "ldap"}}`,
		"shared": `{"auth": {"store": "mysql"}}`,
		"json":   `{"server": `,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("期望空路径返回错误")
	}
}

func TestLoadRepositoryConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "configs", "openutr.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Router.Pauser != "owner" || len(cfg.BatchQueue.RetryCodes) != 1 {
		t.Fatalf("unexpected router/queue section %+v %+v", cfg.Router, cfg.BatchQueue)
	}
	if !strings.HasSuffix(cfg.Devnet.Genesis, filepath.Join("configs", "devnet.yaml")) {
		t.Fatalf("unexpected genesis path %s", cfg.Devnet.Genesis)
	}
	if cfg.Storage.BatchStore.ConnMaxLifetime().Seconds() != 300 {
		t.Fatalf("unexpected lifetime %s", cfg.Storage.BatchStore.ConnMaxLifetime())
	}
}
