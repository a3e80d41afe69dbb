package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copilot.yaml")
	yml := `
llm:
  model: llama3
  timeout: 30s
store:
  driver: postgres
  dsn: postgres://localhost/northwind
retrieval:
  top_k: 5
agent:
  require_rows: [sql]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COPILOT_TOP_K", "7")
	t.Setenv("COPILOT_STORE_TABLES", "Orders, Products,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.LLM.Model != "llama3" {
		t.Errorf("model = %q, want llama3", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.LLM.Timeout)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("top_k = %d, env should win over file", cfg.Retrieval.TopK)
	}
	if len(cfg.Store.Tables) != 2 || cfg.Store.Tables[1] != "Products" {
		t.Errorf("tables = %v", cfg.Store.Tables)
	}
	if len(cfg.Agent.RequireRows) != 1 || cfg.Agent.RequireRows[0] != "sql" {
		t.Errorf("require_rows = %v", cfg.Agent.RequireRows)
	}
	if cfg.Agent.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want default 2", cfg.Agent.MaxRetries)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "COPILOT_STORE_DRIVER", "mysql"},
		{"unknown backend", "COPILOT_RETRIEVER", "elastic"},
		{"bad int", "COPILOT_TOP_K", "three"},
		{"zero top k", "COPILOT_TOP_K", "0"},
		{"unknown route", "COPILOT_REQUIRE_ROWS", "sql,graph"},
		{"bad duration", "OLLAMA_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(""); err == nil {
				t.Fatalf("Load() with %s=%q should fail", tt.key, tt.val)
			}
		})
	}
}

func TestCalendarNeedsToken(t *testing.T) {
	cfg := Default()
	cfg.Calendar.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for calendar without token")
	}
	cfg.Calendar.RefreshToken = "r"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}
