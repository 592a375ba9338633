package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"storage": {"driver": "sqlite", "path": "./agent.db", "busy_timeout": "3s"},
		"agent": {"user_id": "u1", "mode": "autonomous", "confidence_threshold": 0.65},
		"sweeper": {"enabled": true, "every": "10m", "horizon_days": 5}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./agent.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Agent.Mode != "autonomous" || cfg.Agent.ConfidenceThreshold != 0.65 {
		t.Fatalf("agent = %+v", cfg.Agent)
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Every != "10m" || cfg.Sweeper.HorizonDays != 5 {
		t.Fatalf("sweeper = %+v", cfg.Sweeper)
	}

	busy, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if busy != 3*time.Second {
		t.Fatalf("busy_timeout = %v", busy)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.yaml", `
logging:
  level: info
  console: true
storage:
  driver: memory
agent:
  user_id: u2
  mode: balanced
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Agent.UserID != "u2" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", `{"loging": {"level": "info"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", `{"logging": {"level": "info"}} {"extra": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Logging: LoggingConfig{Level: "info"},
		Agent:   AgentConfig{Mode: "balanced"},
		Sweeper: SweeperConfig{Enabled: true, Every: "15m"},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Agent:   AgentConfig{Mode: "autonomous"},
		Sweeper: SweeperConfig{Enabled: true, Every: "15m"},
	}

	sections, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"logging": true, "agent": true}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v, want logging+agent", sections)
	}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected section %q in %v", s, sections)
		}
	}

	if sections, _ := SummarizeChange(newCfg, newCfg); len(sections) != 0 {
		t.Fatalf("identical configs produced sections %v", sections)
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Agent: AgentConfig{UserID: "first"}}
	second := &Config{Agent: AgentConfig{UserID: "second"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Agent.UserID != "second" {
		t.Fatalf("got %q, want newest config to win", got.Agent.UserID)
	}
}
