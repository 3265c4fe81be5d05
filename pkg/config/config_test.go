package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("Server.WriteTimeout = %v, want 0", cfg.Server.WriteTimeout)
	}
	if !cfg.Runner.Exclusive {
		t.Error("Runner.Exclusive should default to true")
	}
	if cfg.Runner.CompleteHold != 3*time.Second {
		t.Errorf("Runner.CompleteHold = %v, want 3s", cfg.Runner.CompleteHold)
	}
	if cfg.Runner.Command != "uv run python -u market_update_graph.py" {
		t.Errorf("Runner.Command = %q", cfg.Runner.Command)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Redis.Enabled || cfg.Kafka.Enabled || cfg.ClickHouse.Enabled {
		t.Error("optional backends should be disabled by default")
	}
}

func TestLoadExplicitZeroValuesWin(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
runner:
  exclusive: false
  complete_hold: 0s
metrics:
  enabled: false
server:
  cors: false
`))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Runner.Exclusive {
		t.Error("Runner.Exclusive = true, want false from file")
	}
	if cfg.Runner.CompleteHold != 0 {
		t.Errorf("Runner.CompleteHold = %v, want 0", cfg.Runner.CompleteHold)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false from file")
	}
	if cfg.Server.CORS {
		t.Error("Server.CORS = true, want false from file")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad log level",
			content: "logging:\n  level: verbose\n",
			wantErr: "Level",
		},
		{
			name:    "kafka enabled without brokers",
			content: "kafka:\n  enabled: true\n",
			wantErr: "Brokers",
		},
		{
			name:    "unterminated quote in command",
			content: "runner:\n  command: \"python 'script.py\"\n",
			wantErr: "runner.command",
		},
		{
			name:    "port out of range",
			content: "server:\n  port: 70000\n",
			wantErr: "Port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("PATTAS_DB_PATH", "/tmp/pattas.db")
	t.Setenv("PATTAS_RUNNER_COMMAND", "sh -c 'echo hi'")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, "server:\n  port: 3000\n"))
	if err != nil {
		t.Fatalf("LoadWithEnv() returned error: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Storage.DatabasePath != "/tmp/pattas.db" {
		t.Errorf("Storage.DatabasePath = %q", cfg.Storage.DatabasePath)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka = enabled:%v brokers:%v", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	}

	args, err := cfg.CommandArgs()
	if err != nil {
		t.Fatalf("CommandArgs() returned error: %v", err)
	}
	want := []string{"sh", "-c", "echo hi"}
	if strings.Join(args, "|") != strings.Join(want, "|") {
		t.Errorf("CommandArgs() = %q, want %q", args, want)
	}
}

func TestRunnerEnvIsSorted(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
runner:
  env:
    ZED: "1"
    ALPHA: "2"
`))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	got := cfg.RunnerEnv()
	if len(got) != 2 || got[0] != "ALPHA=2" || got[1] != "ZED=1" {
		t.Errorf("RunnerEnv() = %v", got)
	}
}

func TestSampleConfigKeysAreAllRead(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		t.Fatalf("sample config has keys no field reads: %v", err)
	}
	if c.ClickHouse.DialTimeout != 5*time.Second || c.ClickHouse.ReadTimeout != 10*time.Second {
		t.Errorf("clickhouse timeouts = %v/%v", c.ClickHouse.DialTimeout, c.ClickHouse.ReadTimeout)
	}
}
