package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if cfg.SubjectPrefix != "telemetry.events" {
		t.Errorf("SubjectPrefix = %q", cfg.SubjectPrefix)
	}
	if cfg.Partitions != 4 {
		t.Errorf("Partitions = %d", cfg.Partitions)
	}
	if cfg.ConsumerGroup != "stream-processor" {
		t.Errorf("ConsumerGroup = %q", cfg.ConsumerGroup)
	}
	if cfg.HTTPAddr != ":8083" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ForwardBuffer != 256 || cfg.ForwardTimeout != 3*time.Second {
		t.Errorf("forward settings = %d/%v", cfg.ForwardBuffer, cfg.ForwardTimeout)
	}
	if cfg.SnapshotInterval != 0 {
		t.Errorf("SnapshotInterval = %v, want disabled", cfg.SnapshotInterval)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAMPULSE_NATS_URL", "nats://broker:4222")
	t.Setenv("STREAMPULSE_PARTITIONS", "8")
	t.Setenv("STREAMPULSE_FORWARD_TIMEOUT", "500ms")
	t.Setenv("STREAMPULSE_SNAPSHOT_INTERVAL", "2m")
	t.Setenv("STREAMPULSE_DATABASE_URL", "postgres://localhost/summaries")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.NATSURL != "nats://broker:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if cfg.Partitions != 8 {
		t.Errorf("Partitions = %d", cfg.Partitions)
	}
	if cfg.ForwardTimeout != 500*time.Millisecond {
		t.Errorf("ForwardTimeout = %v", cfg.ForwardTimeout)
	}
	if cfg.SnapshotInterval != 2*time.Minute {
		t.Errorf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
	if cfg.DatabaseURL != "postgres://localhost/summaries" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streampulse.toml")
	content := `
nats_url = "nats://file:4222"
partitions = 2
http_addr = ":9999"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("STREAMPULSE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.NATSURL != "nats://file:4222" || cfg.Partitions != 2 || cfg.HTTPAddr != ":9999" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	// Untouched fields keep their defaults.
	if cfg.SubjectPrefix != "telemetry.events" {
		t.Errorf("SubjectPrefix = %q", cfg.SubjectPrefix)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streampulse.toml")
	if err := os.WriteFile(path, []byte(`nats_url = "nats://file:4222"`), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("STREAMPULSE_CONFIG", path)
	t.Setenv("STREAMPULSE_NATS_URL", "nats://env:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.NATSURL != "nats://env:4222" {
		t.Errorf("NATSURL = %q, env must override the file", cfg.NATSURL)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("non-numeric partitions", func(t *testing.T) {
		t.Setenv("STREAMPULSE_PARTITIONS", "many")
		if _, err := Load(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("zero partitions", func(t *testing.T) {
		t.Setenv("STREAMPULSE_PARTITIONS", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("STREAMPULSE_FORWARD_TIMEOUT", "soon")
		if _, err := Load(); err == nil {
			t.Fatal("expected error")
		}
	})
}
