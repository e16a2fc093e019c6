package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "be-board-approvals" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadValidatesStoreDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	// The rest driver needs its endpoint and key.
	t.Setenv("STORE_DRIVER", "rest")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for rest driver without STORE_URL")
	}
	t.Setenv("STORE_URL", "https://store.example.org")
	t.Setenv("STORE_API_KEY", "key")
	if _, err := Load(); err != nil {
		t.Fatalf("load rest driver: %v", err)
	}

	// The postgres driver needs a DSN.
	t.Setenv("STORE_DRIVER", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for postgres driver without POSTGRES_DSN")
	}
	t.Setenv("POSTGRES_DSN", "postgres://localhost/board")
	if _, err := Load(); err != nil {
		t.Fatalf("load postgres driver: %v", err)
	}

	t.Setenv("STORE_DRIVER", "cloud")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
