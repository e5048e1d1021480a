package config

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestLoader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "logging:\n  level: info\n")

	changes := make(chan Config, 4)
	w, err := NewLoader(WithFiles(path), WithEnvPrefix("")).Watch(context.Background(),
		func(c Config) {
			select {
			case changes <- c:
			default:
			}
		},
		func(err error) { t.Logf("watch error: %v", err) },
	)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	select {
	case c := <-changes:
		if c.Logging.Level != "info" {
			t.Fatalf("initial level = %q, want info", c.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial configuration")
	}

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Logging.Level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("configuration not reloaded")
		}
	}
}

func TestLoader_WatchReportsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "logging:\n  level: info\n")

	errs := make(chan error, 4)
	w, err := NewLoader(WithFiles(path), WithEnvPrefix("")).Watch(context.Background(),
		func(Config) {},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("watch error = %v, want ErrInvalidConfig", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("invalid reload not reported")
	}
}

func TestLoader_WatchWithoutFiles(t *testing.T) {
	_, err := NewLoader().Watch(context.Background(), func(Config) {}, nil)
	if !errors.Is(err, ErrNothingToWatch) {
		t.Fatalf("Watch() error = %v, want ErrNothingToWatch", err)
	}
}

func TestLoader_WatchRequiresCallback(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.yaml", "logging:\n  level: info\n")
	if _, err := NewLoader(WithFiles(path)).Watch(context.Background(), nil, nil); err == nil {
		t.Fatal("Watch() error = nil, want error")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.yaml", "logging:\n  level: info\n")
	w, err := NewLoader(WithFiles(path), WithEnvPrefix("")).Watch(context.Background(), func(Config) {}, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.Stop()
	w.Stop()
	var nilWatcher *Watcher
	nilWatcher.Stop()
}
