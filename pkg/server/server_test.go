package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitflood/bitflood/internal/config"
)

func TestStartReturnsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	raw := `{"ui_port": "0"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	if err := config.SetConfigPath(dir); err != nil {
		t.Fatal(err)
	}
	config.Reload()

	srv := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after cancel, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
