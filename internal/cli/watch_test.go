package cli

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestWatchCommand_StopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	watchDir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runCLIWithContext(ctx, t, "watch", "--dir", watchDir, "--config", cfgPath)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after context cancellation")
	}
}

func TestWatchCommand_RequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	err := runCLIWithContext(context.Background(), t, "watch", "--config", cfgPath)
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	if !strings.Contains(err.Error(), "watch.directory is required") {
		t.Errorf("unexpected error: %v", err)
	}
}
