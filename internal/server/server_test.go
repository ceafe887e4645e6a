package server

import (
	"testing"

	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/store"
)

func TestNewServerValidation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Fatal("nil config was accepted")
	}
	if _, err := New(testConfig(), nil, nil, nil); err == nil {
		t.Fatal("nil engine was accepted")
	}
}

func TestServerStartStop(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := testConfig()
	cfg.Server.Port = 0 // ephemeral port
	eng := engine.New(cfg, st, zap.NewNop())
	srv, err := New(cfg, eng, st, zap.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !srv.IsRunning() {
		t.Fatal("server not reported running after Start")
	}
	if err := srv.Start(); err == nil {
		t.Fatal("second Start did not fail")
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if srv.IsRunning() {
		t.Fatal("server reported running after Stop")
	}
	if err := srv.Stop(); err == nil {
		t.Fatal("second Stop did not fail")
	}
}
