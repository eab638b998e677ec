package daemon_test

import (
	"context"
	"net/http"
	"testing"

	"hashsync/internal/app"
	"hashsync/internal/daemon"
	"hashsync/internal/logging"
	"hashsync/internal/testsupport"
)

func newDaemon(t *testing.T, a *app.App) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(a)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a, err := app.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	d := newDaemon(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}

	resp, err := http.Get("http://" + d.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := app.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	second, err := app.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	d1 := newDaemon(t, first)
	d2 := newDaemon(t, second)

	ctx := context.Background()
	if err := d1.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := d2.Start(ctx); err == nil {
		t.Fatal("expected second daemon to fail acquiring the lock")
	}
	d1.Stop()
	if err := d2.Start(ctx); err != nil {
		t.Fatalf("expected lock to be free after Stop: %v", err)
	}
}
