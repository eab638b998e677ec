package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"hashsync/internal/api"
	"hashsync/internal/app"
	"hashsync/internal/logging"
)

// defaultWakeInterval is how often the daemon wakes expired snoozes.
const defaultWakeInterval = time.Minute

// Daemon serves one app.App and enforces single-instance execution.
type Daemon struct {
	app    *app.App
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	wakeInterval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon around an assembled app.
func New(a *app.App) (*Daemon, error) {
	if a == nil || a.Config == nil || a.Store == nil {
		return nil, errors.New("daemon requires an assembled app")
	}
	lockPath := filepath.Join(a.Config.LockDir(), "hashsyncd.lock")
	d := &Daemon{
		app:          a,
		logger:       logging.NewComponentLogger(a.Logger, "daemon"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		wakeInterval: defaultWakeInterval,
	}
	d.server = newAPIServer(a.Config.Paths.APIBind, a.Config.Paths.APIToken, d, a.Logger)
	return d, nil
}

// Start acquires the daemon lock, starts the API server and the snooze waker.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hashsync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	d.wg.Add(1)
	go d.wakeLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("hashsync daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.addr()),
	)
	return nil
}

// Stop stops background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("hashsync daemon stopped")
}

// Close stops the daemon and releases the app.
func (d *Daemon) Close() error {
	d.Stop()
	return d.app.Close()
}

// Addr returns the API listener address, empty before Start.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	stats, err := d.app.Store.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.app.Store.Path(),
		LockFilePath: d.lockPath,
		Adapters:     d.app.Adapters.Types(),
		Stats:        api.FromStats(stats),
	}, nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.app.Config.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.app.Notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) wakeLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.wakeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			woken, err := d.app.Alerts.WakeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.WarnWithContext(d.logger, "snooze wake failed", "snooze_wake_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "expired snoozes stay hidden until the next list"),
				)
				continue
			}
			if woken > 0 {
				d.logger.Info("woke snoozed alerts", logging.Int("count", woken))
			}
		}
	}
}
