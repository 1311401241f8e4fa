package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"veriflow/internal/api"
	"veriflow/internal/backoff"
	"veriflow/internal/config"
	"veriflow/internal/logging"
	"veriflow/internal/notifications"
	"veriflow/internal/progress"
	"veriflow/internal/registry"
	"veriflow/internal/services/docgen"
	"veriflow/internal/services/sheerid"
	"veriflow/internal/store"
	"veriflow/internal/task"
	"veriflow/internal/workflow"
)

// Daemon wires the verification engine together and enforces single-instance
// execution. It owns the outcome store, the in-memory registry, the workflow
// runner, and the HTTP API surface.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	logHub   *logging.StreamHub
	store    *store.Store
	hub      *progress.Hub
	registry *registry.Registry
	runner   *workflow.Runner
	service  *api.Service
	profiles map[string]*workflow.Definition
	notifier notifications.Service
	server   *apiServer
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StorePath    string
	LockFilePath string
	ActiveTasks  int
	Profiles     []string
}

// New constructs a daemon with fully initialized dependencies. The log hub is
// optional; when present the /api/logs endpoint serves live log events.
func New(cfg *config.Config, logger *slog.Logger, logHub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	profiles, err := workflow.LoadProfiles(cfg.Paths.ProfileDir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	hub := progress.NewHub()
	reg := registry.New(hub)
	notifier := notifications.NewService(cfg)
	client := sheerid.NewClient(cfg, nil)

	var documents workflow.DocumentProvider
	if cfg.DocGen.Enabled {
		documents = docgen.NewClient(cfg)
	}

	sink := newOutcomeSink(st, logger)
	runner, err := workflow.NewRunner(workflow.RunnerOptions{
		Registry:    reg,
		Client:      client,
		Documents:   documents,
		Outcomes:    sink,
		Notifier:    notifier,
		Strategy:    retryStrategy(cfg),
		MaxAttempts: cfg.Workflow.MaxAttempts,
		StepTimeout: time.Duration(cfg.Workflow.StepTimeoutSeconds) * time.Second,
		Logger:      logger.With(logging.String(logging.FieldComponent, "runner")),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build runner: %w", err)
	}

	svc, err := api.NewService(api.ServiceOptions{
		Registry: reg,
		Runner:   runner,
		Hub:      hub,
		Profiles: profiles,
		Subjects: st,
		Outcomes: st,
		Binder:   sink,
		Logger:   logger.With(logging.String(logging.FieldComponent, "api")),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build api service: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "veriflowd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		logHub:   logHub,
		store:    st,
		hub:      hub,
		registry: reg,
		runner:   runner,
		service:  svc,
		profiles: profiles,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "veriflow.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	d.server = server
	return d, nil
}

func retryStrategy(cfg *config.Config) backoff.Strategy {
	initial := time.Duration(cfg.Workflow.RetryInitialSeconds) * time.Second
	maxDelay := time.Duration(cfg.Workflow.RetryMaxSeconds) * time.Second
	if initial <= 0 || maxDelay <= 0 {
		return backoff.DefaultStrategy()
	}
	return backoff.NewExponentialWithJitter(initial, maxDelay)
}

// Start acquires the daemon lock and brings up the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another veriflow daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.server != nil {
		if err := d.server.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("veriflow daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("profiles", len(d.profiles)),
	)
	return nil
}

// Stop cancels in-flight tasks, shuts down the API server, and releases the
// daemon lock. In-flight tasks settle as cancelled with the daemon-stop
// reason before Stop returns.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runner.Stop()
	if d.server != nil {
		d.server.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("veriflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service exposes the API service for handlers and tests.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// LogStream exposes the live log hub, or nil when not configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the bound API listener address, or "" before Start.
func (d *Daemon) APIAddr() string {
	if d.server == nil {
		return ""
	}
	return d.server.address()
}

// TestNotification sends a test push through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	active := d.registry.List(registry.Filter{
		Statuses: []task.Status{task.StatusPending, task.StatusRunning},
	})
	names := make([]string, 0, len(d.profiles))
	for name := range d.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StorePath:    d.store.Path(),
		LockFilePath: d.lockPath,
		ActiveTasks:  len(active),
		Profiles:     names,
	}
}
