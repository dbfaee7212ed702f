package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"file-drop/pkg/config"
	"file-drop/pkg/lock"
	"file-drop/pkg/logger"
	"file-drop/pkg/models"
	"file-drop/pkg/util"
)

// Engine is the cleanup work a run performs.
type Engine interface {
	RunExpiredSweep(ctx context.Context) (models.SweepReport, error)
	PurgeOldDeletionRecords(ctx context.Context, retentionDays int) (int64, error)
}

type Config struct {
	Schedule      string
	Timezone      string
	RunOnStart    bool
	StartupDelay  time.Duration
	RetentionDays int
	PurgeWeekday  time.Weekday
}

// ConfigFrom maps the application settings onto scheduler settings. Old
// deletion records are purged on Sundays.
func ConfigFrom(c config.Config) Config {
	return Config{
		Schedule:      c.CleanupSchedule,
		Timezone:      c.CleanupTimezone,
		RunOnStart:    c.CleanupRunOnStart,
		StartupDelay:  c.CleanupStartupDelay,
		RetentionDays: c.CleanupRetentionDays,
		PurgeWeekday:  time.Sunday,
	}
}

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// ErrAlreadyInitialized is returned by a second call to Initialize.
var ErrAlreadyInitialized = errors.New("scheduler already initialized")

// RunOutcome describes one call to RunCleanup. Skipped runs did nothing
// because another run held the manager or the cross-replica lock.
type RunOutcome struct {
	Skipped  bool               `json:"skipped"`
	Report   models.SweepReport `json:"report"`
	Purged   int64              `json:"purged"`
	Duration time.Duration      `json:"duration"`
}

// Manager runs the cleanup engine on a cron schedule and on demand, never
// more than one run at a time.
type Manager struct {
	engine Engine
	cfg    Config
	loc    *time.Location
	locker lock.Locker
	now    func() time.Time

	mu         sync.Mutex
	state      State
	closed     bool
	stats      models.RunStatistics
	cron       *cron.Cron
	entryID    cron.EntryID
	startTimer *time.Timer
	wg         sync.WaitGroup
}

type Option func(*Manager)

func WithLocker(l lock.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager validates the schedule and timezone. No timer runs until Initialize.
func NewManager(engine Engine, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 30
	}

	m := &Manager{
		engine: engine,
		cfg:    cfg,
		loc:    loc,
		locker: lock.Noop{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Initialize registers the recurring timer and, if configured, a single run
// after the startup delay.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil || m.closed {
		return ErrAlreadyInitialized
	}

	c := cron.New(
		cron.WithLocation(m.loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	id, err := c.AddFunc(m.cfg.Schedule, func() {
		if _, err := m.RunCleanup(context.Background()); err != nil {
			logger.Sugar.Errorw("scheduled cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register cleanup schedule: %w", err)
	}
	m.cron = c
	m.entryID = id
	c.Start()

	logger.Sugar.Infow("cleanup scheduler started",
		"schedule", m.cfg.Schedule, "timezone", m.loc.String(), "runOnStart", m.cfg.RunOnStart)

	if m.cfg.RunOnStart {
		m.startTimer = time.AfterFunc(m.cfg.StartupDelay, func() {
			logger.Sugar.Infow("running startup cleanup")
			if _, err := m.RunCleanup(context.Background()); err != nil {
				logger.Sugar.Errorw("startup cleanup failed", "error", err)
			}
		})
	}
	return nil
}

func (m *Manager) tryStart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Running || m.closed {
		return false
	}
	m.state = Running
	m.wg.Add(1)
	return true
}

func (m *Manager) abort() {
	m.mu.Lock()
	m.state = Idle
	m.mu.Unlock()
	m.wg.Done()
}

func (m *Manager) finish(deleted int, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalRuns++
	if runErr == nil {
		m.stats.SuccessfulRuns++
	} else {
		m.stats.FailedRuns++
	}
	m.stats.TotalFilesDeleted += int64(deleted)
	t := m.now()
	m.stats.LastRunAt = &t
	m.state = Idle
}

// RunCleanup performs one sweep, plus the weekly purge on the purge weekday.
// Overlapping calls return a skipped outcome without touching the counters.
func (m *Manager) RunCleanup(ctx context.Context) (outcome RunOutcome, err error) {
	if !m.tryStart() {
		logger.Sugar.Infow("cleanup already running, skipping")
		return RunOutcome{Skipped: true}, nil
	}

	release, ok, lockErr := m.locker.Acquire(ctx)
	switch {
	case lockErr != nil:
		logger.Sugar.Warnw("cleanup lock unavailable, running without it", "error", lockErr)
		release = func() {}
	case !ok:
		logger.Sugar.Infow("cleanup running on another instance, skipping")
		m.abort()
		return RunOutcome{Skipped: true}, nil
	}
	defer m.wg.Done()
	defer release()

	started := m.now()
	logger.Sugar.Infow("cleanup run started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup run panicked: %v", r)
			logger.Sugar.Errorw("cleanup run panicked", "panic", r)
		}
		outcome.Duration = m.now().Sub(started)
		m.finish(outcome.Report.Succeeded, err)
		logger.Sugar.Infow("cleanup run finished",
			"success", err == nil,
			"total", outcome.Report.Total,
			"succeeded", outcome.Report.Succeeded,
			"failed", outcome.Report.Failed,
			"purged", outcome.Purged,
			"duration", outcome.Duration)
	}()

	outcome.Report, err = m.engine.RunExpiredSweep(ctx)
	if err != nil {
		return outcome, err
	}

	if m.now().In(m.loc).Weekday() == m.cfg.PurgeWeekday {
		n, perr := m.engine.PurgeOldDeletionRecords(ctx, m.cfg.RetentionDays)
		if perr != nil {
			logger.Sugar.Warnw("weekly purge failed", "error", perr)
		} else {
			outcome.Purged = n
		}
	}
	return outcome, nil
}

// TriggerManualCleanup runs one pass on behalf of an operator.
func (m *Manager) TriggerManualCleanup(ctx context.Context) (RunOutcome, error) {
	logger.Sugar.Infow("manual cleanup triggered")
	return m.RunCleanup(ctx)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetManagerStats returns a consistent copy of the run counters.
func (m *Manager) GetManagerStats() models.ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := models.ManagerStats{
		RunStatistics:      m.stats,
		IsCurrentlyRunning: m.state == Running,
		SuccessRate:        util.SuccessRate(m.stats.SuccessfulRuns, m.stats.TotalRuns),
	}
	if m.stats.LastRunAt != nil {
		t := *m.stats.LastRunAt
		stats.LastRunAt = &t
	}
	if m.cron != nil {
		if next := m.cron.Entry(m.entryID).Next; !next.IsZero() {
			stats.NextRunAt = &next
		}
	}
	return stats
}

// Shutdown stops the timers and waits for an in-flight run to finish on its
// own, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	c, timer, running := m.cron, m.startTimer, m.state == Running
	m.cron = nil
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if c != nil {
		c.Stop()
	}
	if running {
		logger.Sugar.Warnw("cleanup run in progress during shutdown, waiting for it to finish")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Sugar.Infow("cleanup scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for cleanup run: %w", ctx.Err())
	}
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Sugar.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
