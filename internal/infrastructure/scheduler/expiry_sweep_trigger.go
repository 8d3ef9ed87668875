// Package scheduler runs the ledger's background jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	appinventory "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Sweeper is the expiry operation the trigger drives
type Sweeper interface {
	Sweep(ctx context.Context, today time.Time) (*appinventory.SweepResult, error)
}

// ExpirySweepTriggerConfig holds configuration for the sweep trigger
type ExpirySweepTriggerConfig struct {
	// CheckInterval is how often the sweep runs
	CheckInterval time.Duration
	// RunOnStart sweeps once immediately after Start
	RunOnStart bool
	// Timeout bounds a single sweep; zero means CheckInterval
	Timeout time.Duration
}

// DefaultExpirySweepTriggerConfig returns an hourly sweep that also runs at startup
func DefaultExpirySweepTriggerConfig() ExpirySweepTriggerConfig {
	return ExpirySweepTriggerConfig{
		CheckInterval: time.Hour,
		RunOnStart:    true,
	}
}

// ExpirySweepTrigger periodically retires lots past their expiry date
type ExpirySweepTrigger struct {
	config  ExpirySweepTriggerConfig
	sweeper Sweeper
	logger  *zap.Logger
	now     func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  sync.Mutex
	last      *appinventory.SweepResult
}

// NewExpirySweepTrigger creates a new trigger
func NewExpirySweepTrigger(config ExpirySweepTriggerConfig, sweeper Sweeper, logger *zap.Logger) (*ExpirySweepTrigger, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("%w: sweeper is required", ErrInvalidConfig)
	}
	if config.CheckInterval <= 0 {
		return nil, fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	if config.Timeout <= 0 {
		config.Timeout = config.CheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweepTrigger{
		config:  config,
		sweeper: sweeper,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (t *ExpirySweepTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Expiry sweep trigger started",
		zap.Duration("check_interval", t.config.CheckInterval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep, bounded by ctx
func (t *ExpirySweepTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Expiry sweep trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ExpirySweepTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.runScheduled(ctx)
	}

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runScheduled(ctx)
		}
	}
}

func (t *ExpirySweepTrigger) runScheduled(ctx context.Context) {
	if !t.sweeping.TryLock() {
		t.logger.Warn("Skipping scheduled expiry sweep, previous sweep still running")
		return
	}
	defer t.sweeping.Unlock()

	if _, err := t.sweep(ctx, "schedule"); err != nil {
		t.logger.Error("Scheduled expiry sweep failed", zap.Error(err))
	}
}

// TriggerNow runs a sweep immediately. It fails with ErrSweepInProgress
// rather than queueing behind a running sweep.
func (t *ExpirySweepTrigger) TriggerNow(ctx context.Context) (*appinventory.SweepResult, error) {
	if !t.sweeping.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer t.sweeping.Unlock()
	return t.sweep(ctx, "manual")
}

// LastResult returns the outcome of the most recent successful sweep, or nil
func (t *ExpirySweepTrigger) LastResult() *appinventory.SweepResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *ExpirySweepTrigger) sweep(ctx context.Context, trigger string) (*appinventory.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	ctx, span := telemetry.StartServiceSpan(ctx, "scheduler", "expiry_sweep",
		telemetry.WithAttribute("trigger", trigger),
	)
	defer span.End()

	var (
		result *appinventory.SweepResult
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("expiry_sweep", map[string]string{"trigger": trigger}),
		func(ctx context.Context) {
			result, err = t.sweeper.Sweep(ctx, t.now())
		})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		"candidates", result.Candidates,
		"expired", result.Expired,
		"failed", result.Failed,
	)
	t.mu.Lock()
	t.last = result
	t.mu.Unlock()
	return result, nil
}
