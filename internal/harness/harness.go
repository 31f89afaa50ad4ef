// Package harness drives the workload loop: per-iteration scheduling,
// result recording, artifact purging, and ordered shutdown.
package harness

import (
	"context"
	"log/slog"
	"time"

	"github.com/whhaicheng/fsload/internal/config"
	"github.com/whhaicheng/fsload/internal/domain/workload"
	"github.com/whhaicheng/fsload/internal/sink"
	"github.com/whhaicheng/fsload/internal/workspace"
)

// Runner executes a single workload definition and reports the measured
// duration in seconds.
type Runner interface {
	Execute(ctx context.Context, def *workload.Definition) (float64, error)
}

// SetupEnsurer runs one-time setup for definitions that require it.
type SetupEnsurer interface {
	EnsureSetup(ctx context.Context, def *workload.Definition) error
}

// Harness owns the execution loop. Construct with New, drive with Run, and
// finish with Shutdown.
type Harness struct {
	cfg     *config.Config
	ws      *workspace.Manager
	runner  Runner
	tracker SetupEnsurer
	sink    sink.Sink
}

// New wires a harness from its collaborators.
func New(cfg *config.Config, ws *workspace.Manager, runner Runner, tracker SetupEnsurer, s sink.Sink) *Harness {
	return &Harness{cfg: cfg, ws: ws, runner: runner, tracker: tracker, sink: s}
}

// Run executes iterations until the context is cancelled. Workload failures
// are recorded and never stop the loop; only cancellation ends it.
func (h *Harness) Run(ctx context.Context) error {
	interval := h.cfg.Interval()
	slog.Info("harness started",
		slog.String("setup_id", h.cfg.SetupID),
		slog.Int("tests", len(h.cfg.EnabledTests)),
		slog.Duration("interval", interval))

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		h.runIteration(ctx, iteration)
		elapsed := time.Since(start)

		if ctx.Err() != nil {
			return nil
		}

		wait := interval - elapsed
		if wait <= 0 {
			if interval > 0 {
				slog.Warn("iteration overran interval",
					slog.Int("iteration", iteration),
					slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
					slog.Duration("interval", interval))
			}
			continue
		}
		slog.Debug("iteration complete",
			slog.Int("iteration", iteration),
			slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
			slog.Duration("wait", wait.Round(time.Millisecond)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runIteration executes every enabled test once, in configured order, then
// purges transient artifacts.
func (h *Harness) runIteration(ctx context.Context, iteration int) {
	for _, name := range h.cfg.EnabledTests {
		if ctx.Err() != nil {
			break
		}

		def, ok := h.cfg.Definition(name)
		if !ok {
			slog.Warn("enabled test has no definition, skipping", slog.String("test", name))
			continue
		}

		res := h.executeCase(ctx, def)
		if err := h.sink.Record(ctx, res); err != nil {
			// A failed insert loses one row, never the loop.
			slog.Error("failed to record result",
				slog.String("test", res.TestName),
				slog.Any("error", err))
		}
	}

	if err := h.ws.PurgeTransient(); err != nil {
		slog.Warn("transient purge incomplete",
			slog.Int("iteration", iteration),
			slog.Any("error", err))
	}
}

// executeCase runs one test and always returns exactly one result. Setup
// failures, workload failures, and timeouts all land here as a failed row
// with the elapsed time up to the failure.
func (h *Harness) executeCase(ctx context.Context, def *workload.Definition) *workload.Result {
	start := time.Now()
	res := workload.NewResult(h.cfg.SetupID, def.Name, start)

	if err := h.tracker.EnsureSetup(ctx, def); err != nil {
		slog.Error("setup failed",
			slog.String("test", def.Name),
			slog.Any("error", err))
		res.Fail(time.Since(start).Seconds(), err)
		return res
	}

	slog.Info("executing test", slog.String("test", def.Name), slog.String("type", def.Kind.String()))
	seconds, err := h.runner.Execute(ctx, def)
	if err != nil {
		slog.Error("test failed",
			slog.String("test", def.Name),
			slog.String("stage", string(workload.FailureStage(err))),
			slog.Any("error", err))
		res.Fail(time.Since(start).Seconds(), err)
		return res
	}

	slog.Info("test completed",
		slog.String("test", def.Name),
		slog.Float64("seconds", seconds))
	res.Complete(seconds)
	return res
}

// Shutdown performs best-effort teardown in a fixed order: remove every
// workspace artifact, then release the sink. Each step's failure is logged
// and never prevents the steps after it.
func (h *Harness) Shutdown() {
	slog.Info("shutting down")

	if err := h.ws.PurgeAll(); err != nil {
		slog.Warn("workspace cleanup incomplete", slog.Any("error", err))
	}
	if err := h.sink.Disconnect(); err != nil {
		slog.Warn("sink disconnect failed", slog.Any("error", err))
	}

	slog.Info("shutdown complete")
}
