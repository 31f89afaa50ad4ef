// Package setup tracks one-time per-process setup for workloads that depend
// on a persistent environment.
package setup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/whhaicheng/fsload/internal/domain/workload"
)

// Builder performs the setup action for a workload definition.
type Builder interface {
	SetupImportEnv(ctx context.Context, def *workload.Definition) error
}

// Tracker remembers which tests have completed setup within this process.
// The set is never persisted: a restarted harness rebuilds every environment
// rather than trusting leftovers from a previous run.
type Tracker struct {
	builder Builder

	mu   sync.Mutex
	done map[string]bool
}

// NewTracker creates a tracker using the given builder.
func NewTracker(builder Builder) *Tracker {
	return &Tracker{builder: builder, done: make(map[string]bool)}
}

// EnsureSetup runs the definition's setup action at most once per process.
// Tests without setup requirements are a no-op. A failed setup is not marked
// done, so the next iteration retries it.
func (t *Tracker) EnsureSetup(ctx context.Context, def *workload.Definition) error {
	if !def.SetupRequired {
		return nil
	}

	t.mu.Lock()
	if t.done[def.Name] {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	// Only import_bench has a setup action. A definition of another kind
	// that asks for setup gets a warning and runs anyway, rather than
	// failing every iteration.
	if def.Kind != workload.KindImportBench {
		slog.Warn("no setup action for workload kind",
			slog.String("test", def.Name),
			slog.String("type", def.Kind.String()))
		t.mu.Lock()
		t.done[def.Name] = true
		t.mu.Unlock()
		return nil
	}

	slog.Info("running one-time setup", slog.String("test", def.Name))
	if err := t.builder.SetupImportEnv(ctx, def); err != nil {
		return err
	}

	t.mu.Lock()
	t.done[def.Name] = true
	t.mu.Unlock()

	slog.Info("setup complete", slog.String("test", def.Name))
	return nil
}

// Done reports whether setup has completed for the named test.
func (t *Tracker) Done(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done[name]
}
