// Package harness provides unit tests for the execution loop.
package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whhaicheng/fsload/internal/config"
	"github.com/whhaicheng/fsload/internal/domain/workload"
	"github.com/whhaicheng/fsload/internal/workspace"
)

// fakeRunner records executions and fails or delays on demand.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	times   []time.Time
	delay   time.Duration
	failFor map[string]error
	onExec  func(name string)
}

func (r *fakeRunner) Execute(ctx context.Context, def *workload.Definition) (float64, error) {
	r.mu.Lock()
	r.calls = append(r.calls, def.Name)
	r.times = append(r.times, time.Now())
	onExec := r.onExec
	r.mu.Unlock()

	if onExec != nil {
		onExec(def.Name)
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if err := r.failFor[def.Name]; err != nil {
		return 0, err
	}
	return 0.5, nil
}

func (r *fakeRunner) callNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeTracker approves every setup, or fails named tests.
type fakeTracker struct {
	failFor map[string]error
}

func (t *fakeTracker) EnsureSetup(ctx context.Context, def *workload.Definition) error {
	if t.failFor == nil {
		return nil
	}
	return t.failFor[def.Name]
}

// fakeSink collects records in memory and can cancel the loop after a fixed
// number of rows.
type fakeSink struct {
	mu           sync.Mutex
	records      []*workload.Result
	recordErr    error
	disconnected bool

	cancelAfter int
	cancel      context.CancelFunc
}

func (s *fakeSink) Connect(ctx context.Context) error { return nil }

func (s *fakeSink) Record(ctx context.Context, res *workload.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, res)
	if s.cancel != nil && len(s.records) >= s.cancelAfter {
		s.cancel()
	}
	return s.recordErr
}

func (s *fakeSink) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

func (s *fakeSink) results() []*workload.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*workload.Result(nil), s.records...)
}

// testConfig builds a two-test configuration plus one enabled name without
// a definition.
func testConfig(root string, intervalSeconds int) *config.Config {
	return &config.Config{
		SetupID:             "nfs-cluster-a",
		TargetPath:          root,
		LoopIntervalSeconds: intervalSeconds,
		EnabledTests:        []string{"clone_repo", "ghost_test", "venv_basic"},
		TestDefinitions: map[string]config.TestDefinition{
			"clone_repo": {
				Type:          "git_clone",
				RepositoryURL: "https://example.com/r.git",
			},
			"venv_basic": {
				Type:     "virtualenv_install",
				Packages: []string{"requests"},
			},
		},
	}
}

func newTestHarness(t *testing.T, cfg *config.Config, runner *fakeRunner, tracker *fakeTracker, s *fakeSink) *Harness {
	t.Helper()
	ws := workspace.New(cfg.TargetPath)
	require.NoError(t, ws.Ensure())
	return New(cfg, ws, runner, tracker, s)
}

// TestHarness_OneResultPerEnabledTest tests that each iteration produces
// exactly one record per enabled, defined test and skips unknown names.
func TestHarness_OneResultPerEnabledTest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	s := &fakeSink{cancelAfter: 4, cancel: cancel}
	h := newTestHarness(t, testConfig(t.TempDir(), 0), runner, &fakeTracker{}, s)

	require.NoError(t, h.Run(ctx))

	results := s.results()
	require.GreaterOrEqual(t, len(results), 4)
	// Two defined tests alternate; ghost_test never produces a row.
	for i, res := range results {
		assert.Equal(t, "nfs-cluster-a", res.SetupID)
		assert.True(t, res.Success)
		if i%2 == 0 {
			assert.Equal(t, "clone_repo", res.TestName)
		} else {
			assert.Equal(t, "venv_basic", res.TestName)
		}
	}
	assert.NotContains(t, runner.callNames(), "ghost_test")
}

// TestHarness_FailureRecordedAndLoopContinues tests that a failing workload
// becomes a failed row and the remaining tests still run.
func TestHarness_FailureRecordedAndLoopContinues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{failFor: map[string]error{
		"clone_repo": workload.NewFailure(workload.StageTimeout, "clone exceeded 300s"),
	}}
	s := &fakeSink{cancelAfter: 2, cancel: cancel}
	h := newTestHarness(t, testConfig(t.TempDir(), 0), runner, &fakeTracker{}, s)

	require.NoError(t, h.Run(ctx))

	results := s.results()
	require.GreaterOrEqual(t, len(results), 2)

	first := results[0]
	assert.Equal(t, "clone_repo", first.TestName)
	assert.False(t, first.Success)
	assert.Contains(t, first.ErrorMessage, "timeout")
	assert.GreaterOrEqual(t, first.ExecutionSeconds, 0.0)

	second := results[1]
	assert.Equal(t, "venv_basic", second.TestName)
	assert.True(t, second.Success)
}

// TestHarness_SetupFailureProducesFailedRow tests that a failed setup yields
// a failed result without executing the workload.
func TestHarness_SetupFailureProducesFailedRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	tracker := &fakeTracker{failFor: map[string]error{
		"clone_repo": workload.NewFailure(workload.StageCreateEnv, "venv build failed"),
	}}
	s := &fakeSink{cancelAfter: 2, cancel: cancel}
	h := newTestHarness(t, testConfig(t.TempDir(), 0), runner, tracker, s)

	require.NoError(t, h.Run(ctx))

	results := s.results()
	require.GreaterOrEqual(t, len(results), 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "create_env")
	assert.NotContains(t, runner.callNames(), "clone_repo")
}

// TestHarness_SinkFailureDoesNotStopLoop tests that insert failures lose the
// row but never the loop.
func TestHarness_SinkFailureDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	s := &fakeSink{recordErr: errors.New("connection reset"), cancelAfter: 4, cancel: cancel}
	h := newTestHarness(t, testConfig(t.TempDir(), 0), runner, &fakeTracker{}, s)

	require.NoError(t, h.Run(ctx))
	assert.GreaterOrEqual(t, len(runner.callNames()), 4)
}

// TestHarness_TransientArtifactsPurgedPerIteration tests the post-iteration
// cleanup of workload leftovers.
func TestHarness_TransientArtifactsPurgedPerIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	runner := &fakeRunner{}
	runner.onExec = func(name string) {
		// Simulate a workload that crashed before its own cleanup.
		os.MkdirAll(filepath.Join(root, "test_repo_leftover"), 0755) //nolint:errcheck
	}
	s := &fakeSink{cancelAfter: 2, cancel: cancel}
	h := newTestHarness(t, testConfig(root, 0), runner, &fakeTracker{}, s)

	require.NoError(t, h.Run(ctx))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "test_repo_"),
			"transient %s should have been purged", e.Name())
	}
}

// TestHarness_CancelledContextStopsPromptly tests that a cancelled context
// ends the loop before any execution.
func TestHarness_CancelledContextStopsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	s := &fakeSink{}
	h := newTestHarness(t, testConfig(t.TempDir(), 60), runner, &fakeTracker{}, s)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, h.Run(ctx))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Empty(t, runner.callNames())
}

// TestHarness_WaitRespectsInterval tests that iteration starts are paced by
// the configured cadence minus the iteration's own duration.
func TestHarness_WaitRespectsInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t.TempDir(), 0)
	cfg.LoopIntervalSeconds = 1
	cfg.EnabledTests = []string{"clone_repo"}

	runner := &fakeRunner{delay: 100 * time.Millisecond}
	s := &fakeSink{cancelAfter: 3, cancel: cancel}
	h := newTestHarness(t, cfg, runner, &fakeTracker{}, s)

	require.NoError(t, h.Run(ctx))

	runner.mu.Lock()
	times := append([]time.Time(nil), runner.times...)
	runner.mu.Unlock()
	require.GreaterOrEqual(t, len(times), 3)
	for i := 1; i < 3; i++ {
		gap := times[i].Sub(times[i-1])
		// The 100ms execution is absorbed into the 1s cadence.
		assert.GreaterOrEqual(t, gap, 900*time.Millisecond)
		assert.Less(t, gap, 3*time.Second)
	}
}

// TestHarness_Shutdown tests ordered best-effort teardown.
func TestHarness_Shutdown(t *testing.T) {
	root := t.TempDir()
	s := &fakeSink{}
	h := newTestHarness(t, testConfig(root, 0), &fakeRunner{}, &fakeTracker{}, s)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "setup_venv_pandas_import"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "test_repo_leftover"), 0755))

	h.Shutdown()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "shutdown removes persistent and transient artifacts")
	assert.True(t, s.disconnected)
}
