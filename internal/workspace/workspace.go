// Package workspace manages the harness's working directory on the target
// filesystem: write-access verification, transient artifact naming, and the
// purge operations the scheduler and shutdown path rely on.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrWorkspaceUnavailable is returned when the target path cannot be
	// created or written. Fatal at startup, never retried.
	ErrWorkspaceUnavailable = errors.New("workspace unavailable")
)

// Artifact naming conventions. Transient prefixes mark directories created
// and destroyed within a single workload execution; the setup prefix marks
// persistent environments reused across iterations.
const (
	transientRepoPrefix = "test_repo_"
	transientVenvPrefix = "test_venv_"
	setupVenvPrefix     = "setup_venv_"
)

// Manager owns a harness working directory. All workload artifacts live
// directly under Root.
type Manager struct {
	root string
}

// New creates a manager for the given target path.
func New(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the workspace root path.
func (m *Manager) Root() string {
	return m.root
}

// Ensure creates the directory tree if absent and verifies write access by
// creating and removing a probe file.
func (m *Manager) Ensure() error {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrWorkspaceUnavailable, m.root, err)
	}
	probe := filepath.Join(m.root, ".write_probe_"+uuid.NewString()[:8])
	if err := os.WriteFile(probe, []byte("probe"), 0644); err != nil {
		return fmt.Errorf("%w: write probe in %s: %v", ErrWorkspaceUnavailable, m.root, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: remove probe %s: %v", ErrWorkspaceUnavailable, probe, err)
	}
	slog.Info("workspace verified", slog.String("path", m.root))
	return nil
}

// NewTransientRepoDir returns a fresh path for a clone workload. The UUID
// suffix keeps fast consecutive executions from colliding.
func (m *Manager) NewTransientRepoDir() string {
	return filepath.Join(m.root, transientRepoPrefix+uuid.NewString()[:8])
}

// NewTransientVenvDir returns a fresh path for an environment-install workload.
func (m *Manager) NewTransientVenvDir() string {
	return filepath.Join(m.root, transientVenvPrefix+uuid.NewString()[:8])
}

// SetupVenvDir returns the persistent environment path for a test name.
func (m *Manager) SetupVenvDir(testName string) string {
	return filepath.Join(m.root, setupVenvPrefix+testName)
}

// PurgeTransient removes every directory matching a transient naming
// convention, leaving persistent setup artifacts in place. Running it twice
// in succession is a no-op the second time.
func (m *Manager) PurgeTransient() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read workspace: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, transientRepoPrefix) && !strings.HasPrefix(name, transientVenvPrefix) {
			continue
		}
		path := filepath.Join(m.root, name)
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		slog.Debug("transient artifact removed", slog.String("path", path))
	}
	if len(errs) > 0 {
		return fmt.Errorf("purge transient: %v", errs)
	}
	return nil
}

// PurgeAll removes everything under the workspace root, including persistent
// setup artifacts. Used only during lifecycle shutdown.
func (m *Manager) PurgeAll() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read workspace: %w", err)
	}

	var errs []error
	for _, e := range entries {
		path := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("purge all: %v", errs)
	}
	return nil
}
