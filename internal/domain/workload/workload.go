// Package workload provides the workload definition domain model.
package workload

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDefinition is returned when a workload definition is invalid.
	ErrInvalidDefinition = errors.New("invalid workload definition")
)

// Kind identifies what a workload does. The set is closed: the executor
// switches exhaustively over it, and config validation rejects anything else.
type Kind string

const (
	// KindClone clones a git repository into a transient directory.
	KindClone Kind = "git_clone"
	// KindEnvInstall creates a virtualenv and installs packages into it.
	KindEnvInstall Kind = "virtualenv_install"
	// KindImportBench times a library import in a fresh interpreter process.
	KindImportBench Kind = "import_bench"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Validate checks if the kind is one of the known workload kinds.
func (k Kind) Validate() error {
	switch k {
	case KindClone, KindEnvInstall, KindImportBench:
		return nil
	default:
		return fmt.Errorf("%w: unknown workload type: %s", ErrInvalidDefinition, k)
	}
}

// Definition describes a single named workload test case. Definitions are
// loaded once from configuration at startup and never mutated.
type Definition struct {
	// Name is the unique test case name.
	Name string `json:"name" yaml:"name"`

	// Kind selects the workload behavior.
	Kind Kind `json:"type" yaml:"type"`

	// RepositoryURL is the clone source (git_clone only).
	RepositoryURL string `json:"repository_url,omitempty" yaml:"repository_url,omitempty"`

	// Packages lists packages to install (virtualenv_install only).
	Packages []string `json:"packages,omitempty" yaml:"packages,omitempty"`

	// ImportTarget is the library whose import is timed (import_bench only).
	ImportTarget string `json:"import_target,omitempty" yaml:"import_target,omitempty"`

	// SetupRequired marks workloads that need a one-time per-process setup
	// before their first execution.
	SetupRequired bool `json:"setup_required" yaml:"setup_required"`

	// Timeout bounds the workload's external process execution.
	Timeout time.Duration `json:"-" yaml:"-"`

	// SetupTimeout bounds the one-time setup action.
	SetupTimeout time.Duration `json:"-" yaml:"-"`
}

// Validate validates the definition for its declared kind.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if err := d.Kind.Validate(); err != nil {
		return err
	}

	switch d.Kind {
	case KindClone:
		if d.RepositoryURL == "" {
			return fmt.Errorf("%w: %s: repository_url is required for %s", ErrInvalidDefinition, d.Name, d.Kind)
		}
	case KindEnvInstall:
		if len(d.Packages) == 0 {
			return fmt.Errorf("%w: %s: packages is required for %s", ErrInvalidDefinition, d.Name, d.Kind)
		}
	case KindImportBench:
		if d.ImportTarget == "" {
			return fmt.Errorf("%w: %s: import_target is required for %s", ErrInvalidDefinition, d.Name, d.Kind)
		}
		if !d.SetupRequired {
			return fmt.Errorf("%w: %s: %s requires setup_required", ErrInvalidDefinition, d.Name, d.Kind)
		}
	}

	if d.Timeout < 0 {
		return fmt.Errorf("%w: %s: timeout cannot be negative", ErrInvalidDefinition, d.Name)
	}
	return nil
}
