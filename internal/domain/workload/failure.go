package workload

import (
	"errors"
	"fmt"
)

// Stage identifies where in a workload execution a failure occurred.
type Stage string

const (
	// StageTimeout means the external process exceeded its deadline.
	StageTimeout Stage = "timeout"
	// StageToolFailure means the external tool exited non-zero.
	StageToolFailure Stage = "tool_failure"
	// StageVerification means the tool succeeded but the expected artifact
	// or listing was missing.
	StageVerification Stage = "verification"
	// StageSetupMissing means a required persistent setup artifact does not exist.
	StageSetupMissing Stage = "setup_missing"
	// StageCreateEnv means virtualenv creation failed.
	StageCreateEnv Stage = "create_env"
	// StageInstallPackages means package installation failed.
	StageInstallPackages Stage = "install_packages"
)

// Failure is a recoverable workload execution failure. It is converted into
// a failed Result at the execution boundary and never aborts the loop.
type Failure struct {
	Stage   Stage
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Stage, f.Message)
}

// NewFailure creates a Failure for the given stage.
func NewFailure(stage Stage, format string, args ...any) *Failure {
	return &Failure{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// FailureStage extracts the stage from err, or "" if err is not a Failure.
func FailureStage(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}
