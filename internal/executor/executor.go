// Package executor runs the individual workload kinds as external process
// invocations with bounded timeouts.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/whhaicheng/fsload/internal/domain/workload"
	"github.com/whhaicheng/fsload/internal/workspace"
)

// Executor executes workloads against a workspace. Tool paths are
// overridable so tests can substitute stub executables.
type Executor struct {
	WS *workspace.Manager

	// GitPath is the git executable (default "git").
	GitPath string

	// PythonPath is the interpreter used for venv creation (default "python3").
	PythonPath string
}

// New creates an executor with default tool paths.
func New(ws *workspace.Manager) *Executor {
	return &Executor{WS: ws, GitPath: "git", PythonPath: "python3"}
}

// Clone clones the definition's repository into a fresh transient directory,
// verifies the version-control marker, and removes the directory regardless
// of outcome. Returns the elapsed seconds including verification but
// excluding cleanup.
func (e *Executor) Clone(ctx context.Context, def *workload.Definition) (float64, error) {
	dir := e.WS.NewTransientRepoDir()
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	start := time.Now()
	if _, err := e.run(ctx, e.GitPath, "clone", def.RepositoryURL, dir); err != nil {
		return 0, stageFor(ctx, workload.StageToolFailure, err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return 0, workload.NewFailure(workload.StageVerification,
			"repository was not properly cloned: %s missing .git", dir)
	}
	return time.Since(start).Seconds(), nil
}

// EnvInstall creates a transient virtualenv, installs the definition's
// packages, verifies them via pip list, and removes the environment in all
// cases. Environment creation and package installation fail with distinct
// stages so diagnostics tell the two apart.
func (e *Executor) EnvInstall(ctx context.Context, def *workload.Definition) (float64, error) {
	dir := e.WS.NewTransientVenvDir()
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	start := time.Now()
	if _, err := e.run(ctx, e.PythonPath, "-m", "venv", dir); err != nil {
		return 0, stageFor(ctx, workload.StageCreateEnv, err)
	}

	pip := venvTool(dir, "pip")
	args := append([]string{"install"}, def.Packages...)
	if _, err := e.run(ctx, pip, args...); err != nil {
		return 0, stageFor(ctx, workload.StageInstallPackages, err)
	}

	listing, err := e.run(ctx, pip, "list")
	if err != nil {
		return 0, stageFor(ctx, workload.StageVerification, err)
	}
	installed := make(map[string]bool)
	for _, line := range strings.Split(listing, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			installed[basePackageName(fields[0])] = true
		}
	}
	for _, pkg := range def.Packages {
		if name := basePackageName(pkg); !installed[name] {
			return 0, workload.NewFailure(workload.StageVerification,
				"package %s not present after install", name)
		}
	}
	return time.Since(start).Seconds(), nil
}

// basePackageName strips version pins and extras from a requirement and
// normalizes the name the way pip lists it.
func basePackageName(req string) string {
	fields := strings.FieldsFunc(req, func(r rune) bool {
		return r == '=' || r == '<' || r == '>' || r == '[' || r == '!' || r == '~' || r == ' '
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.NewReplacer("_", "-", ".", "-").Replace(fields[0]))
}

// ImportBench spawns a fresh interpreter from the test's persistent
// environment importing the target library. The measured metric is the
// process spawn plus import, nothing else.
func (e *Executor) ImportBench(ctx context.Context, def *workload.Definition) (float64, error) {
	venv := e.WS.SetupVenvDir(def.Name)
	if _, err := os.Stat(venv); err != nil {
		return 0, workload.NewFailure(workload.StageSetupMissing,
			"persistent environment not found at %s; setup may have failed", venv)
	}

	ctx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	python := venvTool(venv, "python")
	start := time.Now()
	if _, err := e.run(ctx, python, "-c", "import "+def.ImportTarget); err != nil {
		return 0, stageFor(ctx, workload.StageToolFailure, err)
	}
	return time.Since(start).Seconds(), nil
}

// SetupImportEnv builds the persistent environment an import_bench workload
// depends on: create the venv, install the import target. On any failure the
// half-built artifact is removed so the next attempt starts clean. An
// existing environment from a previous process is rebuilt rather than
// trusted.
func (e *Executor) SetupImportEnv(ctx context.Context, def *workload.Definition) error {
	venv := e.WS.SetupVenvDir(def.Name)
	if err := os.RemoveAll(venv); err != nil {
		return fmt.Errorf("remove stale setup environment: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, def.SetupTimeout)
	defer cancel()

	if _, err := e.run(ctx, e.PythonPath, "-m", "venv", venv); err != nil {
		os.RemoveAll(venv)
		return stageFor(ctx, workload.StageCreateEnv, err)
	}
	if _, err := e.run(ctx, venvTool(venv, "pip"), "install", def.ImportTarget); err != nil {
		os.RemoveAll(venv)
		return stageFor(ctx, workload.StageInstallPackages, err)
	}
	return nil
}

// Execute dispatches on the workload kind. The kind set is closed; config
// validation guarantees the default branch is unreachable.
func (e *Executor) Execute(ctx context.Context, def *workload.Definition) (float64, error) {
	switch def.Kind {
	case workload.KindClone:
		return e.Clone(ctx, def)
	case workload.KindEnvInstall:
		return e.EnvInstall(ctx, def)
	case workload.KindImportBench:
		return e.ImportBench(ctx, def)
	default:
		return 0, workload.NewFailure(workload.StageToolFailure, "unknown workload kind: %s", def.Kind)
	}
}

// run executes one external command, returning its stdout. Stderr is folded
// into the error for diagnostics.
func (e *Executor) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(errBuf.String())
		if detail == "" {
			detail = strings.TrimSpace(out.String())
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), detail)
	}
	return out.String(), nil
}

// stageFor wraps an external-process error as a workload failure, promoting
// it to the timeout stage when the context deadline was the cause.
func stageFor(ctx context.Context, stage workload.Stage, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return workload.NewFailure(workload.StageTimeout, "%v", err)
	}
	return workload.NewFailure(stage, "%v", err)
}

// venvTool returns the path to a tool inside a virtualenv, honoring the
// Windows Scripts layout.
func venvTool(venv, tool string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venv, "Scripts", tool+".exe")
	}
	return filepath.Join(venv, "bin", tool)
}
