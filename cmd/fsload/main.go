// Command fsload is a long-running filesystem workload harness. It repeatedly
// executes configured workload test cases against a target path and records
// each execution to a central result store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/whhaicheng/fsload/internal/config"
	"github.com/whhaicheng/fsload/internal/executor"
	"github.com/whhaicheng/fsload/internal/harness"
	"github.com/whhaicheng/fsload/internal/logging"
	"github.com/whhaicheng/fsload/internal/setup"
	"github.com/whhaicheng/fsload/internal/sink"
	"github.com/whhaicheng/fsload/internal/workspace"
)

var version = "dev"

type cli struct {
	Config string `short:"c" default:"config.yaml" help:"Path to the configuration file (.yaml or .json)."`

	Run       runCmd       `cmd:"" default:"withargs" help:"Run the workload loop until interrupted."`
	CheckSink checkSinkCmd `cmd:"" name:"check-sink" help:"Verify the result sink is reachable and provisioned."`
	Purge     purgeCmd     `cmd:"" help:"Remove workload artifacts from the target path."`
	Version   versionCmd   `cmd:"" help:"Print the version."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("fsload"),
		kong.Description("Filesystem workload harness."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&c))
}

type runCmd struct{}

// Run starts the harness. Any startup failure returns an error, which kong
// converts into a non-zero exit; SIGINT and SIGTERM end the loop cleanly and
// exit zero.
func (r *runCmd) Run(c *cli) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	slog.Info("fsload starting",
		slog.String("version", version),
		slog.String("config", c.Config),
		slog.String("setup_id", cfg.SetupID))

	ws := workspace.New(cfg.TargetPath)
	if err := ws.Ensure(); err != nil {
		return err
	}
	// Leftovers from a crashed run would skew the first iteration.
	if err := ws.PurgeTransient(); err != nil {
		slog.Warn("startup purge incomplete", slog.Any("error", err))
	}

	snk := sink.NewDBSink(cfg.Sink)
	if err := snk.Connect(context.Background()); err != nil {
		return fmt.Errorf("connect result sink: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := executor.New(ws)
	tracker := setup.NewTracker(exec)
	h := harness.New(cfg, ws, exec, tracker, snk)

	if err := h.Run(ctx); err != nil {
		h.Shutdown()
		return err
	}
	h.Shutdown()
	return nil
}

type checkSinkCmd struct {
	Timeout time.Duration `default:"15s" help:"How long to wait for the sink."`
}

// Run connects to the configured sink, verifies the result table, and
// disconnects.
func (r *checkSinkCmd) Run(c *cli) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	closeLog, err := logging.Setup(cfg.LogLevel, "")
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	snk := sink.NewDBSink(cfg.Sink)
	if err := snk.Connect(ctx); err != nil {
		return fmt.Errorf("sink check failed: %w", err)
	}
	defer snk.Disconnect() //nolint:errcheck

	count, err := snk.Count(ctx)
	if err != nil {
		return fmt.Errorf("sink check failed: %w", err)
	}
	fmt.Printf("sink ok: %s, %d recorded results\n", cfg.Sink.Redact(), count)
	return nil
}

type purgeCmd struct {
	All bool `help:"Also remove persistent setup environments."`
}

// Run removes workload artifacts from the target path without starting the
// loop. By default only transient artifacts go; --all clears everything.
func (r *purgeCmd) Run(c *cli) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	closeLog, err := logging.Setup(cfg.LogLevel, "")
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	ws := workspace.New(cfg.TargetPath)
	if r.All {
		if err := ws.PurgeAll(); err != nil {
			return err
		}
	} else {
		if err := ws.PurgeTransient(); err != nil {
			return err
		}
	}
	fmt.Printf("purged %s\n", cfg.TargetPath)
	return nil
}

type versionCmd struct{}

func (v *versionCmd) Run(c *cli) error {
	fmt.Printf("fsload %s\n", version)
	return nil
}
