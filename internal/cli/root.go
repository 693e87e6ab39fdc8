// Package cli wires configuration, backends and the appointment store into the
// apptstore command tree.
package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/appointment-store/internal/config"
	"github.com/example/appointment-store/internal/logging"
)

// runtime carries collaborators shared by every command. Tests replace now
// and newID to get deterministic output.
type runtime struct {
	configPath string
	verbose    bool
	server     bool
	noColor    bool

	now   func() time.Time
	newID func() string
}

// NewRootCmd builds the apptstore command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&runtime{now: time.Now})
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "apptstore",
		Short: "Appointment record store",
		Long: `apptstore keeps appointment records in a durable server backend and a
local cache, classifies them as upcoming, past or missed, and serves them
over HTTP.

Listing and editing commands work against the local cache unless --server
is given.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if rt.noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&rt.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "log store activity to stderr")
	flags.BoolVar(&rt.server, "server", false, "use the durable server backend instead of the local cache")
	flags.BoolVar(&rt.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(serveCmd(rt))
	root.AddCommand(listCmd(rt))
	root.AddCommand(upcomingCmd(rt))
	root.AddCommand(pastCmd(rt))
	root.AddCommand(missedCmd(rt))
	root.AddCommand(addCmd(rt))
	root.AddCommand(deleteCmd(rt))
	root.AddCommand(completeCmd(rt))
	root.AddCommand(exportCmd(rt))
	root.AddCommand(migrateCmd(rt))

	return root
}

func (rt *runtime) loadConfig() (config.Config, error) {
	return config.Load(rt.configPath)
}

// commandLogger writes text logs to w, at warn level unless --verbose.
func (rt *runtime) commandLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if rt.verbose {
		level = slog.LevelDebug
	}
	return logging.New(w, logging.FormatText, level)
}

func (rt *runtime) clock() func() time.Time {
	if rt.now == nil {
		return time.Now
	}
	return rt.now
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
