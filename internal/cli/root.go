// Package cli implements the botflow operator command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	_ "github.com/drblury/botflow/ingress/all"
	configpkg "github.com/drblury/botflow/internal/runtime/config"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	_ "github.com/drblury/botflow/storage/all"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	LogLevel   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the botflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "botflow",
		Short: "Operate botflow dispatchers",
		Long: `Tooling around botflow bots: validate configuration, inspect and edit the
persisted state machine history of a conversation, and feed updates into the
configured ingress.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file (BOTFLOW_* environment variables override it)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for diagnostics on stderr")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// loadConfig reads and validates the configuration named by the global flags.
func loadConfig(opts *RootOptions) (*configpkg.Config, error) {
	cfg, err := configpkg.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitFailure, "invalid configuration", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, opts *RootOptions) loggingpkg.ServiceLogger {
	return loggingpkg.NewTextServiceLogger(cmd.ErrOrStderr(), opts.LogLevel)
}
