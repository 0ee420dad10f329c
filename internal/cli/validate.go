package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/botflow/ingress"
	configpkg "github.com/drblury/botflow/internal/runtime/config"
	"github.com/drblury/botflow/storage"
)

// ValidationResult summarises a valid configuration.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Ingress string `json:"ingress"`
	Storage string `json:"state_storage"`
	Config  string `json:"config"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration file and environment overlay, then check that the
selected ingress and state storage are known and fully configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := configpkg.Load(opts.ConfigPath)
	if err != nil {
		return out.Failure(ExitCommandError, "load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return out.Failure(ExitFailure, "invalid configuration", err)
	}
	if !ingress.DefaultRegistry.Has(cfg.Ingress) {
		return out.Failure(ExitFailure, "invalid configuration", unknownBackendError("ingress", cfg.Ingress, ingress.DefaultRegistry.Names()))
	}
	if !storage.DefaultRegistry.Has(cfg.StateStorage) {
		return out.Failure(ExitFailure, "invalid configuration", unknownBackendError("state storage", cfg.StateStorage, storage.DefaultRegistry.Names()))
	}

	result := ValidationResult{Valid: true, Ingress: cfg.Ingress, Storage: cfg.StateStorage, Config: cfg.String()}
	return out.Success(result,
		"configuration is valid",
		"  ingress:       "+cfg.Ingress,
		"  state storage: "+cfg.StateStorage,
	)
}

func unknownBackendError(kind, name string, registered []string) error {
	return fmt.Errorf("unknown %s %q (registered: %v)", kind, name, registered)
}
