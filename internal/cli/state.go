package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/botflow/internal/runtime/fsm"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/storage"
)

// StateResult is the history stored under one key.
type StateResult struct {
	Key     string   `json:"key"`
	Current string   `json:"current,omitempty"`
	History []string `json:"history"`
}

// NewStateCommand creates the state command group.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit persisted state machine history",
		Long: `Read or overwrite the magazine stored for one conversation in the configured
state storage. Keys have the form <conversation>.<actor>, with "null" as actor
for conversation scoped machines, e.g. "-100123.42" or "-100123.null". Put
"--" before keys of group chats so their leading minus is not read as a flag.

These commands work on stored names only: state hooks are not run and names
are not checked against a machine definition.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print the stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, rootOpts, args[0], func(ctx context.Context, store storage.Store, key storage.Key) ([]string, error) {
				return store.Load(ctx, key)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <state>...",
		Short: "Overwrite the stored history",
		Long: `Store the given state names as the history, the last one being the current
state. Repeated names rewind the history the same way navigation does.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args[1:]
			for _, name := range names {
				if strings.TrimSpace(name) == "" {
					return WrapExitError(ExitCommandError, "invalid state", fsm.ErrStateNameRequired)
				}
			}
			return runState(cmd, rootOpts, args[0], func(ctx context.Context, store storage.Store, key storage.Key) ([]string, error) {
				history := fsm.MagazineFrom(names, names[0]).Names()
				return history, store.Save(ctx, key, history)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <key>",
		Short: "Clear the stored history",
		Long:  "Store an empty history so the machine starts from its initial state on the next update.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, rootOpts, args[0], func(ctx context.Context, store storage.Store, key storage.Key) ([]string, error) {
				return nil, store.Save(ctx, key, nil)
			})
		},
	})

	return cmd
}

type stateOp func(ctx context.Context, store storage.Store, key storage.Key) ([]string, error)

func runState(cmd *cobra.Command, opts *RootOptions, rawKey string, op stateOp) (err error) {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	key, err := storage.ParseKey(rawKey)
	if err != nil {
		return out.Failure(ExitCommandError, "invalid key", err)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd, opts)
	store, err := storage.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return out.Failure(ExitCommandError, "open state storage", err)
	}
	defer func() {
		err = errors.Join(err, storage.Close(store))
	}()

	names, err := op(ctx, store, key)
	if err != nil {
		return out.Failure(ExitCommandError, "state storage", err)
	}

	result := StateResult{Key: key.String(), History: names}
	if result.History == nil {
		result.History = []string{}
	}
	lines := []string{key.String() + ": (empty)"}
	if len(names) > 0 {
		result.Current = names[len(names)-1]
		lines = []string{key.String() + ": " + strings.Join(names, " > "), "current: " + result.Current}
	}
	return out.Success(result, lines...)
}
