package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/murmur/internal/config"
	"github.com/roach88/murmur/internal/store"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Engine string
	DSN    string
}

// NewSweepCommand creates the sweep command: a one-shot offline
// expiration pass against a store, sharing the serve path's delete
// operation.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired events from a store",
		Long: `Run one expiration pass: delete every stored event whose expiration
timestamp has elapsed, then exit. The same operation runs periodically
inside a serving relay; this command exists for maintenance windows and
cron-driven deployments.

Example:
  murmur sweep --db ./murmur.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Engine, "engine", "", "storage engine: sqlite or postgres")
	cmd.Flags().StringVar(&opts.DSN, "db", "", "sqlite path or postgres connection string")

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("engine") {
		cfg.Engine = opts.Engine
	}
	if cmd.Flags().Changed("db") {
		cfg.DSN = opts.DSN
	}

	st, err := store.Open(store.Config{Engine: cfg.Engine, DSN: cfg.DSN})
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deleted, err := st.DeleteExpired(ctx, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired events\n", deleted)
	return nil
}
