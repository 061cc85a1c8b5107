package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/murmur/internal/config"
	"github.com/roach88/murmur/internal/lang"
	"github.com/roach88/murmur/internal/relay"
	"github.com/roach88/murmur/internal/server"
	"github.com/roach88/murmur/internal/store"
)

// ServeOptions holds flags for the serve command. Flag values override the
// resolved config only when the flag was set.
type ServeOptions struct {
	*RootOptions
	Port   int
	Engine string
	DSN    string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay",
		Long: `Start the relay: open the event store, begin the expiration sweeper,
and accept websocket connections.

Example:
  murmur serve --db ./murmur.db
  murmur serve --engine postgres --db "postgres://murmur@localhost/murmur" --port 3000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (default 3000)")
	cmd.Flags().StringVar(&opts.Engine, "engine", "", "storage engine: sqlite or postgres")
	cmd.Flags().StringVar(&opts.DSN, "db", "", "sqlite path or postgres connection string")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = opts.Port
	}
	if cmd.Flags().Changed("engine") {
		cfg.Engine = opts.Engine
	}
	if cmd.Flags().Changed("db") {
		cfg.DSN = opts.DSN
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	log := newLogger(cfg.Verbose)
	slog.SetDefault(log)

	log.Info("opening store", "engine", cfg.Engine, "dsn", cfg.DSN)
	st, err := store.Open(store.Config{
		Engine:         cfg.Engine,
		DSN:            cfg.DSN,
		DetectLanguage: lang.Detect,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	rl, err := relay.New(st,
		relay.WithLogger(log),
		relay.WithMetrics(registry),
		relay.WithQueryLimits(cfg.DefaultQueryLimit, cfg.MaxQueryLimit),
		relay.WithMaxSubscriptions(cfg.MaxSubscriptions),
		relay.WithRelayURL(cfg.RelayURL),
	)
	if err != nil {
		return err
	}

	// Shut everything down on SIGINT/SIGTERM.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := relay.NewSweeper(rl, cfg.SweepInterval)
	go sweeper.Run(ctx)

	srv := server.New(rl, server.Config{
		Addr:        cfg.Addr(),
		Name:        cfg.Name,
		Description: cfg.Description,
		PubKey:      cfg.PubKey,
		Contact:     cfg.Contact,
	}, log, registry)

	return srv.ListenAndServe(ctx)
}

// newLogger builds the process logger: text handler on stderr, debug
// level behind --verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
