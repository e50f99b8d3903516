package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/interflow/internal/actor"
	"github.com/roach88/interflow/internal/config"
	"github.com/roach88/interflow/internal/deferred"
	"github.com/roach88/interflow/internal/editorlink"
	"github.com/roach88/interflow/internal/ephemeral"
	"github.com/roach88/interflow/internal/flow"
	"github.com/roach88/interflow/internal/handlers"
	"github.com/roach88/interflow/internal/ids"
	"github.com/roach88/interflow/internal/metrics"
	"github.com/roach88/interflow/internal/router"
	"github.com/roach88/interflow/internal/server"
	"github.com/roach88/interflow/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Address    string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interaction endpoint",
		Long: `Start the HTTP interaction endpoint.

Configuration is read from the YAML file given by --config, then .env,
then INTERFLOW_* environment variables.

Example:
  interflow serve --config interflow.yaml
  INTERFLOW_SERVER_ADDRESS=:9000 interflow serve -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Address, "addr", "", "listen address (overrides server.address)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Address != "" {
		cfg.Server.Address = opts.Address
	}
	if err := setupLogging(cfg.Log, opts.Verbose, cmd.ErrOrStderr()); err != nil {
		return WrapExitError(ExitCommandError, "invalid log config", err)
	}
	if cfg.Discord.PublicKey == "" {
		return NewExitError(ExitCommandError, "discord.public_key is required to serve")
	}
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; platform calls will be rejected")
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.close(cfg.Deferred.ShutdownGrace.Std())

	fmt.Fprintf(cmd.OutOrStdout(), "Serving interactions on %s\n", cfg.Server.Address)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, cfg.Server.Address, a.server.Handler(),
			cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std())
	})
	if a.actors != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving actors on %s\n", cfg.Server.ActorsAddress)
		g.Go(func() error {
			return server.Serve(gctx, cfg.Server.ActorsAddress, a.actors,
				cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std())
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// setupLogging installs the process-wide slog handler. --verbose forces
// debug level.
func setupLogging(lc config.LogConfig, verbose bool, w io.Writer) error {
	level, err := lc.SlogLevel()
	if err != nil {
		return err
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// app is the wired service. closers run in reverse order on shutdown.
// actors is nil unless server.expose_actors is set; it is served on its own
// internal listener.
type app struct {
	server   *server.Server
	actors   http.Handler
	deferred *deferred.Executor
	closers  []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if a.deferred != nil {
		if err := a.deferred.Shutdown(ctx); err != nil {
			slog.Warn("deferred tasks dropped at shutdown", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.close(cfg.Deferred.ShutdownGrace.Std())
		}
	}()

	publicKey, err := hex.DecodeString(cfg.Discord.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("discord.public_key: %w", err)
	}

	m := metrics.New()
	var serverOpts []server.Option
	serverOpts = append(serverOpts,
		server.WithMetrics(m),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)

	dialect, err := store.ParseDialect(cfg.Relational.Driver)
	if err != nil {
		return nil, err
	}
	slog.Info("opening relational store", "driver", cfg.Relational.Driver)
	st, err := store.Open(ctx, dialect, cfg.Relational.DSN)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return st.Close() })
	serverOpts = append(serverOpts, server.WithReadiness("relational", st.Ping))

	eph, err := openEphemeral(ctx, cfg.Ephemeral, a)
	if err != nil {
		return nil, err
	}
	if r, ok := eph.(*ephemeral.Redis); ok {
		serverOpts = append(serverOpts, server.WithReadiness("ephemeral", r.Ping))
	}

	var actors actor.Service
	if cfg.Actors.RemoteURL != "" {
		slog.Info("using remote actor host", "url", cfg.Actors.RemoteURL)
		actors = actor.NewClient(cfg.Actors.RemoteURL, &http.Client{Timeout: cfg.Server.WriteTimeout.Std()})
	} else {
		storage, err := actor.OpenPebble(cfg.Actors.StoragePath)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return storage.Close() })

		reg := actor.NewRegistry(storage, st,
			actor.WithShards(cfg.Actors.Shards),
			actor.WithIdleTimeout(cfg.Actors.IdleTimeout.Std()),
			actor.WithMailboxSize(cfg.Actors.MailboxSize),
			actor.WithMetrics(m),
		)
		a.onClose(reg.Close)
		if cfg.Server.ExposeActors {
			am := mux.NewRouter()
			actor.NewHandler(reg).Register(am)
			a.actors = am
		}
		actors = reg
	}

	p, err := newPlatform(cfg.Discord)
	if err != nil {
		return nil, err
	}

	executor := flow.NewExecutor(p,
		flow.WithLimits(cfg.Flows.MaxActions, cfg.Flows.PremiumMaxActions),
		flow.WithMaxWait(cfg.Flows.MaxWait.Std()),
		flow.WithMetrics(m),
	)

	table, err := handlers.New(st, p, eph, ids.UUIDv7Tokens{}).Table()
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatch table: %w", err)
	}

	routerOpts := []router.Option{router.WithMetrics(m)}
	if cfg.Editor.Origin != "" {
		signer, err := editorlink.NewSigner(cfg.Editor.Origin, []byte(cfg.Editor.Secret),
			editorlink.WithTTL(cfg.Editor.LinkTTL.Std()))
		if err != nil {
			return nil, err
		}
		routerOpts = append(routerOpts, router.WithLinker(signer))
	}
	r := router.New(table, eph, actors, executor, routerOpts...)

	a.deferred = deferred.New(cfg.Deferred.Workers, cfg.Deferred.QueueSize,
		deferred.WithTaskTimeout(cfg.Deferred.TaskTimeout.Std()),
		deferred.WithMetrics(m),
	)

	a.server = server.New(publicKey, r, a.deferred, serverOpts...)
	ready = true
	return a, nil
}

func openEphemeral(ctx context.Context, ec config.EphemeralConfig, a *app) (ephemeral.Store, error) {
	switch ec.Backend {
	case "redis":
		slog.Info("using redis ephemeral store", "addr", ec.RedisAddr)
		r, err := ephemeral.NewRedis(ctx, ephemeral.RedisOptions{
			Addr:      ec.RedisAddr,
			Password:  ec.RedisPassword,
			DB:        ec.RedisDB,
			KeyPrefix: ec.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return r.Close() })
		return r, nil

	default:
		mem := ephemeral.NewMemory()
		if err := mem.StartSweeper(ctx, ec.SweepCron); err != nil {
			return nil, err
		}
		return mem, nil
	}
}
