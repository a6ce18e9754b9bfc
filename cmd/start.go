package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stock-sync/core/config"
	"stock-sync/core/console"
	"stock-sync/core/database"
	"stock-sync/core/inventory"
	"stock-sync/core/loader"
	"stock-sync/core/logger"
	"stock-sync/core/middleware/auth"
	"stock-sync/core/middleware/rayid"
	"stock-sync/core/storage"
	"stock-sync/core/transport"
	"stock-sync/core/translate"
	"stock-sync/feature/agent"
	"stock-sync/feature/bridge"
	"stock-sync/feature/control"
	"stock-sync/feature/history"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var noConsole bool

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the synchronization agent",
	Long: `Starts the control loop, the remote call workers and, when enabled,
the HTTP control API. Commands are also read from standard input.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&noConsole, "no-console", false, "Do not read commands from standard input")
	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logg, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logg.Sync()
	zap.ReplaceGlobals(logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
		logg.Warn("Bucket check failed, remote calls will retry", zap.Error(err))
	}

	remotes := make(map[inventory.Service]transport.Remote)
	for _, svc := range cfg.Agent.Services() {
		remotes[svc] = bridge.New(client, cfg.Storage.Bucket, cfg.Storage.Region, svc, cfg.Bridge, logg)
	}
	dispatcher := transport.NewDispatcher(remotes, cfg.Transport, logg)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	opts := agent.Options{
		Dispatcher: dispatcher,
		Backup:     agent.NewObjectBackup(client, cfg.Storage.Bucket, "backups", cfg.Agent.BackupKeep),
		Logger:     logg,
	}

	if cfg.Agent.SecondaryEnabled {
		if err := os.MkdirAll(cfg.Agent.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		cache, err := translate.Open(cfg.Agent.Paths().Translate, logg)
		if err != nil {
			return err
		}
		defer cache.Close()
		opts.Translate = cache
	}

	var reports control.ReportLister
	if store := openHistory(ctx, cfg, logg); store != nil {
		opts.Recorder = store
		reports = store
	}

	ag, err := agent.New(cfg.Agent, opts)
	if err != nil {
		return err
	}

	httpCommands := make(chan string, 8)
	sources := []<-chan string{httpCommands}
	if !noConsole {
		sources = append(sources, console.Lines(ctx, os.Stdin, logg))
	}
	lines := console.Merge(ctx, sources...)

	var app *fiber.App
	if cfg.Server.Enabled {
		app, err = newServer(cfg, logg, control.NewFeature(ag, httpCommands, reports, true, logg))
		if err != nil {
			return err
		}
		go func() {
			logg.Info("Starting control API", zap.String("addr", cfg.Server.Addr()))
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				logg.Error("Control API stopped", zap.Error(err))
			}
		}()
	}

	logg.Info("Agent started", zap.Int("services", len(remotes)))
	runErr := ag.Run(ctx, lines)

	logg.Info("Shutting down...")
	if app != nil {
		_ = app.Shutdown()
	}
	if errors.Is(runErr, agent.ErrFatal) {
		return runErr
	}
	return nil
}

// openHistory connects the sync report database. History is optional: any
// failure is logged and the agent runs without it.
func openHistory(ctx context.Context, cfg *config.Config, logg *zap.Logger) *history.Store {
	if !cfg.Database.Enabled {
		return nil
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logg.Warn("Optional database connection failed", zap.Error(err))
		return nil
	}
	store := history.NewStore(db, logg)
	if err := store.Migrate(ctx); err != nil {
		logg.Warn("Sync history disabled", zap.Error(err))
		return nil
	}
	logg.Info("Sync history enabled", zap.String("driver", cfg.Database.Driver))
	return store
}

// newServer builds the control API with its middleware chain.
func newServer(cfg *config.Config, logg *zap.Logger, features ...loader.Feature) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// RayID first so every log line of a request can be traced.
	app.Use(rayid.New())
	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})
	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

	mgr := loader.NewManager(logg)
	for _, f := range features {
		mgr.Register(f)
	}
	loaded, err := mgr.LoadAll(app)
	if err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}
	logg.Debug("Features loaded", zap.Strings("features", loaded))
	return app, nil
}
