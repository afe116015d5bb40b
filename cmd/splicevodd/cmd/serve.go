package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/splicevod/splicevod/internal/audit"
	"github.com/splicevod/splicevod/internal/config"
	"github.com/splicevod/splicevod/internal/httpapi"
	"github.com/splicevod/splicevod/internal/httpapi/handlers"
	"github.com/splicevod/splicevod/internal/idtoken"
	"github.com/splicevod/splicevod/internal/objectstore"
	"github.com/splicevod/splicevod/internal/observability"
	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/registry"
	"github.com/splicevod/splicevod/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the splicevodd origin server",
	Long: `Start the splicevodd HTTP server.

The server accepts POST /manifest requests describing which assets to
splice into a session, then serves that session's DASH MPD or HLS
playlists, init segments and media chunks, remuxing each chunk from the
object store only when a player requests it.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		cfg.Logging.Format = f.Value.String()
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	store, err := newObjectStore(cmd.Context(), cfg.Store)
	if err != nil {
		return fmt.Errorf("initializing object store: %w", err)
	}

	recorder, retentionJob, err := newAuditRecorder(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing audit database: %w", err)
	}

	reg := registry.New()
	defer reg.Stop()

	plan := planner.New(objectstore.MetadataReaderAdapter{Store: store}, idtoken.New())

	serverConfig := httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := httpapi.NewServer(serverConfig, logger, version.Version)

	h := handlers.New(plan, reg, store, recorder, cfg.Session.BaseURL, logger)
	h.Register(server.API())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := retentionJob.Start(ctx); err != nil {
		return fmt.Errorf("starting audit retention job: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting splicevodd",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// newObjectStore builds the Store backend named by cfg.Driver. "memory"
// exists for local development and tests against this binary; "s3"
// talks to any S3-compatible endpoint.
func newObjectStore(ctx context.Context, cfg config.StoreConfig) (objectstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		return objectstore.NewMemoryStore(), nil
	case "s3":
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown store.driver %q", cfg.Driver)
	}
}

// newAuditRecorder opens the audit database and its retention job. A
// connection failure is fatal at startup: the operator asked for an
// audit trail and silently running without one would hide that.
func newAuditRecorder(cfg *config.Config, logger *slog.Logger) (*audit.Recorder, *audit.RetentionJob, error) {
	db, err := audit.New(audit.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		LogLevel:        cfg.Database.LogLevel,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		Retention:       cfg.Audit.Retention,
	}, logger, nil)
	if err != nil {
		return nil, nil, err
	}

	recorder := audit.NewRecorder(db, logger)
	retentionJob := audit.NewRetentionJob(db, cfg.Audit.Retention, logger)
	return recorder, retentionJob, nil
}
