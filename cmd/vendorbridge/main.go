// Command vendorbridge calls tenant-configured SaaS vendors through the
// vendor-neutral CRM, helpdesk, calendar, email and knowledge contracts.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Calendar time zones must resolve in scratch containers.

	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/transport"
	httphandler "github.com/ericfisherdev/vendorbridge/internal/adapter/driving/http"
	"github.com/ericfisherdev/vendorbridge/internal/application"
	"github.com/ericfisherdev/vendorbridge/internal/config"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, cleanup := newRootCommand()
	err := root.ExecuteContext(ctx)
	cleanup()
	stop()
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// app is the composition root shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sqlite.DB
	creds     *sqlite.CredentialRepo
	actions   *sqlite.ActionLogRepo
	providers *config.Providers
	registry  *provider.Registry
	factory   *application.ProviderFactory
	service   *application.IntegrationService
	recorder  *metrics.Recorder
	ops       *http.Server
}

func newRootCommand() (*cobra.Command, func()) {
	var (
		a           *app
		metricsAddr string
	)

	root := &cobra.Command{
		Use:           "vendorbridge",
		Short:         "Call CRM, helpdesk, calendar, email and knowledge vendors through one contract.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}
			a, err = newApp(cmd.Context(), cfg)
			return err
		},
	}
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address while the command runs")

	get := func() *app { return a }
	root.AddCommand(
		newProvidersCommand(get),
		newCredentialsCommand(get),
		newCallCommand(get),
		newBatchCommand(get),
		newAuditCommand(get),
	)

	return root, func() {
		if a != nil {
			a.Close()
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	// 1. Logging to stderr so command output stays machine-readable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Debug("config loaded",
		"db_path", cfg.DBPath,
		"providers_file", cfg.ProvidersFile,
		"http_timeout", cfg.HTTPTimeout,
		"provider_ttl", cfg.ProviderTTL,
		"secret_key_set", cfg.HasSecretKey(),
	)

	// 2. Open database and run migrations.
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db}

	// 3. Wire stores.
	a.creds = sqlite.NewCredentialRepo(db, cfg.SecretKey)
	a.actions = sqlite.NewActionLogRepo(db)

	// 4. Load tenant provider settings.
	if a.providers, err = config.LoadProviders(cfg.ProvidersFile); err != nil {
		a.Close()
		return nil, err
	}

	// 5. Assemble the vendor registry.
	if a.registry, err = buildRegistry(db); err != nil {
		a.Close()
		return nil, err
	}

	// 6. Metrics, plus the ops server when an address is configured.
	a.recorder = metrics.NewRecorder(true)
	if cfg.MetricsAddr != "" {
		a.serveOps(cfg.MetricsAddr)
	}

	// 7. Factory and the audit-recording service on top of it.
	a.factory = application.NewProviderFactory(application.FactoryConfig{
		Registry:    a.registry,
		Credentials: a.creds,
		Settings:    a.providers,
		Transport:   transport.NewClient(nil, cfg.HTTPTimeout, logger),
		Observer:    a.recorder,
		Logger:      logger,
		TTL:         cfg.ProviderTTL,
	})
	a.service = application.NewIntegrationService(a.factory, a.providers, a.actions, logger)

	return a, nil
}

func (a *app) serveOps(addr string) {
	h := httphandler.NewHandler(a.db, a.registry, a.logger)
	a.ops = &http.Server{
		Addr:              addr,
		Handler:           httphandler.NewServeMux(h, metrics.Handler(a.recorder.Registry()), a.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("ops server starting", "addr", addr)
		if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server error", "error", err)
		}
	}()
}

// Close stops the ops server and closes the database.
func (a *app) Close() {
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Error("ops server shutdown error", "error", err)
		}
		cancel()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
