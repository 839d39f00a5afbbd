package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Muhammad-NSQ/Dlens/internal/config"
	"github.com/Muhammad-NSQ/Dlens/internal/infrastructure"
	"github.com/Muhammad-NSQ/Dlens/internal/license"
	"github.com/Muhammad-NSQ/Dlens/internal/security"
	"github.com/Muhammad-NSQ/Dlens/internal/services"
	transport "github.com/Muhammad-NSQ/Dlens/internal/transport/http"
)

const AppName = "Dlens License Daemon"

// Application is the dependency container for the daemon
type Application struct {
	Config       *config.Config
	Logger       *slog.Logger
	Telemetry    *infrastructure.Telemetry
	Client       *license.Client
	StateManager *license.StateManager
	Server       *http.Server
}

// envTokenAuth supplies a static bearer token from the environment for
// authority calls
type envTokenAuth struct {
	token string
}

func (a envTokenAuth) AuthHeader(ctx context.Context) (string, error) {
	return "Bearer " + a.token, nil
}

// NewApplication wires configuration, logging, telemetry, the license
// subsystem, and the HTTP server
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", transport.Version),
	)

	paths, err := config.GetPaths(cfg.Paths.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	telemetry, err := infrastructure.InitializeTelemetry()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	secret, err := security.NewKeyStore(cfg.Paths.KeyFile).GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to load machine secret: %w", err)
	}

	var auth license.AuthProvider
	if token := os.Getenv("DLENS_LICENSE_TOKEN"); token != "" {
		auth = envTokenAuth{token: token}
	}

	cache := license.NewCache(cfg.Paths.CacheFile, secret, logger)
	client := license.NewClient(
		license.ClientConfig{
			ServerURL:      cfg.License.ServerURL,
			RequestTimeout: cfg.License.RequestTimeout,
		},
		auth,
		cache,
		secret,
		security.NewFingerprintManager(),
		logger,
	)

	metrics, err := license.NewMetrics(telemetry.Meter())
	if err != nil {
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}
	client.SetMetrics(metrics)

	manager := license.NewStateManager(client, license.StateConfig{
		SyncInterval: cfg.License.SyncInterval,
		GracePeriod:  time.Duration(cfg.License.GracePeriodDays) * 24 * time.Hour,
		StatePath:    cfg.Paths.StateFile,
	}, secret, logger)
	manager.Resume()

	router := transport.NewRouter(transport.RouterDeps{
		Config:         cfg,
		LicenseService: services.NewLicenseService(manager, client, logger),
		StateManager:   manager,
		Features:       client.Features(),
		Telemetry:      telemetry,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:       cfg,
		Logger:       logger,
		Telemetry:    telemetry,
		Client:       client,
		StateManager: manager,
		Server:       server,
	}, nil
}

// Run starts the sync loop and HTTP server, then blocks until shutdown
// completes. The state manager worker is joined before Run returns.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StateManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start license sync: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	a.StateManager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if telErr := a.Telemetry.Shutdown(shutdownCtx); telErr != nil {
		a.Logger.Warn("telemetry shutdown failed", slog.String("error", telErr.Error()))
	}
	infrastructure.CloseLogFile()

	a.Logger.Info("application stopped")
	return err
}
