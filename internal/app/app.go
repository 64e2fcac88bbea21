package app

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/cache"
	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/config"
	"github.com/cvfolio/cvfolio-portal/internal/docstore"
	"github.com/cvfolio/cvfolio-portal/internal/handlers"
	"github.com/cvfolio/cvfolio-portal/internal/interfaces"
	"github.com/cvfolio/cvfolio-portal/internal/metrics"
	"github.com/cvfolio/cvfolio-portal/internal/seed"
	"github.com/cvfolio/cvfolio-portal/internal/session"
	"github.com/cvfolio/cvfolio-portal/internal/storage"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Storage    interfaces.StorageManager
	Cache      *cache.PortfolioCache
	Provider   authprovider.Provider
	Store      session.DocumentStore
	Reconciler *session.Reconciler
	Autosaver  *session.Autosaver

	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	// HTTP handlers
	AuthHandler    *handlers.AuthHandler
	ProfileHandler *handlers.ProfileHandler
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler

	stopRefresh func()
}

// New initializes the application with all dependencies.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	env := strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.IsDevMode() {
		logger.Warn().Msg("RUNNING IN DEV MODE — local auth and local document store enabled, do not use in production")
	} else if env != "prod" && env != "" {
		logger.Warn().
			Str("environment", cfg.Environment).
			Msg("unrecognized environment value, defaulting to prod behavior")
	}

	storageMgr, err := storage.NewStorageManager(logger, cfg)
	if err != nil {
		return nil, err
	}
	a.Storage = storageMgr
	a.Cache = cache.New(storageMgr.KeyValueStorage(), logger)

	a.Registry = prometheus.NewRegistry()
	a.Metrics = metrics.NewCollector(a.Registry)

	if cfg.IsDevMode() {
		dev := authprovider.NewDevProvider()
		seed.DevUsers(dev, logger)
		a.Provider = dev
		a.Store = docstore.NewLocal(storageMgr.KeyValueStorage(), logger)
	} else {
		remote := authprovider.NewRemoteProvider(cfg.Auth.URL, logger)
		stop := make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			remote.StartRefresh(ctx, 30*time.Second)
			close(stop)
		}()
		a.stopRefresh = func() {
			cancel()
			<-stop
		}
		a.Provider = remote
		a.Store = docstore.New(cfg.Store.URL, time.Duration(cfg.Store.TimeoutSeconds)*time.Second, logger)
	}

	a.Reconciler = session.New(a.Provider, a.Store, a.Cache, logger, a.Metrics)
	a.Reconciler.Start(context.Background())
	a.Autosaver = session.NewAutosaver(a.Reconciler, session.DefaultAutosaveIdle, logger)

	a.initHandlers()

	logger.Info().Msg("application initialization complete")

	return a, nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	jwtSecret := []byte(a.Config.Auth.JWTSecret)
	secureOnly := !a.Config.IsDevMode()

	a.AuthHandler = handlers.NewAuthHandler(a.Logger, a.Reconciler, jwtSecret, secureOnly)
	a.ProfileHandler = handlers.NewProfileHandler(a.Logger, a.Reconciler, a.Autosaver, jwtSecret)
	a.HealthHandler = handlers.NewHealthHandler(a.Logger)
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.Autosaver != nil {
		a.Autosaver.Stop()
	}
	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}
	if a.stopRefresh != nil {
		a.stopRefresh()
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
