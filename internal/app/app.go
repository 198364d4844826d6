package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tunlink/internal/api"
	"tunlink/internal/catalog"
	"tunlink/internal/config"
	"tunlink/internal/core"
	"tunlink/internal/notify"
	"tunlink/internal/reconcile"
	"tunlink/internal/storage"
	"tunlink/internal/storage/sqlite"
)

// App wires the session coordinator together: configuration, storage,
// the API client, the catalog, the controller and the reconciler.
type App struct {
	Config     *config.Config
	Storage    storage.Storage
	API        *api.Client
	Catalog    *catalog.Cache
	Store      *core.StateStore
	Controller *core.Controller
	Reconciler *reconcile.Reconciler
}

// New creates a new application instance
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".local", "share", "tunlink")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := sqlite.New(filepath.Join(dataDir, "tunlink.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// A persisted API endpoint override wins over the config file.
	baseURL := cfg.APIBaseURL
	if override, err := store.GetSetting(context.Background(), storage.SettingAPIBaseURL); err == nil && override != "" {
		baseURL = override
	}

	client := api.NewClient(api.ClientConfig{
		BaseURL:   baseURL,
		UserAgent: "Tunlink/1.0",
		Timeout:   cfg.RequestTimeout(),
	})

	serverCatalog := catalog.New(client)
	stateStore := core.NewStateStore()
	sink := notify.Multi{notify.LogSink{}, notify.NewHistorySink(store)}

	controller := core.NewController(client, serverCatalog, stateStore, sink, core.Options{
		CooldownWindow: cfg.Cooldown(),
		SettleDelay:    cfg.SettleDelay(),
		EndAttempts:    cfg.EndAttempts,
		EndRetryDelay:  cfg.EndRetryDelay(),
		RequestTimeout: cfg.RequestTimeout(),
	})

	reconciler, err := reconcile.New(client, stateStore, controller, sink, reconcile.Config{
		Interval:       cfg.ReconcileInterval(),
		RequestTimeout: cfg.RequestTimeout(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}
	controller.OnFailure(reconciler.TriggerNow)

	return &App{
		Config:     cfg,
		Storage:    store,
		API:        client,
		Catalog:    serverCatalog,
		Store:      stateStore,
		Controller: controller,
		Reconciler: reconciler,
	}, nil
}

// Close closes the application and releases resources
func (a *App) Close() error {
	if a.Reconciler != nil && a.Reconciler.IsRunning() {
		a.Reconciler.Stop()
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
