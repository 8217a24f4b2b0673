package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classhub/internal/api"
	"classhub/internal/auth"
	"classhub/internal/config"
	"classhub/internal/database"
	"classhub/internal/hub"
	"classhub/internal/registry"
	"classhub/internal/router"
	"classhub/internal/websocket"
	pkgdatabase "classhub/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config        *config.Config
	dbManager     *database.Manager
	registry      *registry.Registry
	messageRouter *router.Router
	messageHub    *hub.Hub
	wsHandler     *websocket.Handler
	apiServer     *api.Server
	httpServer    *http.Server
	cancelMaint   context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Auth → Registry → Router → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize database manager (foundation layer)
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 1.5: Apply database migrations to ensure schema is up to date
	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: Initialize identity resolution and access control
	resolver := auth.NewResolver(dbManager, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, cfg.Auth.LookupTimeout)
	authorizer := auth.NewAuthorizer(dbManager, cfg.Auth.LookupTimeout)

	// STEP 3: Initialize the session registry for membership tracking
	reg := registry.NewRegistry()

	// STEP 4: Initialize message router with the database as event sink
	messageRouter := router.NewRouter(reg, dbManager)

	// STEP 5: Initialize hub for membership orchestration
	messageHub := hub.NewHub(reg, messageRouter)

	// STEP 6: Initialize WebSocket handler (admission pipeline)
	wsHandler := websocket.NewHandler(messageHub, resolver, authorizer, cfg.WebSocket)

	// STEP 7: Initialize API server with all business dependencies
	apiServer := api.NewServer(dbManager, resolver, authorizer, reg, wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		dbManager:     dbManager,
		registry:      reg,
		messageRouter: messageRouter,
		messageHub:    messageHub,
		wsHandler:     wsHandler,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting ClassHub application on %s", app.httpServer.Addr)

	// Background maintenance (rate limiter pruning) stops with the app
	maintCtx, cancel := context.WithCancel(context.Background())
	app.cancelMaint = cancel
	app.wsHandler.StartMaintenance(maintCtx, app.messageRouter)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("ClassHub application started successfully")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → maintenance → database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down ClassHub application")

	// STEP 1: Stop accepting new connections; in-flight handlers drain
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Stop background maintenance
	if app.cancelMaint != nil {
		app.cancelMaint()
	}

	// STEP 3: Close database connections
	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("ClassHub application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
