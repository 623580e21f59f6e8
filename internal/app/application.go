package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/rs/cors"

	"roomchat/internal/api"
	"roomchat/internal/config"
	"roomchat/internal/database"
	"roomchat/internal/encryption"
	"roomchat/internal/hub"
	"roomchat/internal/membership"
	"roomchat/internal/metrics"
	"roomchat/internal/router"
	"roomchat/internal/session"
	"roomchat/internal/websocket"
	"roomchat/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config *config.Config
	log    *slog.Logger

	store       interfaces.Store
	metrics     *metrics.Metrics
	rooms       *membership.Registry
	directory   *membership.Directory
	connections *websocket.Registry
	mirror      hub.Mirror
	messageHub  *hub.Hub
	controller  *session.Controller
	rateLimiter *router.RateLimiter
	apiServer   *api.Server
	httpServer  *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	serveErr chan error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Store -> Membership -> Connections -> Hub -> Controller -> Router -> HTTP
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = NewLogger(cfg.Log.Env, cfg.Log.Level, nil)
	}

	// STEP 1: Durable storage, migrated and validated
	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// STEP 2: Optional event mirror
	var mirror hub.Mirror = hub.NopMirror{}
	if cfg.Redis.Enabled() {
		redisMirror, err := hub.NewRedisMirror(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ChannelPrefix, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize redis mirror: %w", err)
		}
		mirror = redisMirror
	}

	// STEP 3: In-memory membership and connection tracking
	rooms := membership.NewRegistry(logger)
	directory := membership.NewDirectory()
	connections := websocket.NewRegistry()

	// STEP 4: Delivery to bound members only
	messageHub := hub.NewHub(membership.NewView(rooms, directory), connections, mirror, logger)

	// STEP 5: Room operations
	appMetrics := metrics.New()
	controller := session.NewController(rooms, directory, store, encryption.NewCipher(), messageHub, session.Options{
		HistoryLimit:     cfg.Chat.HistoryLimit,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		Logger:           logger,
		Metrics:          appMetrics,
	})

	// STEP 6: Frame dispatch with send rate limiting
	rateLimiter := router.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow)
	messageRouter := router.NewRouter(controller, messageHub, rateLimiter, logger)

	// STEP 7: Transport
	wsHandler := websocket.NewHandler(connections, messageRouter, websocket.HandlerConfig{
		ReadLimit:      cfg.WebSocket.ReadLimit,
		PongWait:       cfg.WebSocket.ReadTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, logger)

	// STEP 8: HTTP surface; CORS applies to the JSON API only
	apiServer := api.NewServer(rooms, store, logger)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}).Handler(apiServer)

	mux := http.NewServeMux()
	mux.Handle("/api/", corsHandler)
	mux.Handle("/health", corsHandler)
	mux.Handle("/metrics", appMetrics.Handler())
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		log:         logger.With("component", "app"),
		store:       store,
		metrics:     appMetrics,
		rooms:       rooms,
		directory:   directory,
		connections: connections,
		mirror:      mirror,
		messageHub:  messageHub,
		controller:  controller,
		rateLimiter: rateLimiter,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start listens on the configured address and serves in the background
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve starts background processing and serves HTTP on ln
// Hub starts first so room events can be mirrored as soon as clients connect
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		_ = ln.Close()
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		_ = ln.Close()
		return fmt.Errorf("failed to start message hub: %w", err)
	}
	if app.config.Chat.RateLimit > 0 {
		go app.rateLimiter.Run(runCtx, app.config.Chat.RateWindow)
	}

	app.listener = ln
	app.cancel = cancel
	app.serveErr = make(chan error, 1)

	go func() {
		err := app.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("http server error", "error", err)
			app.serveErr <- err
		}
		close(app.serveErr)
	}()

	app.log.Info("roomchat started", "addr", ln.Addr().String(), "driver", app.config.Database.Driver, "mirror", app.config.Redis.Enabled())
	return nil
}

// Done reports a fatal serve error, or closes when the server stops
func (app *Application) Done() <-chan error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.serveErr
}

// Addr returns the listening address once started, the configured one otherwise
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler returns the HTTP handler, for embedding or tests
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP -> Connections -> Hub -> Mirror -> Store
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down roomchat")

	var errs []error

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Hijacked WebSocket connections are not covered by Shutdown;
	// closing them runs each connection's disconnect cleanup
	app.connections.CloseAll()

	// STEP 3: Stop background processing
	app.mu.Lock()
	if app.cancel != nil {
		app.cancel()
	}
	app.mu.Unlock()
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub stop: %w", err))
	}

	// STEP 4: External resources
	if err := app.mirror.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mirror close: %w", err))
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		app.log.Error("shutdown finished with errors", "error", err)
		return err
	}
	app.log.Info("roomchat shutdown complete")
	return nil
}
