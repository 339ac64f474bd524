package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/api"
	"github.com/thuinanutshell/ux-interviewer/config"
	"github.com/thuinanutshell/ux-interviewer/features"
	"github.com/thuinanutshell/ux-interviewer/jwtauth"
	"github.com/thuinanutshell/ux-interviewer/notify"
	"github.com/thuinanutshell/ux-interviewer/oauth"
	"github.com/thuinanutshell/ux-interviewer/realtime"
	"github.com/thuinanutshell/ux-interviewer/storage"
)

// App is the composed application. Every component is reachable from here;
// nothing is held in package-level state.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	DB     *storage.SQLite
	Tokens *jwtauth.Manager
	Broker realtime.Broker
	Hub    *realtime.Hub
	OAuth  *oauth.Registry
	Server *api.Server
	Email  *notify.EmailService

	opts options

	serviceWg    *sync.WaitGroup
	shutdownOnce sync.Once
}

type options struct {
	logger       *zap.Logger
	broker       realtime.Broker
	discoveryURL string
	emailURL     string
	modules      func(features.Deps) []api.Module
}

// Option customizes NewApp.
type Option func(*options)

// WithLogger uses logger instead of the console logger built by InitLogger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBroker uses broker instead of one derived from MessageQueueURL.
func WithBroker(broker realtime.Broker) Option {
	return func(o *options) { o.broker = broker }
}

// WithDiscoveryURL overrides the Google discovery document location.
func WithDiscoveryURL(url string) Option {
	return func(o *options) { o.discoveryURL = url }
}

// WithEmailEndpoint overrides the SendGrid API endpoint.
func WithEmailEndpoint(url string) Option {
	return func(o *options) { o.emailURL = url }
}

// WithModules replaces the default feature module set.
func WithModules(fn func(features.Deps) []api.Module) Option {
	return func(o *options) { o.modules = fn }
}

// NewApp validates cfg and composes the application in a fixed order:
// persistence, token validation, real-time transport, OAuth registry, HTTP
// server, email service, then feature modules. A failing step is logged,
// everything opened so far is closed, and the error is returned.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{
		Config:    cfg,
		serviceWg: &sync.WaitGroup{},
		opts: options{
			discoveryURL: oauth.GoogleDiscoveryURL,
			modules:      features.All,
		},
	}
	for _, opt := range opts {
		opt(&app.opts)
	}

	if app.opts.logger != nil {
		app.Logger = app.opts.logger
	} else {
		logger, _, err := InitLogger(cfg.Debug)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		app.Logger = logger
	}
	app.Sugar = app.Logger.Sugar()

	if err := cfg.Validate(); err != nil {
		app.Sugar.Errorw("Invalid configuration", "error", err)
		return nil, err
	}
	LogConfig(cfg, app.Sugar)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"persistence", app.initDatabase},
		{"token validation", app.initTokens},
		{"real-time transport", app.initTransport},
		{"oauth", app.initOAuth},
		{"http server", app.initServer},
		{"email service", app.initEmail},
		{"modules", app.registerModules},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			app.Sugar.Errorw("Error initializing application", "step", step.name, "error", err)
			app.release()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	app.Sugar.Info("Application initialized")
	return app, nil
}

func (a *App) initDatabase(_ context.Context) error {
	dbPath, err := a.Config.DatabasePath()
	if err != nil {
		return err
	}
	db, err := storage.NewSQLite(dbPath, a.Sugar)
	if err != nil {
		a.Sugar.Error(ClassifySQLiteError(err, dbPath))
		return err
	}
	a.DB = db
	return nil
}

func (a *App) initTokens(_ context.Context) error {
	tokens, err := jwtauth.NewManager(
		a.Config.JWTSecretKey,
		a.Config.JWTRefreshSecretKey,
		a.Config.AccessTokenTTL,
		a.Config.RefreshTokenTTL,
	)
	if err != nil {
		return err
	}
	a.Tokens = tokens
	return nil
}

func (a *App) initTransport(ctx context.Context) error {
	broker := a.opts.broker
	if broker == nil {
		b, err := newBroker(ctx, a.Config.MessageQueueURL, a.Config.IsProduction(), a.Sugar)
		if err != nil {
			return err
		}
		broker = b
	}
	a.Broker = broker

	hub := realtime.NewHub(broker, a.Sugar, realtime.DefaultOptions())
	configureWebsocket(hub, a.Sugar)
	if err := hub.Start(ctx); err != nil {
		return err
	}
	a.Hub = hub
	return nil
}

// newBroker returns a Redis broker for a redis URL and a process-local one
// for an empty or "local" URL. An unreachable queue falls back to the local
// broker outside production; in production it is a startup error.
func newBroker(ctx context.Context, url string, production bool, sugar *zap.SugaredLogger) (realtime.Broker, error) {
	if url == "" || url == config.LocalMessageQueue {
		sugar.Warn("No message queue configured: real-time events stay within this process")
		return realtime.NewLocalBroker(), nil
	}

	broker, err := realtime.NewRedisBroker(url, realtime.DefaultChannel, sugar)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := broker.Ping(pingCtx); err != nil {
		_ = broker.Close()
		if production {
			sugar.Error(ClassifyBrokerError(err, url))
			return nil, fmt.Errorf("message queue unreachable: %w", err)
		}
		sugar.Warn(ClassifyBrokerError(err, url))
		sugar.Warnw("Message queue unreachable: real-time events stay within this process", "url", url)
		return realtime.NewLocalBroker(), nil
	}
	sugar.Infow("Message queue connected", "url", url)
	return broker, nil
}

// configureWebsocket registers the lifecycle and error handlers. They only
// log; the connection stays open after an error.
func configureWebsocket(t realtime.Transport, sugar *zap.SugaredLogger) {
	t.OnError(func(c *realtime.Conn, err error) {
		sugar.Errorw("WebSocket error", "sid", c.ID(), "error", err)
	})
	t.OnDefaultError(func(c *realtime.Conn, err error) {
		sugar.Errorw("WebSocket default error", "sid", c.ID(), "error", err)
	})
	t.OnConnect(func(c *realtime.Conn) {
		sugar.Infow("Client connected to WebSocket", "sid", c.ID(), "remote_addr", c.RemoteAddr())
	})
	t.OnDisconnect(func(c *realtime.Conn) {
		sugar.Infow("Client disconnected from WebSocket", "sid", c.ID())
	})
}

func (a *App) initOAuth(_ context.Context) error {
	registry := oauth.NewRegistry(a.Config.InsecureTransport, a.Sugar)
	client, err := registry.Register(oauth.ProviderConfig{
		Name:              oauth.GoogleProvider,
		ClientID:          config.Value(a.Config.GoogleClientID),
		ClientSecret:      config.Value(a.Config.GoogleClientSecret),
		ServerMetadataURL: a.opts.discoveryURL,
		Scopes:            oauth.GoogleScopes,
		Prompt:            oauth.PromptSelectAccount,
		RedirectURL:       a.Config.BaseURL + "/auth/google/callback",
	})
	if err != nil {
		return err
	}
	if !client.Configured() {
		a.Sugar.Warn("Google OAuth credentials missing: sign-in endpoints will answer 503")
	}
	a.OAuth = registry
	return nil
}

func (a *App) initServer(_ context.Context) error {
	server := api.NewServer(a.Config, a.Sugar)
	server.HandleWebSocket(a.Hub)
	server.AddHealthCheck("database", a.DB.HealthCheck)
	if pinger, ok := a.Broker.(interface{ Ping(context.Context) error }); ok {
		server.AddHealthCheck("message_queue", pinger.Ping)
	}
	a.Server = server
	return nil
}

func (a *App) initEmail(_ context.Context) error {
	a.Email = notify.NewEmailService(notify.EmailConfig{
		SenderEmail:  a.Config.SenderEmail,
		APIKey:       a.Config.SendGridAPIKey,
		SupportEmail: a.Config.SupportEmail,
		Endpoint:     a.opts.emailURL,
	}, a.Sugar)
	return nil
}

func (a *App) registerModules(_ context.Context) error {
	deps := features.Deps{
		Config:      a.Config,
		Logger:      a.Sugar,
		Tokens:      a.Tokens,
		OAuth:       a.OAuth,
		Users:       storage.NewSQLiteUserStorage(a.DB),
		Invitations: storage.NewSQLiteInvitationStorage(a.DB),
		Mailer:      a.Email,
		Events:      a.Hub,
	}
	for _, m := range a.opts.modules(deps) {
		if err := a.Server.Mount(m); err != nil {
			return err
		}
	}
	return nil
}

// release closes whatever NewApp opened before failing.
func (a *App) release() {
	if a.Server != nil {
		_ = a.Server.Stop(context.Background())
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.Broker != nil {
		_ = a.Broker.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// Handler returns the HTTP handler, for embedding or tests.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// InitializeDatabase creates missing tables.
func (a *App) InitializeDatabase(ctx context.Context) error {
	if err := a.DB.CreateAll(ctx); err != nil {
		a.Sugar.Errorw("Error creating database tables", "error", err)
		return err
	}
	a.Sugar.Info("Database tables created successfully")
	return nil
}

// Start binds the configured port and serves in the background.
func (a *App) Start(_ context.Context) error {
	addr := ":" + strconv.Itoa(a.Config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.Sugar.Errorw("Failed to bind API server", "addr", addr, "error", err)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return a.Serve(ln)
}

// Serve serves on ln in the background.
func (a *App) Serve(ln net.Listener) error {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		a.Sugar.Infof("API server started on %s", ln.Addr())
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server error: %v", err)
		}
	}()
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components. It is safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.Sugar.Info("Shutting down...")

		a.Sugar.Info("Phase 1: Stopping API server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Server.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}

		a.Sugar.Info("Phase 2: Stopping real-time transport...")
		a.Hub.Stop()
		if err := a.Broker.Close(); err != nil {
			a.Sugar.Errorw("Failed to close message queue connection", "error", err)
		}

		a.Sugar.Info("Phase 3: Waiting for service goroutines to complete...")
		done := make(chan struct{})
		go func() {
			a.serviceWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			a.Sugar.Warn("Service goroutine shutdown timed out")
		}

		a.Sugar.Info("Phase 4: Closing database connection...")
		if err := a.DB.Close(); err != nil {
			a.Sugar.Errorw("Failed to close database", "error", err)
		}

		a.Sugar.Info("Shutdown complete")
		_ = a.Logger.Sync()
	})
}
