package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/internal/alert"
	"github.com/vigilhq/vigil/internal/browser"
	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/diagnose"
	"github.com/vigilhq/vigil/internal/events"
	"github.com/vigilhq/vigil/internal/incident"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/runner"
	"github.com/vigilhq/vigil/internal/schedule"
	"github.com/vigilhq/vigil/internal/server"
	"github.com/vigilhq/vigil/internal/store"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

type vigil struct {
	cfg        *config.Config
	store      *store.Store
	hub        *events.Hub
	chrome     *browser.Chrome
	scheduler  *schedule.Scheduler
	apiServer  *server.Server
	httpServer *http.Server
	stopSched  context.CancelFunc
	schedDone  chan struct{}
	quit       chan os.Signal
}

var (
	ErrOpenStore     = errors.New("failed to open store")
	ErrMigrateSchema = errors.New("failed to migrate schema")
	ErrSeedStore     = errors.New("failed to seed store")
	ErrCreateDiag    = errors.New("failed to create diagnoser")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &vigil{
		cfg:       cfg,
		schedDone: make(chan struct{}),
		quit:      make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *vigil) run() error {
	if err := s.initializeStore(); err != nil {
		return err
	}

	diag, err := s.initializeDiagnoser()
	if err != nil {
		return err
	}

	s.initializeEngine()
	s.startServer(diag)

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *vigil) setupLogging() {
	level := log.Level(s.cfg.LogLevel)

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Vigil starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort),
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Duration("alert_cooldown", s.cfg.AlertCooldown),
		slog.Bool("slack_enabled", s.cfg.SlackEnabled()),
		slog.Bool("email_enabled", s.cfg.EmailEnabled()),
		slog.Bool("diagnosis_enabled", s.cfg.GeminiAPIKey != ""))
}

func (s *vigil) initializeStore() error {
	ctx := context.Background()

	st, err := store.New(ctx, s.cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenStore, err)
	}
	s.store = st

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return fmt.Errorf("%w: %w", ErrMigrateSchema, err)
	}
	if err := st.Seed(ctx); err != nil {
		st.Close()
		return fmt.Errorf("%w: %w", ErrSeedStore, err)
	}
	return nil
}

func (s *vigil) initializeDiagnoser() (diagnose.Diagnoser, error) {
	if s.cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	diag, err := diagnose.NewGeminiDiagnoser(
		context.Background(), s.cfg.GeminiAPIKey,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateDiag, err)
	}
	return diag, nil
}

func (s *vigil) initializeEngine() {
	logger := slog.Default()
	s.hub = events.NewHub(logger)

	notifier := alert.NewDispatcher(logger, s.alertChannels()...)
	incidents := incident.NewManager(
		s.store, notifier, s.hub, s.cfg.AlertCooldown, nil, logger,
	)
	rollup := metrics.NewAggregator(s.store, s.store, logger)
	sink := store.NewSink(s.store, incidents, rollup, s.hub, logger)

	schedCtx, cancel := context.WithCancel(context.Background())
	s.stopSched = cancel
	s.chrome = browser.NewChrome(schedCtx)

	executor := runner.NewExecutor(
		map[api.FlowKind]runner.Runner{
			api.FlowKindAPI: runner.NewAPIRunner(
				s.cfg.StepTimeout, logger,
			),
			api.FlowKindBrowser: runner.NewBrowserRunner(
				s.chrome, s.cfg.BrowserTimeout, logger,
			),
		},
		sink, s.hub, s.cfg.SubmitTimeout, logger,
	)

	s.scheduler = schedule.New(
		s.store, executor, s.cfg.PollInterval, nil, logger,
	)
	go func() {
		defer close(s.schedDone)
		s.scheduler.Run(schedCtx)
	}()
}

func (s *vigil) alertChannels() []alert.Channel {
	var channels []alert.Channel
	if s.cfg.SlackEnabled() {
		channels = append(channels, alert.NewSlackChannel(
			s.cfg.SlackWebhookURL, s.cfg.DashboardURL,
		))
	}
	if s.cfg.EmailEnabled() {
		channels = append(channels, alert.NewEmailChannel(
			s.cfg.SMTP, s.cfg.DashboardURL,
		))
	}
	return channels
}

func (s *vigil) startServer(diag diagnose.Diagnoser) {
	s.apiServer = server.NewServer(
		s.store, s.scheduler, s.hub, diag, app.Version,
	)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *vigil) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	// Stop launching runs and wait for in-flight ones to finish
	s.stopSched()
	select {
	case <-s.schedDone:
	case <-ctx.Done():
		slog.Warn("Timed out waiting for in-flight runs")
	}

	s.chrome.Close()
	s.store.Close()

	slog.Info("Server exited")
}
