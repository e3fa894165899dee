package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-relay/internal/audit"
	"call-relay/internal/auth"
	"call-relay/internal/calls"
	"call-relay/internal/config"
	"call-relay/internal/events"
	"call-relay/internal/httpapi"
	"call-relay/internal/reporting"
	"call-relay/internal/telephony"
	"call-relay/internal/voiceagent"
	"call-relay/pkg/logger"
	"call-relay/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx); err != nil {
		slog.Error("api exited", "err", err)
		stop()
		os.Exit(1)
	}
}

// run wires the relay and serves until ctx is cancelled. Startup failures,
// including a port that cannot be bound, are returned.
func run(rootCtx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("dotenv load: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	providerHTTP := &http.Client{Timeout: cfg.Telephony.HTTPTimeout}

	dialer, err := newDialer(cfg, providerHTTP)
	if err != nil {
		return fmt.Errorf("telephony init: %w", err)
	}

	// Lifecycle observers: counters, audit trail and optional publishers.
	stats := reporting.NewService(time.Now())
	observers := calls.Observers{stats}

	auditRepo, closeAudit, err := newAuditRepo(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("audit init: %w", err)
	}
	defer closeAudit()
	observers = append(observers, audit.NewService(auditRepo, log))

	publishers, err := newPublishers(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("publisher init: %w", err)
	}
	for _, pub := range publishers {
		defer pub.Close()
		observers = append(observers, events.NewNotifier(pub, cfg.MQTT.TopicPrefix, log))
	}

	var trigger calls.AgentTrigger = calls.LogTrigger{Log: log}
	var sessions *voiceagent.SessionManager
	if cfg.VoiceAgent.Sessions {
		client := voiceagent.NewClient(voiceagent.Config{
			BaseURL:       cfg.VoiceAgent.BaseURL,
			SignedURLPath: cfg.VoiceAgent.SignedURLPath,
			APIKey:        cfg.VoiceAgent.APIKey,
			AgentID:       cfg.VoiceAgent.AgentID,
		}, providerHTTP)
		sessions = voiceagent.NewSessionManager(client, log)
		defer sessions.Close()
		trigger = sessions
	}

	store := calls.NewMemoryStore()
	go calls.RunEviction(rootCtx, store, cfg.Calls.RecordTTL, cfg.Calls.SweepInterval, time.Now, log)

	initiator := calls.NewInitiator(dialer, store, observers, log)
	initiator.ServerURL = cfg.App.ServerURL
	correlator := calls.NewCorrelator(store, trigger, observers, log)

	var callGuard gin.HandlerFunc
	if cfg.Auth.JWTSecret != "" {
		authManager, err := auth.NewManager(cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth init: %w", err)
		}
		callGuard = auth.RequireAccessToken(authManager)
	}

	h := httpapi.Handlers{
		Initiator:  initiator,
		Correlator: correlator,
		Store:      store,
		Reporting:  stats,
		Debug: httpapi.DebugInfo{
			Provider:        dialer.Name(),
			CallerIDPresent: cfg.Sipgate.CallerID != "",
			ServerURL:       cfg.App.ServerURL,
		},
		Answer: telephony.AnswerInstructions{
			Language:     cfg.Twilio.AnswerLanguage,
			PauseSeconds: cfg.Twilio.AnswerPause,
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.HTTP))
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, callGuard)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Bind before announcing so a busy port fails startup.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	log.Info("api listening",
		"addr", ln.Addr().String(),
		"env", cfg.App.Env,
		"provider", dialer.Name(),
		"server_url", cfg.App.ServerURL,
		"agent_sessions", cfg.VoiceAgent.Sessions,
	)
	return serve(rootCtx, srv, ln, 20*time.Second, log)
}

// serve runs srv on ln until ctx is cancelled or the server fails, then
// shuts it down within grace. A serve failure is returned.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, log *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("http server failed", "err", err)
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return <-serveErr
}

func newDialer(cfg config.Config, client *http.Client) (telephony.Dialer, error) {
	switch cfg.Telephony.Provider {
	case config.ProviderSipgate:
		return telephony.NewSipgateDialer(telephony.SipgateConfig{
			BaseURL:  cfg.Sipgate.BaseURL,
			TokenID:  cfg.Sipgate.TokenID,
			Token:    cfg.Sipgate.Token,
			CallerID: cfg.Sipgate.CallerID,
			DeviceID: cfg.Sipgate.DeviceID,
		}, client), nil
	case config.ProviderTwilio:
		return telephony.NewTwilioDialer(telephony.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		}), nil
	default:
		return nil, errors.New("unsupported telephony provider: " + cfg.Telephony.Provider)
	}
}

// newAuditRepo returns the Postgres repository when DB_HOST is set and the
// in-memory one otherwise. The returned func releases the connection pool.
func newAuditRepo(ctx context.Context, cfg config.Config) (audit.Repository, func(), error) {
	if !cfg.AuditDatabaseEnabled() {
		return audit.NewMemoryRepo(), func() {}, nil
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresOptions{})
	if err != nil {
		return nil, nil, err
	}
	repo := audit.NewPostgresRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, func() { _ = db.Close() }, nil
}

// newPublishers connects the configured lifecycle publishers. None is an
// acceptable outcome.
func newPublishers(ctx context.Context, cfg config.Config) ([]events.Publisher, error) {
	var out []events.Publisher

	if cfg.Redis.Host != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisOptions{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, events.NewRedisPublisher(rdb))
	}

	if cfg.MQTT.Broker != "" {
		pub, err := events.NewMQTTPublisher(events.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		if err != nil {
			for _, p := range out {
				_ = p.Close()
			}
			return nil, err
		}
		out = append(out, pub)
	}
	return out, nil
}
