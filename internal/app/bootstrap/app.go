package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medassist/internal/api/router"
	"github.com/wolfman30/medassist/internal/appointments"
	appconfig "github.com/wolfman30/medassist/internal/config"
	"github.com/wolfman30/medassist/internal/conversation"
	"github.com/wolfman30/medassist/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medassist/internal/http/middleware"
	"github.com/wolfman30/medassist/internal/observability/metrics"
	"github.com/wolfman30/medassist/internal/reports"
	"github.com/wolfman30/medassist/internal/tools"
	"github.com/wolfman30/medassist/pkg/logging"
)

// App is the fully wired API server.
type App struct {
	Handler      http.Handler
	Conversation *conversation.Service
	Appointments *appointments.Service
	Status       handlers.Integrations

	closers []func() error
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build wires every component from configuration. ctx bounds background work
// such as rate-limiter cleanup and should live as long as the server.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	chatMetrics := metrics.NewChatMetrics(reg)

	var awsCfg *aws.Config
	if awsEnabled(cfg) {
		loaded, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: load aws config: %w", err))
		}
		awsCfg = &loaded
	}

	storage, err := BuildStorage(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, storage.Close)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
	}
	sessions, sessionBackend := BuildSessionStore(ctx, redisClient, cfg)

	llmSetup, err := BuildLLM(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, llmSetup.Close)

	appts := appointments.NewService(storage.Appointments, logger,
		appointments.WithLocation(cfg.ClinicLocation()),
		appointments.WithSlotDuration(cfg.SlotDuration),
	)
	notifier := BuildNotifier(ctx, cfg, awsCfg, chatMetrics, logger)

	var archiver *reports.Archiver
	if bucket := strings.TrimSpace(cfg.ReportsS3Bucket); bucket != "" && awsCfg != nil {
		archiver = reports.NewArchiver(s3.NewFromConfig(*awsCfg), bucket, logger)
	}
	reportSvc := reports.NewService(appts, notifier, archiver, logger)

	dispatcher := tools.NewDispatcher(logger, storage.Audit, chatMetrics, tools.Default(tools.Deps{
		Appointments: appts,
		Notifier:     notifier,
		Reports:      reportSvc,
	})...)
	chat := conversation.NewService(llmSetup.Client, sessions, dispatcher, appts, conversation.Options{
		MaxRounds:  cfg.LLMMaxRounds,
		LLMTimeout: cfg.LLMTimeout,
		Metrics:    chatMetrics,
	}, logger)

	app.Status = handlers.Integrations{
		AuthMode:       string(httpmiddleware.ResolveAuthMode(cfg.AuthJWTSecret)),
		PublicAuthKey:  strings.TrimSpace(cfg.AuthPublicKey) != "",
		LLMPrimary:     llmSetup.Primary,
		LLMFallback:    llmSetup.Fallback,
		Database:       storage.Backend,
		Sessions:       sessionBackend,
		AuditLog:       storage.AuditBackend,
		ReportsArchive: archiver.Enabled(),
	}

	if app.Status.AuthMode == string(httpmiddleware.AuthOpen) {
		logger.Warn("AUTH_JWT_SECRET not set; request roles are trusted as sent (development only)")
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.ChatRateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, cfg.ChatRateLimitRPS, cfg.ChatRateLimitBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Chat:               handlers.NewChatHandler(chat, logger).WithLimiter(limiter),
		Clinic:             handlers.NewClinicHandler(appts, reportSvc, logger),
		Health:             handlers.NewHealthHandler(app.Status, notifier, storage.Ping),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthSecret:         cfg.AuthJWTSecret,
		ChatLimiter:        limiter,
	})
	app.Conversation = chat
	app.Appointments = appts

	logger.Info("application wired",
		"auth_mode", app.Status.AuthMode,
		"database", app.Status.Database,
		"sessions", app.Status.Sessions,
		"llm_primary", app.Status.LLMPrimary,
	)
	return app, nil
}
