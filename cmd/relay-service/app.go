package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"surveyrelay/internal/config"
	"surveyrelay/internal/constants"
	"surveyrelay/internal/logger"
	"surveyrelay/internal/messaging"
	"surveyrelay/internal/notifier"
	"surveyrelay/internal/provider/meta"
	"surveyrelay/internal/provider/twilio"
	"surveyrelay/pkg/circuitbreaker"
	"surveyrelay/pkg/health"
	"surveyrelay/pkg/metrics"
	"surveyrelay/pkg/middleware"
	"surveyrelay/pkg/ratelimit"
	"surveyrelay/pkg/tracing"
)

const serviceName = "relay-service"

type App struct {
	config         *config.Config
	logger         logger.Logger
	service        *messaging.Service
	breakers       []*circuitbreaker.Wrapper
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterMessagingMetrics()
	metrics.RegisterHTTPMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize messaging service: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.initServer()
	return nil
}

func (a *App) initService(ctx context.Context) error {
	deps := messaging.Dependencies{
		Notifier: notifier.New(a.config.Email, a.logger),
		Logger:   a.logger,
	}

	switch a.config.Messaging.Provider {
	case config.ProviderTwilio:
		deps.TwilioClient = twilio.New(a.config.Twilio, a.newBreaker(constants.ServiceNameTwilio, twilio.IsClientError))
	default:
		deps.MetaClient = meta.New(a.config.Meta, a.newBreaker(constants.ServiceNameMeta, meta.IsClientError))
	}

	a.service = messaging.NewService(a.config, deps)
	if err := a.service.CheckConfigured(ctx); err != nil {
		return err
	}

	a.logger.InfowCtx(ctx, "Messaging provider configured", "provider", a.service.Provider())
	return nil
}

// newBreaker returns nil when breakers are disabled. Client errors (4xx) do
// not count as failures.
func (a *App) newBreaker(name string, isClientError func(error) bool) *circuitbreaker.Wrapper {
	cbCfg := a.config.CircuitBreaker
	if !cbCfg.Enabled {
		return nil
	}

	cb := circuitbreaker.NewWrapper(circuitbreaker.Config{
		Name:         name,
		MaxRequests:  cbCfg.MaxRequests,
		Interval:     cbCfg.Interval,
		Timeout:      cbCfg.Timeout,
		FailureRatio: cbCfg.FailureRatio,
		MinRequests:  cbCfg.MinRequests,
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	a.breakers = append(a.breakers, cb)
	return cb
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName)...)
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.MetricsMiddleware())

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             a.config.RateLimit.RPS,
			Burst:           a.config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.Middleware(ctx, rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	handler := messaging.NewHandler(a.service, a.config.Meta.VerifyToken, a.logger)
	handler.RegisterRoutes(router, a.routeGuards())

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewFuncChecker("messaging_provider", a.service.CheckConfigured))
	for _, cb := range a.breakers {
		healthRegistry.Register(health.NewCircuitBreakerChecker(cb))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.config.Server.SwaggerEnabled {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	a.router = router
	return nil
}

func (a *App) routeGuards() messaging.RouteGuards {
	sec := a.config.Security
	guards := messaging.RouteGuards{
		Trigger: []gin.HandlerFunc{
			middleware.IPAllowlist(sec.AllowedIPs, a.logger),
			middleware.BearerAuth(sec.TriggerAuthToken, a.logger),
		},
	}

	if a.config.Twilio.XToken != "" {
		guards.TwilioSurvey = append(guards.TwilioSurvey,
			middleware.HeaderToken(constants.HeaderTwilioToken, a.config.Twilio.XToken, a.logger))
	} else {
		a.logger.WarnwCtx(context.Background(), "Twilio Studio webhook is not protected, twilio.x_token is empty")
	}

	if a.config.Twilio.ValidateSignature {
		guards.TwilioStatus = append(guards.TwilioStatus, middleware.TwilioSignature(
			twilio.NewSignatureValidator(a.config.Twilio.AuthToken),
			a.config.Twilio.StatusCallbackURL,
			a.logger,
		))
	}

	return guards
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
