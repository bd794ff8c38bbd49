package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/postbot/internal/authflow"
	"github.com/tyemirov/postbot/internal/content"
	"github.com/tyemirov/postbot/internal/platform"
	"github.com/tyemirov/postbot/internal/publisher"
	"github.com/tyemirov/postbot/internal/web"
	"github.com/tyemirov/postbot/pkg/triggertoken"
	webassets "github.com/tyemirov/postbot/web"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGenerator = func(ctx context.Context, configuration content.GeneratorConfig) (content.Generator, error) {
	return content.NewGenerator(ctx, configuration)
}

var buildGoogleVerifier = func(ctx context.Context, audience string, allowedEmails []string) (triggertoken.Verifier, error) {
	return triggertoken.NewGoogleVerifier(ctx, audience, allowedEmails)
}

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the authorization flow and the /post trigger over HTTP",
		PreRunE: prepareServeConfig,
		RunE:    runServe,
	}

	serveCmd.Flags().String("listen_addr", ":3000", "HTTP listen address")
	serveCmd.Flags().String("callback_url", "", "OAuth2 redirect URL registered with the X app, e.g. http://127.0.0.1:3000/callback")
	serveCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Origins allowed to call the API cross-origin; empty disables CORS")
	serveCmd.Flags().StringSlice("trigger_service_accounts", []string{}, "Google service accounts whose OIDC tokens may call /post")

	_ = viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("callback_url", serveCmd.Flags().Lookup("callback_url"))
	_ = viper.BindPFlag("cors_allowed_origins", serveCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("trigger_service_accounts", serveCmd.Flags().Lookup("trigger_service_accounts"))

	return serveCmd
}

func prepareServeConfig(command *cobra.Command, arguments []string) error {
	serveConfig, loadErr := LoadServeConfig()
	if loadErr != nil {
		return loadErr
	}
	command.SetContext(context.WithValue(commandContext(command), serveConfigContextKey, serveConfig))
	return nil
}

func commandContext(command *cobra.Command) context.Context {
	if existing := command.Context(); existing != nil {
		return existing
	}
	return context.Background()
}

func runServe(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(command)
	serveConfig, ok := ctx.Value(serveConfigContextKey).(ServeConfig)
	if !ok {
		return configError(configCodeUninitializedConfig, "serve configuration not prepared; PreRunE must execute before RunE")
	}

	store, releaseStore, storeErr := openCredentialStore(ctx, serveConfig.CredentialStoreURL)
	if storeErr != nil {
		return fmt.Errorf("%s: %w", configCodeCredentialStoreInit, storeErr)
	}
	defer releaseStore()
	logger.Info("credential store ready", zap.String("driver", storeDriver(store)))

	upstream := newUpstreamClient(serveConfig.UpstreamTimeout)
	generatorConfig := serveConfig.Generator
	generatorConfig.HTTPClient = upstream
	generator, generatorErr := buildGenerator(ctx, generatorConfig)
	if generatorErr != nil {
		return fmt.Errorf("%s: %w", configCodeGeneratorInit, generatorErr)
	}

	guards, guardErr := buildTriggerGuards(ctx, serveConfig)
	if guardErr != nil {
		return fmt.Errorf("%s: %w", configCodeTriggerVerifierInit, guardErr)
	}
	if len(guards) == 0 {
		logger.Warn("post trigger is unauthenticated", zap.String("code", "serve.trigger.open"))
	}

	metrics := authflow.NewCounterMetrics()
	oauthConfig := serveConfig.Provider.OAuth2Config()
	controller := authflow.NewController(store, oauthConfig, upstream, logger, metrics)
	refresher := authflow.NewRefreshManager(store, oauthConfig, upstream, logger, metrics)
	postPublisher := publisher.New(refresher, generator, publisher.PlatformPosters(serveConfig.PlatformBaseURL), serveConfig.Prompt, logger, metrics)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if len(serveConfig.CORSAllowedOrigins) > 0 {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serveConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return fmt.Errorf("%s: %w", configCodeInvalidCORSOrigins, corsErr)
		}
		router.Use(corsMiddleware)
	}

	router.GET("/", func(contextGin *gin.Context) {
		web.ServeEmbeddedPage(contextGin, webassets.FS, "index.html")
	})
	router.GET("/static/status.js", func(contextGin *gin.Context) {
		web.ServeEmbeddedStaticJS(contextGin, webassets.FS, "status.js")
	})

	authflow.MountAuthRoutes(router, controller, platform.NewResolver(serveConfig.PlatformBaseURL, upstream), logger)
	publisher.MountPostRoutes(router, postPublisher, guards...)
	web.MountStatusRoutes(router, store, metrics, logger)

	server := &http.Server{
		Addr:              serveConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", serveConfig.ListenAddr), zap.String("callback_url", serveConfig.Provider.RedirectURL))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// buildTriggerGuards returns the /post middleware; nil when no trigger auth is configured.
func buildTriggerGuards(ctx context.Context, serveConfig ServeConfig) ([]gin.HandlerFunc, error) {
	var verifiers []triggertoken.Verifier
	if len(serveConfig.TriggerSigningKey) > 0 {
		validator, err := triggertoken.New(triggertoken.Config{
			SigningKey: serveConfig.TriggerSigningKey,
			Audience:   serveConfig.TriggerAudience,
		})
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, validator)
	}
	if len(serveConfig.TriggerServiceAccounts) > 0 {
		googleVerifier, err := buildGoogleVerifier(ctx, serveConfig.TriggerAudience, serveConfig.TriggerServiceAccounts)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, googleVerifier)
	}
	if len(verifiers) == 0 {
		return nil, nil
	}
	return []gin.HandlerFunc{triggertoken.GinMiddleware(verifiers...)}, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		requestID := contextGin.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		contextGin.Header(requestIDHeader, requestID)
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("request_id", requestID),
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
