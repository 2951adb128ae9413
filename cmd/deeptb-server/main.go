package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/plutov/paypal/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deeptb/api/internal/config"
	"github.com/deeptb/api/internal/domain/identity"
	"github.com/deeptb/api/internal/domain/payment"
	"github.com/deeptb/api/internal/domain/report"
	"github.com/deeptb/api/internal/domain/screening"
	"github.com/deeptb/api/internal/platform/auth"
	"github.com/deeptb/api/internal/platform/blobstore"
	"github.com/deeptb/api/internal/platform/db"
	"github.com/deeptb/api/internal/platform/middleware"
	"github.com/deeptb/api/internal/platform/notification"
	"github.com/deeptb/api/internal/platform/pdfgen"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deeptb-server",
		Short: "DeepTB screening API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Object storage
	var blobs blobstore.Store
	switch cfg.BlobBackend {
	case "s3":
		blobs, err = blobstore.NewS3Store(blobstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize object storage")
		}
	default:
		blobs = blobstore.NewMemoryStore(fmt.Sprintf("http://localhost:%s/blobs", cfg.Port))
		logger.Warn().Msg("using in-memory blob store; uploads do not survive restarts")
	}

	// Email
	var sender notification.EmailSender
	if cfg.BrevoAPIKey != "" {
		sender = notification.NewBrevoSender(cfg.BrevoAPIKey, cfg.SenderEmail, cfg.SenderName)
	} else {
		sender = &notification.MockEmailSender{}
		logger.Warn().Msg("BREVO_API_KEY not set; outbound email is disabled")
	}
	mailer := notification.NewMailer(sender, notification.NewTemplateEngine(), logger)

	// Tokens, classifier, PDF renderer
	tokens := auth.NewTokenIssuer(cfg.JWTSecret)
	classifier := screening.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout())
	renderer := pdfgen.NewRenderer(cfg.ReportsDir)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("10M"))

	api := e.Group("/api")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	authMW := auth.Middleware(tokens)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Identity
	patientRepo := identity.NewPatientRepo(pool)
	doctorRepo := identity.NewDoctorRepo(pool)
	otpRepo := identity.NewOTPRepo(pool)
	identitySvc := identity.NewService(patientRepo, doctorRepo, otpRepo, tokens, mailer, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(api, authMW)

	// Screening
	resultRepo := screening.NewRepo(pool)
	screeningSvc := screening.NewService(resultRepo, blobs, classifier, logger)
	screening.NewHandler(screeningSvc).RegisterRoutes(api, authMW)

	// Reports
	reportRepo := report.NewRepo(pool)
	reportSvc := report.NewService(reportRepo, patientRepo, resultRepo, renderer, mailer, logger)
	report.NewHandler(reportSvc).RegisterRoutes(api, authMW)

	// Payments
	if cfg.PayPalClientID != "" {
		apiBase := paypal.APIBaseSandBox
		if cfg.PayPalLive {
			apiBase = paypal.APIBaseLive
		}
		ppClient, err := paypal.NewClient(cfg.PayPalClientID, cfg.PayPalSecret, apiBase)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize paypal client")
		}
		if _, err := ppClient.GetAccessToken(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to obtain paypal access token")
		}
		paymentSvc := payment.NewService(ppClient, logger)
		payment.NewHandler(paymentSvc).RegisterRoutes(api, authMW)
	} else {
		logger.Warn().Msg("PAYPAL_CLIENT_ID not set; payment routes are disabled")
	}

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// errorHandler renders every failure as a structured body with a success flag
// and a human-readable message.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		} else {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]any{
			"success": false,
			"error":   message,
		})
	}
}
