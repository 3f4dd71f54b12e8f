package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/namaste/tmbridge/internal/config"
	"github.com/namaste/tmbridge/internal/domain/mapping"
	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/auth"
	"github.com/namaste/tmbridge/internal/platform/cache"
	"github.com/namaste/tmbridge/internal/platform/db"
	"github.com/namaste/tmbridge/internal/platform/fhir"
	"github.com/namaste/tmbridge/internal/platform/icdapi"
	"github.com/namaste/tmbridge/internal/platform/middleware"
	"github.com/namaste/tmbridge/internal/platform/telemetry"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tmbridge",
		Short:        "NAMASTE to ICD-11 TM2 mapping service",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), ingestCmd(), scoreCmd())
	return rootCmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and FHIR terminology server",
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
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load code-system CSV exports and score candidate mappings",
		Long: "Loads NAMASTE, TM2 and ICD-11 CSV exports into the database, in that order, " +
			"then scores a candidate mapping CSV (namaste_code,tm2_code,icd_code) if one is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			namastePath, _ := cmd.Flags().GetString("namaste")
			tm2Path, _ := cmd.Flags().GetString("tm2")
			icdPath, _ := cmd.Flags().GetString("icd")
			mappingsPath, _ := cmd.Flags().GetString("mappings")
			if namastePath == "" && tm2Path == "" && icdPath == "" && mappingsPath == "" {
				return fmt.Errorf("at least one of --namaste, --tm2, --icd or --mappings is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			namasteRepo := terminology.NewNamasteRepoPG(pool)
			tm2Repo := terminology.NewTM2RepoPG(pool)
			icdRepo := terminology.NewICD11RepoPG(pool)
			ingester := terminology.NewIngester(namasteRepo, tm2Repo, icdRepo, logger)

			steps := []struct {
				name string
				path string
				run  func(context.Context, *os.File) (terminology.IngestResult, error)
			}{
				{"namaste", namastePath, func(ctx context.Context, f *os.File) (terminology.IngestResult, error) {
					return ingester.IngestNamaste(ctx, f)
				}},
				{"tm2", tm2Path, func(ctx context.Context, f *os.File) (terminology.IngestResult, error) {
					return ingester.IngestTM2(ctx, f)
				}},
				{"icd11", icdPath, func(ctx context.Context, f *os.File) (terminology.IngestResult, error) {
					return ingester.IngestICD11(ctx, f)
				}},
			}
			out := cmd.OutOrStdout()
			for _, step := range steps {
				if step.path == "" {
					continue
				}
				res, err := withFile(step.path, func(f *os.File) (terminology.IngestResult, error) {
					return step.run(ctx, f)
				})
				if err != nil {
					return fmt.Errorf("ingest %s: %w", step.name, err)
				}
				fmt.Fprintf(out, "%-8s read=%d upserted=%d skipped=%d\n", step.name, res.Read, res.Upserted, res.Skipped)
			}

			if mappingsPath == "" {
				return nil
			}
			terms := terminology.NewService(namasteRepo, tm2Repo, icdRepo)
			svc := mapping.NewService(mapping.NewRepoPG(pool), terms, logger)
			res, err := withFile(mappingsPath, func(f *os.File) (*mapping.ImportResult, error) {
				return svc.ImportCandidates(ctx, f)
			})
			if err != nil {
				return fmt.Errorf("ingest mappings: %w", err)
			}
			fmt.Fprintf(out, "%-8s read=%d scored=%d failed=%d\n", "mappings", res.Read, res.Scored, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().String("namaste", "", "NAMASTE CSV export")
	cmd.Flags().String("tm2", "", "ICD-11 TM2 CSV export")
	cmd.Flags().String("icd", "", "ICD-11 MMS CSV export")
	cmd.Flags().String("mappings", "", "Candidate mapping CSV (namaste_code,tm2_code,icd_code)")
	return cmd
}

func withFile[T any](path string, fn func(f *os.File) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return fn(f)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	signingKey, err := cfg.SigningKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid signing key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	provider := telemetry.NewProvider(telemetry.TelemetryConfig{
		ServiceVersion: version,
		Environment:    cfg.Env,
		RuntimeMetrics: true,
	})
	go reportPoolStats(ctx, pool, provider)

	checks := []db.Check{db.PoolCheck(pool)}

	// Score cache: in-process, backed by redis when REDIS_URL is set.
	memTTL := cfg.MemoryCacheTTL()
	memory := cache.NewMemoryCache(memTTL, 2*memTTL).WithObserver(provider)
	var scoreCache cache.Cache = memory
	whoCache := cache.NewMemoryCache(time.Hour, 2*time.Hour)
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process cache only")
		} else {
			defer client.Close()
			shared := cache.NewRedisCache(client, logger,
				cache.WithPrefix("tmbridge:score:"),
				cache.WithDefaultTTL(cfg.CacheTTL), cache.WithRedisObserver(provider))
			scoreCache = cache.NewLayeredCache(memory, shared).WithMemoryTTL(memTTL)
			checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}})
			logger.Info().Msg("connected to redis")
		}
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(provider.MetricsMiddleware())

	e.GET("/health", db.HealthHandler(checks...))
	e.GET("/health/db", db.PoolStatsHandler(pool))
	e.GET("/metrics", provider.Handler())

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, Audience: cfg.AuthAudience, SigningKey: signingKey}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
		logger.Warn().Msg("development auth enabled: unauthenticated requests run as admin")
	}

	namasteRepo := terminology.NewNamasteRepoPG(pool)
	tm2Repo := terminology.NewTM2RepoPG(pool)
	icdRepo := terminology.NewICD11RepoPG(pool)
	termSvc := terminology.NewService(namasteRepo, tm2Repo, icdRepo)

	whoClient := icdapi.NewClient(icdapi.Config{
		ClientID:     cfg.WHOClientID,
		ClientSecret: cfg.WHOClientSecret,
		TokenURL:     cfg.WHOTokenURL,
		APIURL:       cfg.WHOAPIURL,
		Release:      cfg.WHORelease,
	}, logger, icdapi.WithCache(whoCache), icdapi.WithLocalSource(terminology.NewICDSource(termSvc)))
	if !whoClient.Live() {
		logger.Info().Msg("WHO_CLIENT_ID not set, ICD-11 validation uses the local ICD-11 table")
	}

	mappingSvc := mapping.NewService(mapping.NewRepoPG(pool), termSvc, logger,
		mapping.WithCache(scoreCache, cfg.CacheTTL),
		mapping.WithObserver(provider),
	)

	caps := fhir.NewCapabilityBuilder(cfg.FHIRBaseURL, version)
	mountAPI(e, middleware.RateLimit(rl), authMW, caps,
		terminology.NewHandler(termSvc),
		mapping.NewHandler(mappingSvc, cfg.FHIRBaseURL, cfg.RescoreConcurrency).WithValidator(whoClient),
		icdapi.NewHandler(whoClient),
	)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool, provider *telemetry.Provider) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		s := db.GetPoolStats(pool)
		provider.SetDBPool(s.AcquiredConns, s.IdleConns, s.TotalConns)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
