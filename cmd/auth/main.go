package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/platewise/auth/internal/config"
	dbmigrate "github.com/platewise/auth/internal/db/migrate"
	"github.com/platewise/auth/internal/directory"
	httptransport "github.com/platewise/auth/internal/http"
	"github.com/platewise/auth/internal/http/handler"
	httpmiddleware "github.com/platewise/auth/internal/http/middleware"
	"github.com/platewise/auth/internal/mailer"
	apimiddleware "github.com/platewise/auth/internal/middleware"
	"github.com/platewise/auth/internal/profile"
	"github.com/platewise/auth/internal/server"
	"github.com/platewise/auth/internal/service"
	"github.com/platewise/auth/internal/store"
	"github.com/platewise/auth/internal/telemetry"
	"github.com/platewise/auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newChallengeStore,
			newKeyRepository,
			newKeyManager,
			newTokenIssuer,
			newDirectory,
			newProfileRepository,
			newMailer,
			newRateLimiter,
			service.NewAuthService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newChallengeStore(client redis.UniversalClient) store.ChallengeStore {
	return store.NewRedisChallengeStore(client)
}

func newKeyRepository(pool *pgxpool.Pool) token.KeyRepository {
	return token.NewPostgresKeyRepo(pool)
}

func newKeyManager(repo token.KeyRepository) *token.KeyManager {
	return token.NewKeyManager(repo)
}

func newTokenIssuer(manager *token.KeyManager, cfg config.Config) *token.Issuer {
	return token.NewIssuer(manager, cfg.SessionTokenTTL, cfg.ServiceName)
}

func newDirectory(pool *pgxpool.Pool, node *snowflake.Node, tokens *token.Issuer) directory.Directory {
	return directory.NewPostgresDirectory(pool, node, tokens)
}

func newProfileRepository(pool *pgxpool.Pool) profile.Repository {
	return profile.NewPostgresRepository(pool)
}

func newMailer(cfg config.Config, logger *zap.Logger) (mailer.Mailer, error) {
	if !cfg.MailConfigured() {
		logger.Warn("SMTP not configured, issued codes will be logged instead of sent")
		return &mailer.LogMailer{Logger: logger}, nil
	}
	return mailer.NewSMTPMailer(cfg)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(tokens *token.Issuer) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Tokens: tokens}
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	if err := dbmigrate.Up(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database schema up to date")
	return nil
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
