package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/calendar-bridge/internal/adapter/cache"
	"github.com/smallbiznis/calendar-bridge/internal/adapter/calendar"
	oauthadapter "github.com/smallbiznis/calendar-bridge/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/config"
	httptransport "github.com/smallbiznis/calendar-bridge/internal/http"
	"github.com/smallbiznis/calendar-bridge/internal/http/handler"
	"github.com/smallbiznis/calendar-bridge/internal/jwt"
	apimiddleware "github.com/smallbiznis/calendar-bridge/internal/middleware"
	"github.com/smallbiznis/calendar-bridge/internal/repository"
	"github.com/smallbiznis/calendar-bridge/internal/repository/migrations"
	"github.com/smallbiznis/calendar-bridge/internal/server"
	"github.com/smallbiznis/calendar-bridge/internal/service"
	authservice "github.com/smallbiznis/calendar-bridge/internal/service/auth"
	"github.com/smallbiznis/calendar-bridge/internal/telemetry"
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
			newTokenRepository,
			newOAuthStateStore,
			newHTTPClient,
			newOAuthProviderClient,
			newClaimExtractor,
			newCalendarGateway,
			newTokenService,
			service.NewEventService,
			newOAuthService,
			newAuthHandler,
			newEventHandler,
			newRateLimiter,
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

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
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

func runMigrations(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) {
	if !cfg.MigrateOnStart {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := migrations.Run(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("database migrations applied")
			return nil
		},
	})
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

func newTokenRepository(cfg config.Config, pool *pgxpool.Pool, node *snowflake.Node, client redis.UniversalClient, logger *zap.Logger) repository.TokenRepository {
	repo := repository.NewPostgresTokenRepo(pool, node)
	if !cfg.TokenCacheEnabled {
		return repo
	}
	return cacheadapter.NewTokenCache(repo, client, cfg.TokenCacheTTL, logger)
}

func newOAuthStateStore(client redis.UniversalClient) repository.OAuthStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newHTTPClient(cfg config.Config) *http.Client {
	return oauthadapter.NewHTTPClient(cfg.HTTPClientTimeout)
}

func newOAuthProviderClient(cfg config.Config, client *http.Client, logger *zap.Logger) oauthadapter.ProviderClient {
	return oauthadapter.NewOAuth2ProviderClient(cfg, client, logger)
}

func newClaimExtractor(cfg config.Config, client *http.Client, logger *zap.Logger) authservice.IdentityResolver {
	return jwt.NewClaimExtractor(cfg, client, logger)
}

func newCalendarGateway(cfg config.Config, client *http.Client, logger *zap.Logger) (calendar.Gateway, error) {
	return calendar.NewGateway(cfg, client, logger)
}

type tokenServiceOut struct {
	fx.Out

	Service *service.TokenService
	Tokens  service.AccessTokenSource
	Store   authservice.TokenStore
}

func newTokenService(tokens repository.TokenRepository, provider oauthadapter.ProviderClient, cfg config.Config, logger *zap.Logger) tokenServiceOut {
	svc := service.NewTokenService(tokens, provider, cfg, logger)
	return tokenServiceOut{Service: svc, Tokens: svc, Store: svc}
}

func newOAuthService(
	stateStore repository.OAuthStateStore,
	provider oauthadapter.ProviderClient,
	identities authservice.IdentityResolver,
	tokens authservice.TokenStore,
	cfg config.Config,
	logger *zap.Logger,
) authservice.OAuthService {
	return authservice.NewOAuthService(stateStore, provider, identities, tokens, cfg, logger)
}

func newAuthHandler(oauth authservice.OAuthService, cfg config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(oauth, cfg.ServiceName)
}

func newEventHandler(events *service.EventService) *handler.EventHandler {
	return handler.NewEventHandler(events)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
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
				logger.Info("http server listening", zap.String("addr", addr), zap.String("provider", cfg.OAuthProvider))
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
