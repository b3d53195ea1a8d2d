// Command identity-api serves authentication, role management and audit
// endpoints for the spa booking platform.
//
//	@title						Identity Service API
//	@version					1.0
//	@description				Authentication, roles and audit for the spa booking platform.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
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

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	_ "github.com/zenspa/identity-service/docs"
	"github.com/zenspa/identity-service/internal/api"
	"github.com/zenspa/identity-service/internal/core/ports"
	"github.com/zenspa/identity-service/internal/core/service"
	"github.com/zenspa/identity-service/internal/infrastructure/auth"
	"github.com/zenspa/identity-service/internal/infrastructure/db/mongo"
	"github.com/zenspa/identity-service/internal/infrastructure/db/postgres"
	redisdb "github.com/zenspa/identity-service/internal/infrastructure/db/redis"
	"github.com/zenspa/identity-service/internal/infrastructure/http/handlers"
	"github.com/zenspa/identity-service/internal/infrastructure/queue"
	"github.com/zenspa/identity-service/internal/pkg/config"
	"github.com/zenspa/identity-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.Init(logger.Options{Service: "identity-api"})
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "identity-api",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("identity-api stopped")
	}
}

// stores groups the repositories of whichever driver is configured.
type stores struct {
	roles    ports.RoleRepository
	profiles ports.ProfileRepository
	audit    ports.AuditRepository
	ping     handlers.Pinger
	close    func(context.Context)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	rdb := openRedis(ctx, cfg, log)
	defer func() { _ = rdb.Close() }()

	cache := redisdb.NewAuthzCache(rdb, cfg.Redis.AuthzTTL, log)
	guard := redisdb.NewReplayGuard(rdb, cfg.Redis.DedupTTL)

	verifier := auth.NewJWTVerifier(keySource(cfg, log), auth.VerifierConfig{
		Audience:   cfg.Auth.Audience,
		Algorithms: cfg.Auth.Algorithms,
		Leeway:     cfg.Auth.Leeway,
	}, log)

	dispatcher := queue.NewDispatcher(cfg.Security.Workers, cfg.Security.Buffer, st.audit, log)
	dispatcher.Start()

	ready := handlers.NewHealthDependenciesHandler(
		[]handlers.Dependency{{Name: cfg.Store.Driver, Ping: st.ping}},
		[]handlers.Dependency{{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}},
		log,
	)

	e := api.NewRouter(api.Deps{
		Identity:    service.NewIdentityService(verifier, cache, st.roles, st.profiles, st.audit, log),
		Roles:       service.NewRoleService(st.roles, st.profiles, cache, log),
		Audit:       service.NewAuditService(st.audit),
		Profiles:    service.NewProfileService(st.roles, st.profiles, st.audit, cache, log),
		Webhooks:    service.NewWebhookService(cfg.Auth.WebhookSecret, st.roles, st.profiles, st.audit, cache, guard, log),
		Events:      dispatcher,
		Ready:       ready,
		Log:         log,
		Debug:       cfg.Debug,
		CookieName:  cfg.Auth.CookieName,
		CORSOrigins: cfg.CORSOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("identity-api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := e.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("security events: %w", err))
	}
	return errors.Join(errs...)
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDatabase,
			Retry:    cfg.RetryPolicy(),
		}, log)
		if err != nil {
			return nil, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			roles:    mongo.NewRoleRepository(client, db),
			profiles: mongo.NewProfileRepository(db),
			audit:    mongo.NewAuditRepository(db),
			ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:    func(ctx context.Context) { _ = client.Disconnect(ctx) },
		}, nil

	default:
		pool, err := postgres.Connect(ctx, postgres.Config{
			URL:      cfg.Store.PostgresURL,
			MaxConns: cfg.Store.PostgresMaxConn,
			Retry:    cfg.RetryPolicy(),
		}, log)
		if err != nil {
			return nil, err
		}
		if cfg.Store.PostgresMigrate {
			if err := postgres.Migrate(ctx, pool, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &stores{
			roles:    postgres.NewRoleRepository(pool),
			profiles: postgres.NewProfileRepository(pool),
			audit:    postgres.NewAuditRepository(pool),
			ping:     pool.Ping,
			close:    func(context.Context) { pool.Close() },
		}, nil
	}
}

// openRedis never fails: the authorization cache degrades to misses while
// Redis is unreachable, so startup proceeds with a lazily dialing client.
func openRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) *goredis.Client {
	rcfg := redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Retry:    cfg.RetryPolicy(),
	}
	client, err := redisdb.Connect(ctx, rcfg, log)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, starting with cache misses")
		return redisdb.NewClient(rcfg)
	}
	return client
}

func keySource(cfg *config.Config, log zerolog.Logger) ports.KeySource {
	if cfg.Auth.JWTSecret != "" {
		return auth.NewStaticKeySource([]byte(cfg.Auth.JWTSecret))
	}
	return auth.NewJWKSKeySource(auth.JWKSConfig{
		URL:     cfg.Auth.JWKSURL,
		TTL:     cfg.Auth.KeyTTL,
		Timeout: cfg.Auth.KeyFetchTimeout,
	}, log)
}
