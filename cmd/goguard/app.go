package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/audit/kafkasink"
	"github.com/MrEthical07/goGuard/credentials"
	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// app owns every backend the engine runs on.
type app struct {
	log    zerolog.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	users  *credentials.Store
	engine *goGuard.Engine

	closers []func() error
}

func openDB(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newApp connects the backends. Only the stores are opened; the engine is
// built separately so that migrate and purge can run without it.
func newApp(ctx context.Context, srv ServerConfig, log zerolog.Logger) (*app, error) {
	db, err := openDB(srv.Database)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, db: db, users: credentials.NewStore(db)}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	rdb := redis.NewClient(&redis.Options{
		Addr:     srv.Redis.Addr,
		Password: srv.Redis.Password,
		DB:       srv.Redis.DB,
	})
	a.redis = rdb
	a.closers = append(a.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis %s: %w", srv.Redis.Addr, err)
	}
	return a, nil
}

// migrate creates or updates the users and sessions tables.
func (a *app) migrate(ctx context.Context) error {
	if err := a.users.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	if err := session.NewGormStore(a.db).AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

// buildEngine wires geolocation, mail delivery and audit output around the
// opened stores.
func (a *app) buildEngine(srv ServerConfig, cfg goGuard.Config) error {
	b := goGuard.New().
		WithConfig(cfg).
		WithRedis(a.redis).
		WithDB(a.db).
		WithCredentialStore(a.users).
		WithLogger(a.log)

	if srv.GeoIP.Path != "" {
		mm, err := geo.OpenMaxMind(srv.GeoIP.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, mm.Close)
		cache := geo.NewCache(a.redis, mm, srv.GeoIP.CachePrefix, srv.GeoIP.CacheTTL, a.log)
		b = b.WithGeoResolver(geo.NewResolver(cache, a.log))
	} else {
		a.log.Warn().Msg("no geoip database configured; every address resolves to Unknown")
	}

	if srv.SMTP.Host != "" {
		sender, err := notify.NewSMTPSender(srv.SMTP)
		if err != nil {
			return err
		}
		b = b.WithNotificationSender(sender)
	} else {
		b = b.WithNotificationSender(notify.NewLogSender(a.log))
	}

	if cfg.Audit.Enabled {
		sinks := goGuard.MultiSink{goGuard.NewLogSink(a.log.With().Str("component", "audit").Logger())}
		if srv.Kafka.Enabled() {
			ks, err := kafkasink.New(srv.Kafka, a.log)
			if err != nil {
				return err
			}
			// Registered before the engine's own closer so the dispatcher
			// drains into an open writer.
			a.closers = append(a.closers, ks.Close)
			sinks = append(sinks, ks)
		}
		b = b.WithAuditSink(sinks)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, func() error {
		engine.Close()
		return nil
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a == nil {
		return
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn().Err(err).Msg("shutdown")
	}
}
