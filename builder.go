package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/risk"
	"github.com/MrEthical07/goGuard/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Builder assembles an [Engine]. Redis, a durable session store and a
// credential store are required; everything else has a default.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	fast    session.FastStore
	durable session.DurableStore

	users     CredentialStore
	resolver  geo.Resolver
	sender    notify.Sender
	notifier  *notify.Dispatcher
	auditSink AuditSink
	counter   rate.Counter

	log   zerolog.Logger
	clock func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client behind the session cache, challenges, legacy
// markers, risk counters and the notification failure log.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB uses db for durable sessions. The sessions table must exist; see
// [session.GormStore.AutoMigrate].
func (b *Builder) WithDB(db *gorm.DB) *Builder {
	if db != nil {
		b.durable = session.NewGormStore(db)
	}
	return b
}

// WithSessionStores replaces the session cache and the gorm store. A nil
// fast store keeps the Redis cache.
func (b *Builder) WithSessionStores(fast session.FastStore, durable session.DurableStore) *Builder {
	b.fast = fast
	b.durable = durable
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.users = store
	return b
}

// WithGeoResolver sets the IP resolver. Without one every address resolves
// to [geo.Unknown] and location signals never fire.
func (b *Builder) WithGeoResolver(resolver geo.Resolver) *Builder {
	b.resolver = resolver
	return b
}

// WithNotificationSender delivers notifications through sender on an
// engine-owned dispatcher. The default sender only logs.
func (b *Builder) WithNotificationSender(sender notify.Sender) *Builder {
	b.sender = sender
	return b
}

// WithNotifier uses an existing dispatcher. The engine does not close it.
func (b *Builder) WithNotifier(d *notify.Dispatcher) *Builder {
	b.notifier = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithClock overrides time.Now for sessions, tokens, challenges and risk.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.durable == nil {
		return nil, errors.New("durable session store required")
	}
	if b.users == nil {
		return nil, errors.New("credential store required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cfg,
		log:     b.log,
		now:     now,
		users:   b.users,
		metrics: NewMetrics(cfg.Metrics),
	}

	engine.geo = b.resolver
	if engine.geo == nil {
		engine.geo = geo.Static(nil)
	}

	// -------- SESSIONS --------
	fast := b.fast
	if fast == nil {
		fast = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	engine.sessions = session.NewRepository(fast, b.durable, engine.geo, session.Config{
		RefreshTTL:      cfg.Session.RefreshTTL,
		CacheTTL:        cfg.Session.CacheTTL,
		WriteThrottle:   cfg.Session.WriteThrottle,
		RetainInactive:  cfg.Session.RetainInactive,
		RetentionWindow: cfg.Session.RetentionWindow,
		PurgeGrace:      cfg.Session.PurgeGrace,
	},
		session.WithLogger(b.log),
		session.WithClock(now),
		session.WithCacheErrorHook(func(string, error) {
			engine.metricInc(MetricCacheError)
		}),
	)

	// -------- NOTIFICATIONS --------
	if b.notifier != nil {
		engine.notifier = b.notifier
	} else {
		sender := b.sender
		if sender == nil {
			sender = notify.NewLogSender(b.log)
		}
		engine.notifier = notify.NewDispatcher(sender, cfg.Notification.Config,
			notify.WithLogger(b.log),
			notify.WithResolver(engine.resolveAddress),
			notify.WithFailureLog(notify.NewRedisFailureLog(
				b.redis,
				cfg.Notification.FailureLogKey,
				cfg.Notification.FailureLogMax,
				cfg.Notification.FailureRetention,
			)),
		)
		engine.ownsNotifier = true
	}

	// -------- RISK --------
	counter := b.counter
	if counter == nil {
		counter = rate.NewRedisCounter(b.redis, cfg.Risk.CounterPrefix)
	}
	riskEngine, err := risk.NewEngine(cfg.Risk.Config, counter, sessionHistory{repo: engine.sessions}, loginAlerter{engine: engine},
		risk.WithLogger(b.log.With().Str("component", "risk").Logger()),
		risk.WithCounterErrorHook(func(risk.Signal, error) {
			engine.metricInc(MetricRiskCounterError)
		}),
	)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.risk = riskEngine

	// -------- REDIS STORES --------
	engine.challenges = stores.NewChallengeStore(b.redis, cfg.Challenge.RedisPrefix)
	engine.markers = stores.NewMigrationMarkerStore(b.redis, cfg.Migration.RedisPrefix)

	// -------- CREDENTIALS --------
	ph, err := password.NewArgon2(cfg.Password)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         now,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.jwtManager = jm

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, internalaudit.WithLogger(engine.log.With().Str("component", "audit").Logger()))

	b.built = true

	return engine, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
