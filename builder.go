package goToken

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
	"github.com/MrEthical07/goToken/store/postgres"
	"github.com/MrEthical07/goToken/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Engine]. A Builder can build exactly once.
type Builder struct {
	config   Config
	store    store.Store
	redis    redis.UniversalClient
	postgres postgres.DB

	users     UserDirectory
	auditSink AuditSink
	logger    logrus.FieldLogger
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the token store directly. It takes precedence over
// [Builder.WithRedis] and [Builder.WithPostgres].
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis stores tokens in Redis under Config.Redis.Prefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores tokens in the jwt_tokens and jwt_token_blacklist tables.
// A *pgxpool.Pool satisfies [postgres.DB].
func (b *Builder) WithPostgres(db postgres.DB) *Builder {
	b.postgres = db
	return b
}

// WithUserDirectory sets the directory [Engine.Authenticate] resolves subjects with.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for auto-revoke failures, signature drift and audit
// delivery problems.
// Without one the engine logs nothing.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every temporal decision the engine makes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
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

// Build validates the configuration, loads key material and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}

	// -------- KEY MATERIAL --------
	if len(cfg.JWT.PrivateKey) == 0 {
		publicPath := cfg.JWT.PublicKeyPath
		if len(cfg.JWT.PublicKey) > 0 {
			publicPath = ""
		}
		privatePEM, publicPEM, err := jwt.LoadKeyFiles(cfg.JWT.PrivateKeyPath, publicPath)
		if err != nil {
			return nil, err
		}
		cfg.JWT.PrivateKey = privatePEM
		if len(cfg.JWT.PublicKey) == 0 {
			cfg.JWT.PublicKey = publicPEM
		}
	}

	// -------- TOKEN MANAGER --------
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}
	manager, err := jwt.NewManager(jwt.Config{
		Issuer:     cfg.JWT.Issuer,
		PrivateKey: cfg.JWT.PrivateKey,
		PublicKey:  cfg.JWT.PublicKey,
		Lifetimes:  cfg.Tokens.Lifetimes(),
		Leeway:     cfg.JWT.Leeway,
		Location:   loc,
		Now:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	codec := store.NewCodec(manager)

	// -------- TOKEN STORE --------
	tokens := b.store
	switch {
	case tokens != nil:
	case b.redis != nil:
		tokens = redisstore.NewStore(b.redis, cfg.Redis.Prefix, now)
	case b.postgres != nil:
		tokens = postgres.New(b.postgres, now)
	default:
		return nil, errors.New("token store required")
	}

	// -------- USER DIRECTORY --------
	users := b.users
	if users == nil {
		users = UserDirectoryFunc(func(context.Context, string) (Principal, error) {
			return nil, ErrPrincipalNotFound
		})
	}

	engine := &Engine{
		config:  cfg,
		jwt:     manager,
		codec:   codec,
		store:   tokens,
		users:   users,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger,
		}, b.auditSink),
	}

	// -------- FLOWS --------
	validateDeps := flows.ValidateDeps{
		DecodeRecord: codec.Decode,
		PublicKey:    manager.PublicKey,
		Now:          now,
		Leeway:       manager.Leeway(),
		Warn:         logger.Warnf,
		Store:        tokens,
	}
	issueDeps := flows.IssueDeps{
		Data:   manager.Data,
		Build:  manager.Build,
		Encode: codec.Encode,
		Now:    now,
		Store:  tokens,
	}
	engine.flows = flows.New(flows.Deps{
		Issue:    issueDeps,
		Validate: validateDeps,
		Refresh: flows.RefreshDeps{
			Validate: validateDeps,
			Issue:    issueDeps,
			Store:    tokens,
		},
		Revoke: flows.RevokeDeps{Store: tokens, PublicKey: manager.PublicKey},
	})

	b.built = true
	return engine, nil
}
