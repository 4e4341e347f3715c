package edge

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zipbob/edge/jwt"
	"github.com/zipbob/edge/revocation"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config  Config
	redis   redis.UniversalClient
	members MemberLookup
	metrics *Metrics
	now     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing the revocation store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMembers sets the member lookup used by Reissue.
func (b *Builder) WithMembers(m MemberLookup) *Builder {
	b.members = m
	return b
}

// WithMetrics shares an existing collector set. Without it Build creates one.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithClock overrides time.Now for token issuance and verification.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.members == nil {
		return nil, errors.New("member lookup required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        []byte(cfg.JWT.Secret),
		PublicKey:     []byte(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	metrics := b.metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	b.built = true

	return &Engine{
		config:  cfg,
		tokens:  tokens,
		store:   revocation.NewStore(b.redis, cfg.Redis.Prefix),
		members: b.members,
		metrics: metrics,
		now:     now,
	}, nil
}
