package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/beautystack/authcore/internal/stores"
	"github.com/beautystack/authcore/password"
	"github.com/beautystack/authcore/telemetry"
	"github.com/beautystack/authcore/token"
	"github.com/beautystack/authcore/vault"
)

// Builder assembles an [Engine]. A Builder is single-use: Build consumes it.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	directory DirectoryProvider
	log       *zap.Logger
	hooks     TestHooks
	metrics   bool
	built     bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config:  defaultConfig(),
		metrics: true,
	}
}

// WithConfig replaces the configuration wholesale. Zero-valued sections are
// backfilled from the defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the transient-state stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the persistent-store boundary.
func (b *Builder) WithDirectory(directory DirectoryProvider) *Builder {
	b.directory = directory
	return b
}

// WithLogger sets the structured logger. A nil logger disables logging.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithTestHooks installs integration-test escape hatches. Honored only when
// Config.Insecure.AllowTestHooks is set; Build fails otherwise.
func (b *Builder) WithTestHooks(hooks TestHooks) *Builder {
	b.hooks = hooks
	return b
}

// WithMetricsEnabled toggles the engine counters. Enabled by default.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.metrics = enabled
	return b
}

// Build validates the configuration, wires every collaborator, and returns
// the ready Engine. Configuration errors surface here, never at request time.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := fillDefaults(b.config)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.directory == nil {
		return nil, errors.New("directory provider is required")
	}
	if (b.hooks != TestHooks{}) && !cfg.Insecure.AllowTestHooks {
		return nil, errors.New("test hooks provided but not allowed by config")
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	secrets, err := vault.New(cfg.Vault.MasterKey, cfg.BackupCodes.BcryptCost)
	if err != nil {
		return nil, err
	}

	passwords, err := password.New(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	dummyHash, err := passwords.Hash("authcore-timing-equalizer")
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		directory: b.directory,
		secrets:   secrets,
		passwords: passwords,
		totp:      newTOTPManager(cfg.TOTP),
		tokens:    tokens,

		refreshStore: stores.NewRefreshStore(b.redis, cfg.Store.RedisPrefix+":rft"),
		pendingStore: stores.NewPendingSetupStore(b.redis, cfg.Store.RedisPrefix+":mps"),
		deviceStore:  stores.NewTrustedDeviceStore(b.redis, cfg.Store.RedisPrefix+":mtd"),
		markerStore:  stores.NewMarkerStore(b.redis, cfg.Store.RedisPrefix+":mfv"),

		metrics: NewMetrics(b.metrics),
		hooks:   b.hooks,
		log:     log,

		dummyHash: dummyHash,
	}

	engine.events = telemetry.NewLogger(telemetry.Config{
		MaxEvents:         cfg.Telemetry.MaxEvents,
		Retention:         cfg.Telemetry.Retention,
		SweepInterval:     cfg.Telemetry.SweepInterval,
		FailureWindow:     cfg.Telemetry.WindowDuration,
		MaxFailures:       cfg.Telemetry.MaxAttempts,
		LockDuration:      cfg.Telemetry.LockDuration,
		HighRiskThreshold: cfg.Telemetry.HighRiskThreshold,
	}, log, directorySink{directory: b.directory, timeout: cfg.Store.Timeout})

	return engine, nil
}

// fillDefaults backfills zero-valued tunables so callers only set what they
// mean to change. Secrets are never defaulted.
func fillDefaults(cfg Config) Config {
	def := defaultConfig()
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if cfg.JWT.RefreshTTL == 0 {
		cfg.JWT.RefreshTTL = def.JWT.RefreshTTL
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = def.JWT.Issuer
	}
	if cfg.JWT.Audience == "" {
		cfg.JWT.Audience = def.JWT.Audience
	}
	if cfg.JWT.Leeway == 0 {
		cfg.JWT.Leeway = def.JWT.Leeway
	}
	if cfg.TOTP.Issuer == "" {
		cfg.TOTP.Issuer = def.TOTP.Issuer
	}
	if cfg.TOTP.Digits == 0 {
		cfg.TOTP.Digits = def.TOTP.Digits
	}
	if cfg.TOTP.Period == 0 {
		cfg.TOTP.Period = def.TOTP.Period
	}
	if cfg.TOTP.Algorithm == "" {
		cfg.TOTP.Algorithm = def.TOTP.Algorithm
	}
	if cfg.TOTP.SetupTTL == 0 {
		cfg.TOTP.SetupTTL = def.TOTP.SetupTTL
	}
	if cfg.BackupCodes.Count == 0 {
		cfg.BackupCodes.Count = def.BackupCodes.Count
	}
	if cfg.BackupCodes.Length == 0 {
		cfg.BackupCodes.Length = def.BackupCodes.Length
	}
	if cfg.BackupCodes.BcryptCost == 0 {
		cfg.BackupCodes.BcryptCost = def.BackupCodes.BcryptCost
	}
	if cfg.BackupCodes.LowWatermark == 0 {
		cfg.BackupCodes.LowWatermark = def.BackupCodes.LowWatermark
	}
	if cfg.Password.Memory == 0 {
		cfg.Password = def.Password
	}
	if len(cfg.MFA.RequiredRoles) == 0 {
		cfg.MFA.RequiredRoles = def.MFA.RequiredRoles
	}
	if cfg.MFA.MarkerTTL == 0 {
		cfg.MFA.MarkerTTL = def.MFA.MarkerTTL
	}
	if cfg.MFA.TrustedDeviceTTL == 0 {
		cfg.MFA.TrustedDeviceTTL = def.MFA.TrustedDeviceTTL
	}
	if cfg.Telemetry.MaxEvents == 0 {
		cfg.Telemetry.MaxEvents = def.Telemetry.MaxEvents
	}
	if cfg.Telemetry.Retention == 0 {
		cfg.Telemetry.Retention = def.Telemetry.Retention
	}
	if cfg.Telemetry.SweepInterval == 0 {
		cfg.Telemetry.SweepInterval = def.Telemetry.SweepInterval
	}
	if cfg.Telemetry.WindowDuration == 0 {
		cfg.Telemetry.WindowDuration = def.Telemetry.WindowDuration
	}
	if cfg.Telemetry.MaxAttempts == 0 {
		cfg.Telemetry.MaxAttempts = def.Telemetry.MaxAttempts
	}
	if cfg.Telemetry.LockDuration == 0 {
		cfg.Telemetry.LockDuration = def.Telemetry.LockDuration
	}
	if cfg.Telemetry.HighRiskThreshold == 0 {
		cfg.Telemetry.HighRiskThreshold = def.Telemetry.HighRiskThreshold
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = def.Store.Timeout
	}
	if cfg.Store.RedisPrefix == "" {
		cfg.Store.RedisPrefix = def.Store.RedisPrefix
	}
	return cfg
}
