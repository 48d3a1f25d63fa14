// Package app arma el contenedor del servicio: store, cache, emisor de
// tokens, servicios de dominio, controllers y router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/ciciauth/internal/cache"
	"github.com/dropDatabas3/ciciauth/internal/config"
	"github.com/dropDatabas3/ciciauth/internal/credentials"
	"github.com/dropDatabas3/ciciauth/internal/devices"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/email"
	"github.com/dropDatabas3/ciciauth/internal/family"
	authctrl "github.com/dropDatabas3/ciciauth/internal/http/controllers/auth"
	famctrl "github.com/dropDatabas3/ciciauth/internal/http/controllers/family"
	healthctrl "github.com/dropDatabas3/ciciauth/internal/http/controllers/health"
	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
	"github.com/dropDatabas3/ciciauth/internal/http/router"
	authsvc "github.com/dropDatabas3/ciciauth/internal/http/services/auth"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/metrics"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	"github.com/dropDatabas3/ciciauth/internal/offline"
	"github.com/dropDatabas3/ciciauth/internal/rate"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
	"github.com/dropDatabas3/ciciauth/internal/session"
	"github.com/dropDatabas3/ciciauth/internal/store"
	_ "github.com/dropDatabas3/ciciauth/internal/store/adapters/memory"
	"github.com/dropDatabas3/ciciauth/internal/store/adapters/pg"
)

// Options ajusta el armado para tests o herramientas.
type Options struct {
	// Now reemplaza el reloj de todos los servicios.
	Now func() time.Time
	// PasswordParams reemplaza los parámetros argon2id (tests usan password.Fast).
	PasswordParams *password.Params
	// Notifier reemplaza al mailer.
	Notifier authsvc.Notifier
}

// Container agrupa lo construido; Close libera conexiones.
type Container struct {
	Config   *config.Config
	Store    store.Connection
	Redis    *redis.Client
	Issuer   *jwt.Issuer
	Metrics  *metrics.Metrics
	Families *family.Service
	Auth     authsvc.Services
	Handler  http.Handler

	closers []func() error
}

// Build construye el contenedor a partir de una config ya validada.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Container, err error) {
	log := logger.From(ctx).With(logger.Layer("app"), logger.Op("Build"))

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	// ─── Store ───
	conn, err := store.Open(ctx, store.AdapterConfig{
		Name:     cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		MaxConns: cfg.Storage.Postgres.MaxOpenConns,
		MinConns: cfg.Storage.Postgres.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.Store = conn
	c.closers = append(c.closers, conn.Close)

	if cfg.Storage.MigrateOnStart {
		if m, ok := conn.(store.Migratable); ok {
			res, err := m.Migrate(ctx)
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", logger.Count(len(res.Applied)))
		}
	}

	// ─── Métricas ───
	c.Metrics = metrics.New()
	if pc, ok := conn.(*pg.Conn); ok {
		if err := c.Metrics.RegisterPool(pc.Pool); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
	}

	// ─── Cache / Redis ───
	if cfg.Cache.Kind == "redis" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		c.closers = append(c.closers, c.Redis.Close)
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	var kv cache.Client
	if c.Redis != nil {
		kv = cache.NewRedis(c.Redis, cfg.Cache.Redis.Prefix, cfg.Cache.DefaultTTL)
	} else {
		kv = cache.NewMemory(cfg.Cache.DefaultTTL)
	}

	var loginLimiter, forgotLimiter rate.Limiter
	if cfg.Rate.Enabled {
		if c.Redis != nil {
			loginLimiter = rate.NewRedisLimiter(c.Redis, cfg.Cache.Redis.Prefix+"rl:", cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
			forgotLimiter = rate.NewRedisLimiter(c.Redis, cfg.Cache.Redis.Prefix+"rl:", cfg.Rate.Forgot.Limit, cfg.Rate.Forgot.Window)
		} else {
			loginLimiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
			forgotLimiter = rate.NewMemoryLimiter(cfg.Rate.Forgot.Limit, cfg.Rate.Forgot.Window)
		}
	}

	// ─── Tokens ───
	accessKeys, refreshKeys, err := loadKeys(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.JWT.AccessKeySeed == "" {
		log.Warn("using ephemeral signing keys; tokens will not survive a restart")
	}
	c.Issuer, err = jwt.NewIssuer(accessKeys, refreshKeys, jwt.Options{
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Now:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	jwks, err := jwt.ParseJWKS(c.Issuer.AccessJWKS())
	if err != nil {
		return nil, fmt.Errorf("access jwks: %w", err)
	}

	// ─── Passwords ───
	params := password.Default
	if opts.PasswordParams != nil {
		params = *opts.PasswordParams
	}
	hasher, err := password.NewHasher(params)
	if err != nil {
		return nil, fmt.Errorf("hasher: %w", err)
	}
	policy, err := NewPasswordPolicy(cfg)
	if err != nil {
		return nil, err
	}

	// ─── Dominio ───
	identities := conn.Identities()
	creds := credentials.NewController(credentials.Deps{
		Identities: identities,
		Hasher:     hasher,
		Policy:     credentials.LockoutPolicy{MaxAttempts: cfg.Lockout.MaxAttempts, Duration: cfg.Lockout.Duration},
		Now:        now,
		Hooks: credentials.Hooks{
			OnFailure: c.Metrics.CredentialFails.Inc,
			OnLocked:  c.Metrics.Lockouts.Inc,
		},
	})
	registry := devices.NewRegistry(identities, cfg.Devices.Max, now)
	sessions := session.NewService(session.Deps{
		Identities:     identities,
		Issuer:         c.Issuer,
		Devices:        registry,
		ReuseDetection: cfg.ReuseDetection(),
		Now:            now,
	})

	loc, err := time.LoadLocation(cfg.Family.Timezone)
	if err != nil {
		return nil, fmt.Errorf("family timezone: %w", err)
	}
	defaultTZ := cfg.Family.Timezone
	if defaultTZ == "Local" {
		defaultTZ = ""
	}
	c.Families = family.NewService(family.Deps{
		Families:    conn.Families(),
		Identities:  identities,
		Cache:       kv,
		CacheTTL:    cfg.Cache.FamilyTTL,
		BedtimeHour: cfg.Family.BedtimeHour,
		WakeHour:    cfg.Family.WakeHour,
		Timezone:    defaultTZ,
		Now:         now,
	})
	gate := family.NewGate(loc, now)

	evaluator := offline.New(now)
	evaluator.MaxAge = cfg.Offline.MaxAge
	evaluator.ReverifyAfter = cfg.Offline.ReverifyAfter
	evaluator.Keys = jwks

	notifier := opts.Notifier
	if notifier == nil {
		var sender email.Sender = email.LogSender{}
		if cfg.SMTP.Host != "" {
			sender = email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.TLS)
		}
		mailer, err := email.NewMailer(sender, cfg.Email.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
		notifier = mailer
	}

	c.Auth = authsvc.NewServices(authsvc.Deps{
		Identities:  identities,
		Credentials: creds,
		Sessions:    sessions,
		Devices:     registry,
		Issuer:      c.Issuer,
		Hasher:      hasher,
		Policy:      policy,
		Offline:     evaluator,
		Families:    c.Families,
		Notifier:    notifier,
		Metrics:     c.Metrics,
		VerifyTTL:   cfg.Email.VerifyTTL,
		ResetTTL:    cfg.Email.ResetTTL,
		MinorAge:    cfg.Family.MinorAge,
		EchoTokens:  cfg.Email.DebugEchoTokens,
		Now:         now,
	})

	// ─── HTTP ───
	checks := map[string]healthctrl.Check{"store": conn.Ping}
	if c.Redis != nil {
		rdb := c.Redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	c.Handler = router.New(router.Deps{
		Auth: authctrl.NewControllers(c.Auth, authctrl.Options{
			SecureCookies: cfg.IsProd(),
			TrustProxy:    cfg.Server.TrustProxyHeaders,
		}),
		Family:   famctrl.NewController(c.Families, c.Metrics),
		Health:   healthctrl.NewController(checks),
		Verifier: c.Issuer,
		JWKS:     c.Issuer.AccessJWKS,
		MinorGate: mw.MinorGateConfig{
			Gate:    gate,
			Resolve: c.resolveSubject,
		},
		Metrics:       c.Metrics,
		LoginLimiter:  loginLimiter,
		ForgotLimiter: forgotLimiter,
		CORSOrigins:   cfg.Server.CORSAllowedOrigins,
		TrustProxy:    cfg.Server.TrustProxyHeaders,
	})

	log.Info("container ready",
		logger.String("store", conn.Name()),
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("rate_limit", cfg.Rate.Enabled),
	)
	return c, nil
}

// resolveSubject carga la identidad del token y los settings de su grupo
// para el gate horario.
func (c *Container) resolveSubject(ctx context.Context, claims *jwt.AccessClaims) (family.Subject, *repository.FamilySettings, error) {
	ident, err := c.Store.Identities().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return family.Subject{}, nil, jwt.ErrInvalidToken
		}
		return family.Subject{}, nil, err
	}
	subject := family.Subject{IsMinor: ident.IsMinor, HasParent: ident.ParentID != nil}
	if !subject.IsMinor {
		return subject, nil, nil
	}
	settings, err := c.Families.SettingsFor(ctx, ident.FamilyGroupID)
	if err != nil {
		return family.Subject{}, nil, err
	}
	return subject, settings, nil
}

// Close libera recursos en orden inverso al de apertura.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func loadKeys(cfg *config.Config) (access, refresh *jwt.KeySet, err error) {
	if cfg.JWT.AccessKeySeed == "" || cfg.JWT.RefreshKeySeed == "" {
		if access, err = jwt.NewDevEd25519(cfg.JWT.AccessKID); err != nil {
			return nil, nil, fmt.Errorf("dev access key: %w", err)
		}
		if refresh, err = jwt.NewDevEd25519(cfg.JWT.RefreshKID); err != nil {
			return nil, nil, fmt.Errorf("dev refresh key: %w", err)
		}
		return access, refresh, nil
	}
	if access, err = jwt.KeySetFromSeed(cfg.JWT.AccessKID, cfg.JWT.AccessKeySeed); err != nil {
		return nil, nil, err
	}
	if refresh, err = jwt.KeySetFromSeed(cfg.JWT.RefreshKID, cfg.JWT.RefreshKeySeed); err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

// NewPasswordPolicy arma la política de passwords de la config (incluye la
// blacklist si hay path).
func NewPasswordPolicy(cfg *config.Config) (password.Policy, error) {
	pp := cfg.Security.PasswordPolicy
	policy := password.Policy{
		MinLength:     pp.MinLength,
		RequireUpper:  pp.RequireUpper,
		RequireLower:  pp.RequireLower,
		RequireDigit:  pp.RequireDigit,
		RequireSymbol: pp.RequireSymbol,
	}
	if path := cfg.Security.PasswordBlacklistPath; path != "" {
		bl, err := password.LoadBlacklist(path)
		if err != nil {
			return policy, fmt.Errorf("password blacklist: %w", err)
		}
		policy.Blacklist = bl
	}
	return policy, nil
}
