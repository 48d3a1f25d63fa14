package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	env "github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env  string `yaml:"env"`
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr               string        `yaml:"addr"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
		IdleTimeout        time.Duration `yaml:"idle_timeout"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
		// Header con la IP real cuando hay proxy delante (ej: X-Forwarded-For).
		TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int           `yaml:"max_open_conns"`
			MinConns        int           `yaml:"min_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		MigrateOnStart bool `yaml:"migrate_on_start"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		DefaultTTL time.Duration `yaml:"default_ttl"`
		// TTL de grupos familiares cacheados.
		FamilyTTL time.Duration `yaml:"family_ttl"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string        `yaml:"issuer"`
		Audience   string        `yaml:"audience"`
		AccessTTL  time.Duration `yaml:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
		// Semillas Ed25519 (32 bytes, base64). Vacías en dev = claves efímeras.
		AccessKeySeed  string `yaml:"access_key_seed"`
		RefreshKeySeed string `yaml:"refresh_key_seed"`
		AccessKID      string `yaml:"access_kid"`
		RefreshKID     string `yaml:"refresh_kid"`
		// Rechaza refresh tokens rotados (jti distinto del último emitido para el device).
		RefreshReuseDetection *bool `yaml:"refresh_reuse_detection"`
	} `yaml:"jwt"`

	Lockout struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Duration    time.Duration `yaml:"duration"`
	} `yaml:"lockout"`

	Devices struct {
		Max int `yaml:"max"`
	} `yaml:"devices"`

	Offline struct {
		MaxAge        time.Duration `yaml:"max_age"`
		ReverifyAfter time.Duration `yaml:"reverify_after"`
	} `yaml:"offline"`

	Family struct {
		BedtimeHour int    `yaml:"bedtime_hour"`
		WakeHour    int    `yaml:"wake_hour"`
		MinorAge    int    `yaml:"minor_age"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"family"`

	Email struct {
		BaseURL   string        `yaml:"base_url"`
		VerifyTTL time.Duration `yaml:"verify_ttl"`
		ResetTTL  time.Duration `yaml:"reset_ttl"`
		// Devuelve los tokens de verificación en la respuesta (solo dev/tests).
		DebugEchoTokens bool `yaml:"debug_echo_tokens"`
	} `yaml:"email"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		// auto | starttls | ssl | none
		TLS string `yaml:"tls"`
	} `yaml:"smtp"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"login"`
		Forgot struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"forgot"`
	} `yaml:"rate"`

	Security struct {
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
		PasswordBlacklistPath string `yaml:"password_blacklist_path"`
	} `yaml:"security"`

	Log struct {
		Level        string        `yaml:"level"`
		File         string        `yaml:"file"`
		MaxAge       time.Duration `yaml:"max_age"`
		RotationTime time.Duration `yaml:"rotation_time"`
	} `yaml:"log"`
}

// Default retorna una configuración válida para dev (memoria, claves efímeras).
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load lee el YAML (si path != "" y existe), aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Sin archivo: defaults + env.
		default:
			return nil, err
		}
	}
	c.applyDefaults()
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "ciciauth"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 20
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "cici:"
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 2 * time.Minute
	}
	if c.Cache.FamilyTTL == 0 {
		c.Cache.FamilyTTL = 30 * time.Second
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "cici-platform"
	}
	if c.JWT.Audience == "" {
		c.JWT.Audience = "cici-users"
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 720 * time.Hour // 30d
	}
	if c.JWT.RefreshReuseDetection == nil {
		on := true
		c.JWT.RefreshReuseDetection = &on
	}
	if c.JWT.AccessKID == "" {
		c.JWT.AccessKID = "access-1"
	}
	if c.JWT.RefreshKID == "" {
		c.JWT.RefreshKID = "refresh-1"
	}
	if c.Lockout.MaxAttempts == 0 {
		c.Lockout.MaxAttempts = 5
	}
	if c.Lockout.Duration == 0 {
		c.Lockout.Duration = 2 * time.Hour
	}
	if c.Devices.Max == 0 {
		c.Devices.Max = 10
	}
	if c.Offline.MaxAge == 0 {
		c.Offline.MaxAge = 21 * 24 * time.Hour
	}
	if c.Offline.ReverifyAfter == 0 {
		c.Offline.ReverifyAfter = 24 * time.Hour
	}
	if c.Family.BedtimeHour == 0 {
		c.Family.BedtimeHour = 21
	}
	if c.Family.WakeHour == 0 {
		c.Family.WakeHour = 6
	}
	if c.Family.MinorAge == 0 {
		c.Family.MinorAge = 17
	}
	if c.Family.Timezone == "" {
		c.Family.Timezone = "Local"
	}
	if c.Email.VerifyTTL == 0 {
		c.Email.VerifyTTL = 24 * time.Hour
	}
	if c.Email.ResetTTL == 0 {
		c.Email.ResetTTL = time.Hour
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == 0 {
		c.Rate.Login.Window = time.Minute
	}
	if c.Rate.Forgot.Limit == 0 {
		c.Rate.Forgot.Limit = 5
	}
	if c.Rate.Forgot.Window == 0 {
		c.Rate.Forgot.Window = 10 * time.Minute
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// envOverrides lista las variables de entorno soportadas.
// Strings vacíos / ceros = no definida. Los bool van como string para distinguir "false" de "no seteado".
type envOverrides struct {
	AppEnv         string        `env:"APP_ENV"`
	ServerAddr     string        `env:"SERVER_ADDR"`
	CORSOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	StorageDriver  string        `env:"STORAGE_DRIVER"`
	StorageDSN     string        `env:"STORAGE_DSN"`
	MigrateOnStart string        `env:"STORAGE_MIGRATE_ON_START"`
	CacheKind      string        `env:"CACHE_KIND"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB"`
	JWTIssuer      string        `env:"JWT_ISSUER"`
	JWTAudience    string        `env:"JWT_AUDIENCE"`
	AccessTTL      time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTTL     time.Duration `env:"JWT_REFRESH_TTL"`
	AccessSeed     string        `env:"JWT_ACCESS_KEY_SEED"`
	RefreshSeed    string        `env:"JWT_REFRESH_KEY_SEED"`
	ReuseDetection string        `env:"JWT_REFRESH_REUSE_DETECTION"`
	EmailBaseURL   string        `env:"EMAIL_BASE_URL"`
	EmailDebugEcho string        `env:"EMAIL_DEBUG_ECHO_TOKENS"`
	SMTPHost       string        `env:"SMTP_HOST"`
	SMTPPort       int           `env:"SMTP_PORT"`
	SMTPUser       string        `env:"SMTP_USER"`
	SMTPPass       string        `env:"SMTP_PASS"`
	SMTPFrom       string        `env:"SMTP_FROM"`
	SMTPTLS        string        `env:"SMTP_TLS"`
	RateEnabled    string        `env:"RATE_ENABLED"`
	FamilyTimezone string        `env:"FAMILY_TIMEZONE"`
	LogLevel       string        `env:"LOG_LEVEL"`
	LogFile        string        `env:"LOG_FILE"`
}

func (c *Config) applyEnvOverrides() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}

	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setBool := func(dst *bool, v string) error {
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid bool %q", v)
		}
		*dst = b
		return nil
	}

	setStr(&c.App.Env, o.AppEnv)
	setStr(&c.Server.Addr, o.ServerAddr)
	if len(o.CORSOrigins) > 0 {
		c.Server.CORSAllowedOrigins = o.CORSOrigins
	}
	setStr(&c.Storage.Driver, o.StorageDriver)
	setStr(&c.Storage.DSN, o.StorageDSN)
	setStr(&c.Cache.Kind, o.CacheKind)
	setStr(&c.Cache.Redis.Addr, o.RedisAddr)
	setStr(&c.Cache.Redis.Password, o.RedisPassword)
	if o.RedisDB != 0 {
		c.Cache.Redis.DB = o.RedisDB
	}
	setStr(&c.JWT.Issuer, o.JWTIssuer)
	setStr(&c.JWT.Audience, o.JWTAudience)
	if o.AccessTTL > 0 {
		c.JWT.AccessTTL = o.AccessTTL
	}
	if o.RefreshTTL > 0 {
		c.JWT.RefreshTTL = o.RefreshTTL
	}
	setStr(&c.JWT.AccessKeySeed, o.AccessSeed)
	setStr(&c.JWT.RefreshKeySeed, o.RefreshSeed)
	setStr(&c.Email.BaseURL, o.EmailBaseURL)
	setStr(&c.SMTP.Host, o.SMTPHost)
	if o.SMTPPort != 0 {
		c.SMTP.Port = o.SMTPPort
	}
	setStr(&c.SMTP.Username, o.SMTPUser)
	setStr(&c.SMTP.Password, o.SMTPPass)
	setStr(&c.SMTP.From, o.SMTPFrom)
	setStr(&c.SMTP.TLS, o.SMTPTLS)
	setStr(&c.Family.Timezone, o.FamilyTimezone)
	setStr(&c.Log.Level, o.LogLevel)
	setStr(&c.Log.File, o.LogFile)

	if o.ReuseDetection != "" {
		v, err := strconv.ParseBool(o.ReuseDetection)
		if err != nil {
			return fmt.Errorf("config: invalid bool %q", o.ReuseDetection)
		}
		c.JWT.RefreshReuseDetection = &v
	}
	for _, b := range []struct {
		dst *bool
		v   string
	}{
		{&c.Storage.MigrateOnStart, o.MigrateOnStart},
		{&c.Email.DebugEchoTokens, o.EmailDebugEcho},
		{&c.Rate.Enabled, o.RateEnabled},
	} {
		if err := setBool(b.dst, b.v); err != nil {
			return err
		}
	}
	return nil
}

// Validate chequea valores críticos.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q not supported", c.Cache.Kind))
	}

	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		errs = append(errs, errors.New("jwt.access_ttl must be shorter than jwt.refresh_ttl"))
	}
	for name, seed := range map[string]string{"access_key_seed": c.JWT.AccessKeySeed, "refresh_key_seed": c.JWT.RefreshKeySeed} {
		if seed == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(seed)
		if err != nil || len(raw) != 32 {
			errs = append(errs, fmt.Errorf("jwt.%s must be 32 bytes base64", name))
		}
	}
	if c.JWT.AccessKeySeed != "" && c.JWT.AccessKeySeed == c.JWT.RefreshKeySeed {
		errs = append(errs, errors.New("jwt access and refresh keys must differ"))
	}
	if c.IsProd() && (c.JWT.AccessKeySeed == "" || c.JWT.RefreshKeySeed == "") {
		errs = append(errs, errors.New("jwt key seeds are required in prod"))
	}

	if c.Lockout.MaxAttempts < 1 {
		errs = append(errs, errors.New("lockout.max_attempts must be >= 1"))
	}
	if c.Devices.Max < 1 {
		errs = append(errs, errors.New("devices.max must be >= 1"))
	}
	if c.Offline.ReverifyAfter > c.Offline.MaxAge {
		errs = append(errs, errors.New("offline.reverify_after must not exceed offline.max_age"))
	}
	if !validHour(c.Family.BedtimeHour) || !validHour(c.Family.WakeHour) {
		errs = append(errs, errors.New("family bedtime/wake hours must be within 0..23"))
	}
	if _, err := time.LoadLocation(c.Family.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("family.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// ReuseDetection reporta si la detección de reuso de refresh tokens está activa.
func (c *Config) ReuseDetection() bool {
	return c.JWT.RefreshReuseDetection == nil || *c.JWT.RefreshReuseDetection
}

// IsProd reporta si app.env es prod.
func (c *Config) IsProd() bool {
	return strings.EqualFold(c.App.Env, "prod")
}

func validHour(h int) bool { return h >= 0 && h <= 23 }
