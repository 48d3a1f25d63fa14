package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configura el logger.
type Config struct {
	// Env define el entorno: "dev" (consola con colores) o "prod" (JSON).
	// Default: "dev"
	Env string

	// Level: "debug", "info", "warn", "error". Default: "info"
	Level string

	// ServiceName se agrega como campo "service" en cada línea.
	ServiceName string

	Version string

	// File habilita un sink adicional en disco (siempre JSON) con rotación.
	// Vacío = solo stdout.
	File string

	// MaxAge es la retención de archivos rotados. Default: 7 días.
	MaxAge time.Duration

	// RotationTime es el intervalo de rotación. Default: 24h.
	RotationTime time.Duration
}

func build(cfg Config) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	prod := strings.EqualFold(strings.TrimSpace(cfg.Env), "prod")

	var cores []zapcore.Core
	if prod {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(prodEncoder()), zapcore.Lock(os.Stdout), level))
	} else {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(devEncoder()), zapcore.Lock(os.Stdout), level))
	}

	var sinkErr error
	if cfg.File != "" {
		w, err := fileSink(cfg)
		if err == nil {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(prodEncoder()), w, level))
		}
		sinkErr = err
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if prod {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	l := zap.New(zapcore.NewTee(cores...), opts...)
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	if sinkErr != nil {
		// Sin sink de archivo seguimos con stdout.
		l.Warn("log file sink disabled", zap.String("file", cfg.File), zap.Error(sinkErr))
	}
	return l
}

func devEncoder() zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return ec
}

func prodEncoder() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return ec
}

// fileSink arma un writer rotado: <File>.YYYYMMDD con symlink a <File>.
func fileSink(cfg Config) (zapcore.WriteSyncer, error) {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	rotation := cfg.RotationTime
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, err
	}
	w, err := rotatelogs.New(
		cfg.File+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(rotation),
	)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(w), nil
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
