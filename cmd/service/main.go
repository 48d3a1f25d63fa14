package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/ciciauth/internal/app"
	"github.com/dropDatabas3/ciciauth/internal/config"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH o configs/config.yaml)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
		flagPrint      = flag.Bool("print-config", false, "imprime config efectiva y termina")
	)
	flag.Parse()

	if *flagEnvFile != "" && fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err != nil {
			log.Printf("dotenv: %v", err)
		}
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *flagPrint {
		printConfigSummary(cfg)
		return
	}

	logger.Init(logger.Config{
		Env:          cfg.App.Env,
		Level:        cfg.Log.Level,
		ServiceName:  cfg.App.Name,
		File:         cfg.Log.File,
		MaxAge:       cfg.Log.MaxAge,
		RotationTime: cfg.Log.RotationTime,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, logger.L())

	c, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		logger.L().Fatal("wiring failed", logger.Err(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.L().Warn("cleanup error", logger.Err(err))
		}
	}()

	if err := c.Serve(ctx); err != nil {
		logger.L().Error("http server failed", logger.Err(err))
		os.Exit(1)
	}
	logger.L().Info("bye")
}

func printConfigSummary(c *config.Config) {
	fmt.Printf(`app.env=%s
server.addr=%s
storage.driver=%s migrate_on_start=%t
cache.kind=%s
jwt.issuer=%s audience=%s access_ttl=%s refresh_ttl=%s seeds=%t reuse_detection=%t
lockout.max_attempts=%d duration=%s
devices.max=%d
offline.max_age=%s reverify_after=%s
family.bedtime=%d wake=%d minor_age=%d timezone=%s
smtp.host=%s rate.enabled=%t
`,
		c.App.Env,
		c.Server.Addr,
		c.Storage.Driver, c.Storage.MigrateOnStart,
		c.Cache.Kind,
		c.JWT.Issuer, c.JWT.Audience, c.JWT.AccessTTL, c.JWT.RefreshTTL, c.JWT.AccessKeySeed != "", c.ReuseDetection(),
		c.Lockout.MaxAttempts, c.Lockout.Duration,
		c.Devices.Max,
		c.Offline.MaxAge, c.Offline.ReverifyAfter,
		c.Family.BedtimeHour, c.Family.WakeHour, c.Family.MinorAge, c.Family.Timezone,
		c.SMTP.Host, c.Rate.Enabled,
	)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
