package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/ciciauth/internal/app"
	"github.com/dropDatabas3/ciciauth/internal/bootstrap"
	"github.com/dropDatabas3/ciciauth/internal/config"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/jwt"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	"github.com/dropDatabas3/ciciauth/internal/offline"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
	"github.com/dropDatabas3/ciciauth/internal/security/secretbox"
	"github.com/dropDatabas3/ciciauth/internal/store"
	_ "github.com/dropDatabas3/ciciauth/internal/store/adapters/memory"
	_ "github.com/dropDatabas3/ciciauth/internal/store/adapters/pg"
)

func main() {
	var (
		configPath = envOr("CONFIG_PATH", "configs/config.yaml")
		envFile    = ".env"
	)

	loadConfig := func() (*config.Config, error) {
		if envFile != "" {
			if _, err := os.Stat(envFile); err == nil {
				_ = godotenv.Load(envFile)
			}
		}
		return config.Load(configPath)
	}

	root := &cobra.Command{
		Use:           "ciciauth",
		Short:         "Servicio de identidad y sesiones de Cici",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "ruta a .env (si existe, se carga)")

	// serve
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			initLogger(cfg)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			c, err := app.Build(ctx, cfg, app.Options{})
			if err != nil {
				return fmt.Errorf("wiring: %w", err)
			}
			defer c.Close()
			return c.Serve(ctx)
		},
	})

	// migrate
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes (solo postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			initLogger(cfg)
			conn, err := store.Open(cmd.Context(), store.AdapterConfig{Name: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
			if err != nil {
				return err
			}
			defer conn.Close()
			m, ok := conn.(store.Migratable)
			if !ok {
				return fmt.Errorf("driver %q has no migrations", cfg.Storage.Driver)
			}
			res, err := m.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("applied=%v skipped=%v duration=%s\n", res.Applied, res.Skipped, res.Duration)
			return nil
		},
	})

	// keys
	keysCmd := &cobra.Command{Use: "keys", Short: "Claves de firma Ed25519"}
	keysCmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Genera semillas de access y refresh y una clave de bundle cliente (formato .env)",
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := jwt.GenerateSeed()
			if err != nil {
				return err
			}
			refresh, err := jwt.GenerateSeed()
			if err != nil {
				return err
			}
			bundle, err := secretbox.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Printf("JWT_ACCESS_KEY_SEED=%s\nJWT_REFRESH_KEY_SEED=%s\n", access, refresh)
			fmt.Printf("# clave para authclient.NewEncryptedFileStore\nCLIENT_BUNDLE_KEY=%s\n", bundle)
			return nil
		},
	})
	root.AddCommand(keysCmd)

	// users
	usersCmd := &cobra.Command{Use: "users", Short: "Cuentas con roles privilegiados (admin, moderator, parent, guardian)"}
	var (
		username      string
		email         string
		role          string
		passwordStdin bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Crea una cuenta activa con el rol indicado",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}
			return withUsers(cmd, loadConfig, func(u *bootstrap.Users) error {
				ident, err := u.Create(cmd.Context(), bootstrap.CreateInput{
					Username: username,
					Email:    email,
					Password: pwd,
					Role:     types.Role(role),
				})
				if err != nil {
					return err
				}
				fmt.Printf("created id=%s username=%s role=%s\n", ident.ID, ident.Username, ident.Role)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&username, "username", "", "username (requerido)")
	createCmd.Flags().StringVar(&email, "email", "", "email (requerido)")
	createCmd.Flags().StringVar(&role, "role", string(types.RoleAdmin), "admin|moderator|parent|guardian|user")
	createCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "lee el password de stdin en vez de pedirlo")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(createCmd)

	usersCmd.AddCommand(&cobra.Command{
		Use:   "set-role <login> <role>",
		Short: "Cambia el rol de una cuenta existente (email o username)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd, loadConfig, func(u *bootstrap.Users) error {
				ident, err := u.SetRole(cmd.Context(), args[0], types.Role(args[1]))
				if err != nil {
					return err
				}
				fmt.Printf("updated id=%s username=%s role=%s\n", ident.ID, ident.Username, ident.Role)
				return nil
			})
		},
	})
	root.AddCommand(usersCmd)

	// token inspect
	tokenCmd := &cobra.Command{Use: "token", Short: "Utilidades de tokens"}
	var verify bool
	inspectCmd := &cobra.Command{
		Use:   "inspect <jwt>",
		Short: "Decodifica un access token y muestra el veredicto offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			ev := offline.New(nil)
			// Los claims se muestran aunque la firma no verifique.
			claims, err := ev.Decode(token)
			if err != nil {
				return err
			}
			if verify {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cfg.JWT.AccessKeySeed == "" {
					return errors.New("--verify requires jwt.access_key_seed")
				}
				ks, err := jwt.KeySetFromSeed(cfg.JWT.AccessKID, cfg.JWT.AccessKeySeed)
				if err != nil {
					return err
				}
				ev.Keys = map[string]ed25519.PublicKey{ks.KID: ks.Pub}
				ev.MaxAge = cfg.Offline.MaxAge
				ev.ReverifyAfter = cfg.Offline.ReverifyAfter
			}
			res := ev.Validate(token)
			out := map[string]any{
				"claims": claims,
				"offline": map[string]any{
					"valid":                   res.Valid,
					"reason":                  res.Reason,
					"needsOnlineVerification": res.NeedsOnlineVerification,
					"embeddedExpired":         res.EmbeddedExpired,
					"tokenAge":                res.TokenAge.String(),
					"signatureChecked":        verify,
				},
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	inspectCmd.Flags().BoolVar(&verify, "verify", false, "verifica la firma con la semilla de access configurada")
	tokenCmd.AddCommand(inspectCmd)
	root.AddCommand(tokenCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initLogger(cfg *config.Config) {
	logger.Init(logger.Config{
		Env:          cfg.App.Env,
		Level:        cfg.Log.Level,
		ServiceName:  cfg.App.Name,
		File:         cfg.Log.File,
		MaxAge:       cfg.Log.MaxAge,
		RotationTime: cfg.Log.RotationTime,
	})
}

// withUsers abre el store configurado y arma el servicio de cuentas.
func withUsers(cmd *cobra.Command, loadConfig func() (*config.Config, error), fn func(*bootstrap.Users) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)
	if cfg.Storage.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "warning: storage.driver=memory, the account only lives in this process")
	}
	conn, err := store.Open(cmd.Context(), store.AdapterConfig{Name: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return err
	}
	defer conn.Close()
	hasher, err := password.NewHasher(password.Default)
	if err != nil {
		return err
	}
	policy, err := app.NewPasswordPolicy(cfg)
	if err != nil {
		return err
	}
	return fn(bootstrap.NewUsers(bootstrap.Deps{Identities: conn.Identities(), Hasher: hasher, Policy: policy}))
}

// readPassword lee el password de stdin o lo pide sin eco en la terminal.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fd := int(os.Stdin.Fd())
	if !bootstrap.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --password-stdin")
	}
	return bootstrap.PromptPassword(cmd.ErrOrStderr(), fd)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
