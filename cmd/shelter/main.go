package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"shelter/internal/app"
	"shelter/internal/config"
	"shelter/internal/db"
	"shelter/internal/engine/auth"
	"shelter/internal/migrate"
	"shelter/internal/server"
	"shelter/internal/web"
)

var rootCmd = &cobra.Command{
	Use:   "shelter",
	Short: "Animal shelter adoption CLI",
	Long: `shelter runs the adoption lifecycle of an animal shelter.
- Animals live in the shelter (in_shelter) until one adoption request for them is approved (adopted).
- Adopters file requests; administrators approve or reject them. Approving one request rejects every other pending request for the same animal.
- An adopter may return an adopted animal; the request becomes returned and the animal goes back to the shelter.
- Every change is written to an audit log, see 'shelter log tail'.
Commands act as the user named by --as (or SHELTER_AS).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SHELTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "username to act as")
	rootCmd.PersistentFlags().String("driver", "", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database DSN for postgres")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(animalCmd())
	rootCmd.AddCommand(adoptionCmd())
	rootCmd.AddCommand(returnCmd())
	rootCmd.AddCommand(logCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage shelter.yml",
		Long:  "shelter.yml holds the shelter contact details, server and database settings, auth secrets and the cascade rejection reason.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default shelter.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate shelter.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := migrate.Version(a.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"schema_version": v})
				}
				fmt.Printf("schema version %d\n", v)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath, bootstrapAdmin string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API and form endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.EnsureAdmin(ctx, bootstrapAdmin); err != nil {
					return err
				}
				authCfg := authConfig(a.Config)
				authCfg.Logger = a.Logger
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("auth.jwt_secret or SHELTER_JWT_SECRET is required for bearer auth")
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				forms := web.New(web.Config{
					Engine:       a.Engine,
					Authenticate: server.Authenticator(authCfg, a.Engine),
					ContactPhone: a.Config.Shelter.ContactPhone,
					Logger:       a.Logger,
				})
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     authCfg,
					Metrics:  a.Metrics.Handler(),
					Mount:    func(r chi.Router) { r.Mount("/forms", forms) },
					Logger:   a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving shelter API", "addr", addr, "base_path", basePath, "docs", "/docs", "forms", "/forms")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().StringVar(&bootstrapAdmin, "bootstrap-admin", "", "create this administrator if none exists")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Read the audit log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				events, err := a.Engine.ListEvents(ctx, actor, eventFilters(n, evtType, entityKind, entityID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				rows := make([]table.Row, 0, len(events))
				for _, e := range events {
					rows = append(rows, table.Row{e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID, e.Payload})
				}
				printTable(table.Row{"TS", "Type", "Entity", "Entity ID", "Actor", "Payload"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		LogOutput: os.Stderr,
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withActor resolves --as to a stored user; its role comes from the database.
func withActor(ctx context.Context, fn func(context.Context, *app.App, auth.Actor) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		username := strings.TrimSpace(viper.GetString("as"))
		if username == "" {
			return fmt.Errorf("--as or SHELTER_AS is required")
		}
		u, err := a.Engine.Repo.GetUserByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("user %s: %w", username, err)
		}
		actor, err := a.Engine.ResolveActor(ctx, u.ID)
		if err != nil {
			return err
		}
		return fn(ctx, a, actor)
	})
}

func authConfig(cfg *config.Config) server.AuthConfig {
	secret := cfg.Auth.JWTSecret
	if env := viper.GetString("jwt-secret"); env != "" {
		secret = env
	}
	return server.AuthConfig{
		JWTSecret:     secret,
		JWTIssuer:     cfg.Auth.JWTIssuer,
		JWTAudience:   cfg.Auth.JWTAudience,
		AllowDevLogin: cfg.Auth.AllowDevLogin,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	printTable(header, rows)
	return nil
}

func printTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

func optionalString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
