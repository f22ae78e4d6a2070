package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobledger/internal/app"
	"jobledger/internal/config"
	"jobledger/internal/db"
	"jobledger/internal/engine"
	"jobledger/internal/engine/auth"
	"jobledger/internal/logger"
	"jobledger/internal/migrate"
	"jobledger/internal/repo"
	"jobledger/internal/seed"
	"jobledger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "jl",
	Short: "Jobledger CLI",
	Long: `Jobledger is the money ledger of a freelance marketplace.
- Profiles: clients pay, contractors earn; every profile carries a balance.
- Contracts: link one client to one contractor; new -> in_progress -> terminated.
- Jobs: priced units of work under a contract; paying one moves its price from client to contractor exactly once.
- Deposits: a client tops up their balance, capped at a quarter of what they still owe.
- Reports: best profession and best clients over a date window.
- Event log: every payment and deposit is recorded, view with 'jl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	decimal.MarshalJSONWithoutQuotes = true
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JOBLEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64P("profile-id", "p", 0, "act as this profile")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("profile-id", rootCmd.PersistentFlags().Lookup("profile-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(adminCmd())
}

func serveCmd() *cobra.Command {
	var seedEmpty bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogOptions())
			conn, err := app.Open(cmd.Context(), app.Options{
				Workspace:   viper.GetString("workspace"),
				SeedIfEmpty: seedEmpty,
				Log:         log,
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			e := engine.New(conn, log)
			handler, err := server.New(server.Config{
				Engine: e,
				Auth: auth.Authenticator{
					Profiles:           e.Repo,
					JWTSecret:          cfg.Auth.JWTSecret,
					AllowProfileHeader: cfg.Auth.AllowProfileHeader,
				},
				ProfileHeader:      cfg.Auth.ProfileHeader,
				BasePath:           cfg.Server.BasePath,
				DefaultClientLimit: cfg.Reports.DefaultClientLimit,
				Log:                log,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e.Repo, cfg.Webhooks, log)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", cfg.Server.Addr).Str("base_path", cfg.Server.BasePath).Msg("serving jobledger api (OpenAPI at /openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	cmd.Flags().String("base-path", "", "API base path (overrides config)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (overrides config)")
	cmd.Flags().String("log-level", "", "log level (overrides config)")
	cmd.Flags().BoolVar(&seedEmpty, "seed", false, "load the demo fixture when the ledger is empty")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "log-level"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

// loadConfig reads jobledger.yml (or the defaults) and applies flag and env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("base-path"); v != "" {
		cfg.Server.BasePath = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	mig := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}
	mig.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
				v, dirty, err := migrate.Version(conn)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"version": v, "dirty": dirty, "path": db.Path(viper.GetString("workspace"))})
			})
		},
	})
	mig.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
				v, dirty, err := migrate.Version(conn)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"version": v, "dirty": dirty})
				}
				fmt.Printf("schema version %d (dirty=%t)\n", v, dirty)
				return nil
			})
		},
	})
	return mig
}

func seedCmd() *cobra.Command {
	var reset bool
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load marketplace fixtures",
		Long:  "Loads the embedded demo marketplace, or a fixture YAML given with --file. Refuses a non-empty ledger unless --reset is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFixture(file)
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
				if err := seed.Apply(ctx, conn, f, seed.Options{Reset: reset}); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"profiles": len(f.Profiles), "contracts": len(f.Contracts), "jobs": len(f.Jobs)})
				}
				fmt.Printf("seeded %d profiles, %d contracts, %d jobs\n", len(f.Profiles), len(f.Contracts), len(f.Jobs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear existing profiles, contracts and jobs first")
	cmd.Flags().StringVar(&file, "file", "", "fixture YAML (defaults to the embedded demo data)")
	return cmd
}

func loadFixture(path string) (seed.Fixture, error) {
	if path == "" {
		return seed.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return seed.Fixture{}, err
	}
	return seed.Parse(data)
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect server config",
		Long:  "Server settings live in jobledger.yml inside the workspace. Flags and JOBLEDGER_* env vars override it for serve.",
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
		Short: "Write a default jobledger.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.DefaultTemplate), 0o644); err != nil {
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
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "********"
			}
			for i := range cfg.Webhooks {
				if cfg.Webhooks[i].Secret != "" {
					cfg.Webhooks[i].Secret = "********"
				}
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate jobledger.yml",
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

func authCmd() *cobra.Command {
	a := &cobra.Command{Use: "auth", Short: "Issue API credentials"}
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --profile-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("jwt secret is not configured (set auth.jwt_secret or JOBLEDGER_JWT_SECRET)")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				caller, err := e.Caller(ctx, profileID())
				if err != nil {
					return err
				}
				tok, err := auth.Authenticator{JWTSecret: cfg.Auth.JWTSecret}.IssueToken(caller.ID, ttl, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"profile_id": caller.ID, "token": tok})
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	a.AddCommand(token)
	return a
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the ledger event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().Int64Var(&f.Before, "before", 0, "only events older than this id")
	return cmd
}

// --- helpers ---

func profileID() int64 {
	return viper.GetInt64("profile-id")
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, engine.New(conn, zerolog.Nop()))
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	conn, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
