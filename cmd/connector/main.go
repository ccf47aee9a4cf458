package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/bootstrap"
	"connector/pkg/dsl"
	"connector/pkg/logging"
	"connector/pkg/migrations"
	"connector/pkg/models"
)

var (
	configFile string
	envFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "connector",
		Short: "Connector between AS4 gateways and national backends",
		Long:  "Connector moves business messages and evidences between gateways and backends of each lane",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the config")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), checkRuleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		earlyLog.Warn("Failed to load env file %s: %v", envFile, err)
	}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting connector", "lanes", len(cfg.Lanes))

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				_ = app.Shutdown(context.Background())
				return err
			}

			log.InfowCtx(ctx, "Service running")
			runErr := app.Run(ctx)
			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown error", "error", err)
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	withDB := func(fn func(db *sql.DB) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()
			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}
			db, err := sql.Open("postgres", bootstrap.PostgresDSN(cfg.Database.Postgres))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			return fn(db)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withDB(func(db *sql.DB) error {
			if err := migrations.UpPostgres(db); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive number")
				}
				steps = n
			}
			return withDB(func(db *sql.DB) error {
				return migrations.DownPostgres(db, steps)
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withDB(func(db *sql.DB) error {
			version, dirty, err := migrations.PostgresVersion(db)
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	})

	return cmd
}

// checkRuleCmd parses a routing match clause and optionally evaluates it
// against the given header values.
func checkRuleCmd() *cobra.Command {
	var details models.MessageDetails

	cmd := &cobra.Command{
		Use:   "check-rule <match clause>",
		Short: "Validate a routing match clause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := dsl.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %s\n", dsl.String(node))
			if cmd.Flags().NFlag() > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "matches: %t\n", dsl.Evaluate(node, &details))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&details.Action, "action", "", "Action header value")
	cmd.Flags().StringVar(&details.Service.Name, "service", "", "Service header value")
	cmd.Flags().StringVar(&details.Service.Type, "service-type", "", "Service type header value")
	cmd.Flags().StringVar(&details.FromParty.ID, "from-party", "", "From party id")
	cmd.Flags().StringVar(&details.FromParty.IDType, "from-party-type", "", "From party id type")
	cmd.Flags().StringVar(&details.FromParty.Role, "from-party-role", "", "From party role")
	cmd.Flags().StringVar(&details.FinalRecipient, "final-recipient", "", "Final recipient")
	return cmd
}
