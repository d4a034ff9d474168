package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"securepatrol/config"
	"securepatrol/core/appbootstrap"
	"securepatrol/core/store"
	"securepatrol/core/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.AppConfig
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:   "securepatrol",
	Short: "securepatrol - security patrol incident reporting service",
	Long: `securepatrol records incidents reported by guards, numbers them per year,
stores their media and notifies the reporter's team.

Configuration is read from config.yaml (if present) and SECUREPATROL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(levelFor(cfg.LogLevel))
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		zl, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = utils.NewLoggerFromZap(zl)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return appbootstrap.Serve(cmd.Context(), cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return appbootstrap.Migrate(cmd.Context(), cfg, logger)
	},
}

var newUser appbootstrap.NewUser

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a login account",
	Long: `Creates a user that can log in to the API.

Example:
  securepatrol create-user --username jdoe --password 's3cret-pass' --role guard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := appbootstrap.CreateUser(cmd.Context(), cfg, logger, newUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id=%d, role=%s)\n", u.Username, u.ID, u.Role)
		return nil
	},
}

var seedPassword string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo team with a supervisor and three guards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return appbootstrap.Seed(cmd.Context(), cfg, logger, seedPassword)
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = utils.NewNopLogger()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), config.Usage())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to config.yaml")

	createUserCmd.Flags().StringVar(&newUser.Username, "username", "", "Login name")
	createUserCmd.Flags().StringVar(&newUser.Name, "name", "", "Display name")
	createUserCmd.Flags().StringVar(&newUser.Email, "email", "", "Email address")
	createUserCmd.Flags().StringVar(&newUser.Password, "password", "", "Password (min 8 characters)")
	createUserCmd.Flags().StringVar(&newUser.Role, "role", store.RoleGuard, "Role: admin, supervisor or guard")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")

	seedCmd.Flags().StringVar(&seedPassword, "password", "patrol-demo", "Password for every seeded account")

	rootCmd.AddCommand(serveCmd, migrateCmd, createUserCmd, seedCmd, envCmd)
}

func levelFor(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
