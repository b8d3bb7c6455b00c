package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	envFiles  []string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "pricewatch",
	Short:         "Track product prices and alert on drops",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		loadEnvFiles(envFiles)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env.local", ".env"}, "Dotenv files loaded before configuration (missing files are ignored)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(retargetCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadEnvFiles never overrides variables already set in the environment, and
// earlier files win over later ones.
func loadEnvFiles(files []string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", f, err)
		}
	}
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
