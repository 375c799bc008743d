// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/observability"
)

var cfgFile string

// newRootCmd builds the command tree. Construction is a function so tests can
// execute a fresh tree against a fresh viper state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lancet",
		Short: "Lancet traces tainted data flows through Java sources.",
		Long: `Lancet parses Java sources, marks expressions that carry untrusted input,
propagates them through assignments, calls, and known library models, and
reports every flow that reaches a dangerous sink.`,
		Version: Version,
		// Errors out of RunE are reported once by Execute; cobra must not
		// print usage text on top of them.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand, setting up config and logging.
			if err := initializeConfig(cmd); err != nil {
				return err
			}

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				// Fall back to a usable logger so the failure is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "lancet"})
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}

			observability.InitializeLogger(cfg.Logging)
			observability.GetLogger().Debug("Starting lancet", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./lancet.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newReportCmd(NewStoreProvider()))
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI against a signal-aware context owned by main.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		// Use the logger if available, otherwise fall back to stderr.
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig reads in the config file and LANCET_* environment
// variables, and layers persistent flag overrides on top.
func initializeConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("lancet")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LANCET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if flag := cmd.Flag("log-level"); flag != nil && flag.Changed {
		if err := viper.BindPFlag("logging.level", flag); err != nil {
			return err
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// resolveConfig produces the validated configuration for a command after its
// flags have been bound to viper.
func resolveConfig() (*config.Config, error) {
	return config.NewConfigFromViper(viper.GetViper())
}
