package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanhnv2901/safe-audit/internal/application"
)

// AppContext is shared by every command after the root pre-run.
type AppContext struct {
	Logger   *zap.SugaredLogger
	Config   *CLIConfig
	Services *application.Container
}

var (
	cfgFile          string
	verbose          bool
	globalAppContext *AppContext
)

var rootCmd = &cobra.Command{
	Use:           "safe-audit",
	Short:         "Security analysis for Safe multisig wallets",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initViper()
		applyConfigDefaults(cmd)

		logger, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		if cliConfig.ReportsDir == "" {
			if dataDir, err := getDataDir(); err == nil {
				cliConfig.ReportsDir = filepath.Join(dataDir, "reports")
			}
		}

		cfg := cliConfig.containerConfig()
		cfg.Logger = logger
		services, err := application.NewContainer(cfg)
		if err != nil {
			return err
		}

		sugar := logger.Sugar()
		sugar.Debugw("configuration loaded",
			"config_file", viper.ConfigFileUsed(),
			"chains", services.Registry.Len(),
			"explorer", services.Explorer.Enabled())

		storeAppContext(cmd, &AppContext{Logger: sugar, Config: cliConfig, Services: services})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appCtx := getAppContext(cmd); appCtx != nil {
			appCtx.Services.Close()
			_ = appCtx.Logger.Sync()
		}
	},
}

// Execute runs the root command and exits non-zero on error.
// Interrupts cancel the command context so running analyses stop early.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", colorError("error:"), err)
		os.Exit(exitCode(err))
	}
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".safe-audit")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("SAFE_AUDIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("defaults.explorer_api_key", "SAFE_AUDIT_EXPLORER_API_KEY", "ETHERSCAN_API_KEY")
	_ = viper.ReadInConfig()
}

// newLogger builds the production logger at warn level, or debug with verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
}

func getAppContext(cmd *cobra.Command) *AppContext {
	return globalAppContext
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.safe-audit.yaml)")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flags.IntVar(&cliConfig.Defaults.TimeoutSecs, "timeout", cliConfig.Defaults.TimeoutSecs, "timeout in seconds for one analysis")
	flags.StringVar(&cliConfig.Defaults.ExplorerAPIKey, "explorer-api-key", "", "Etherscan API key (or set ETHERSCAN_API_KEY)")
	flags.IntVar(&cliConfig.Defaults.ProbeConcurrency, "probe-concurrency", cliConfig.Defaults.ProbeConcurrency, "chains probed in parallel")
	flags.IntVar(&cliConfig.Defaults.RetryCount, "retries", cliConfig.Defaults.RetryCount, "retries for transient network errors")
	flags.BoolVar(&cliConfig.Defaults.TelemetryEnabled, "telemetry", false, "append run metrics to telemetry.jsonl in the data directory")

	rootCmd.AddCommand(versionCmd)
}
