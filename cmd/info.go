package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration, data directory and registry information",
	Long: `Display safe-audit configuration information including:
  - Configuration file in use
  - Data directory and telemetry file
  - Chain registry source
  - Block explorer availability`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)

		dataDir, err := getDataDir()
		if err != nil {
			return fmt.Errorf("failed to get data directory: %w", err)
		}
		telemetryPath, err := getTelemetryPath()
		if err != nil {
			return fmt.Errorf("failed to get telemetry path: %w", err)
		}

		configFile := viper.ConfigFileUsed()
		configState := "✓ (loaded)"
		if configFile == "" {
			configFile = defaultConfigPath()
			configState = "✗ (using defaults)"
		}

		telemetryState := "✗ (not created yet)"
		if _, err := os.Stat(telemetryPath); err == nil {
			telemetryState = "✓ (exists)"
		}

		registrySource := "built-in"
		if appCtx.Config.Chains.File != "" {
			registrySource = appCtx.Config.Chains.File
		}

		explorerState := colorWarn("disabled (set ETHERSCAN_API_KEY)")
		if appCtx.Services.Explorer.Enabled() {
			explorerState = colorSuccess("enabled")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "safe-audit System Information")
		fmt.Fprintln(out, "=============================")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Version:            %s\n", Version)
		fmt.Fprintf(out, "Platform:           %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Configuration File: %s %s\n", configFile, configState)
		fmt.Fprintf(out, "Data Directory:     %s\n", dataDir)
		fmt.Fprintf(out, "Telemetry File:     %s %s\n", telemetryPath, telemetryState)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Chain Registry:     %s (%d chains)\n", registrySource, appCtx.Services.Registry.Len())
		fmt.Fprintf(out, "Block Explorer:     %s\n", explorerState)
		fmt.Fprintf(out, "Analysis Timeout:   %s\n", appCtx.Config.analysisTimeout())
		fmt.Fprintf(out, "Probe Concurrency:  %d\n", appCtx.Config.Defaults.ProbeConcurrency)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
