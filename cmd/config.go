package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/safe-audit/internal/application"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
)

const (
	defaultTimeoutSeconds   = 60
	defaultBatchConcurrency = 4
	defaultBatchRate        = 2
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Defaults DefaultValues
	Chains   ChainsConfig
	Releases ReleasesConfig
	Analyze  AnalyzeRuntimeConfig
	// FallbackHandlers adds official fallback handlers (address -> name).
	FallbackHandlers map[string]string
	// Prices overrides USD prices used by extract (symbol -> price).
	Prices map[string]float64
	// ReportsDir holds saved reports; defaults to <data dir>/reports.
	ReportsDir string
}

// DefaultValues represent operator-level defaults, typically derived from env/config.
type DefaultValues struct {
	TimeoutSecs      int
	ExplorerAPIKey   string
	ExplorerRate     float64
	ProbeConcurrency int
	RetryCount       int
	RPCRate          float64
	TelemetryEnabled bool
}

// ChainsConfig points at an alternative registry and per-chain RPC URLs.
type ChainsConfig struct {
	File      string
	Endpoints map[string]string
}

// ReleasesConfig controls the Safe release lookup.
type ReleasesConfig struct {
	URL    string
	Static []string
}

// AnalyzeRuntimeConfig consolidates flag-driven settings for analyze.
type AnalyzeRuntimeConfig struct {
	Concurrency     int
	RateLimit       int
	Probe           bool
	ProgressEnabled bool
	Save            bool
}

type defaultOverrides struct {
	TimeoutSecs      *int
	ExplorerAPIKey   string
	ExplorerRate     *float64
	ProbeConcurrency *int
	RetryCount       *int
	RPCRate          *float64
	TelemetryEnabled *bool
	ChainsFile       string
	Endpoints        map[string]string
	ReleasesURL      string
	StaticReleases   []string
	FallbackHandlers map[string]string
	Prices           map[string]float64
	ReportsDir       string
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Defaults: DefaultValues{
			TimeoutSecs:      defaultTimeoutSeconds,
			ProbeConcurrency: constants.DefaultProbeConcurrency,
			RetryCount:       constants.DefaultRetryCount,
			RPCRate:          constants.DefaultRPCRate,
		},
		Analyze: AnalyzeRuntimeConfig{
			Concurrency:     defaultBatchConcurrency,
			RateLimit:       defaultBatchRate,
			ProgressEnabled: true,
		},
	}
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{}

	if viper.IsSet("defaults.timeout_secs") {
		val := viper.GetInt("defaults.timeout_secs")
		overrides.TimeoutSecs = &val
	}
	if viper.IsSet("defaults.explorer_api_key") {
		overrides.ExplorerAPIKey = viper.GetString("defaults.explorer_api_key")
	}
	if viper.IsSet("defaults.explorer_rate") {
		val := viper.GetFloat64("defaults.explorer_rate")
		overrides.ExplorerRate = &val
	}
	if viper.IsSet("defaults.probe_concurrency") {
		val := viper.GetInt("defaults.probe_concurrency")
		overrides.ProbeConcurrency = &val
	}
	if viper.IsSet("defaults.retry_count") {
		val := viper.GetInt("defaults.retry_count")
		overrides.RetryCount = &val
	}
	if viper.IsSet("defaults.rate_limit") {
		val := viper.GetFloat64("defaults.rate_limit")
		overrides.RPCRate = &val
	}
	if viper.IsSet("defaults.telemetry") {
		val := viper.GetBool("defaults.telemetry")
		overrides.TelemetryEnabled = &val
	}
	if viper.IsSet("chains.file") {
		overrides.ChainsFile = viper.GetString("chains.file")
	}
	if viper.IsSet("rpc") {
		overrides.Endpoints = viper.GetStringMapString("rpc")
	}
	if viper.IsSet("releases.url") {
		overrides.ReleasesURL = viper.GetString("releases.url")
	}
	if viper.IsSet("releases.static") {
		overrides.StaticReleases = viper.GetStringSlice("releases.static")
	}
	if viper.IsSet("fallback_handlers") {
		overrides.FallbackHandlers = viper.GetStringMapString("fallback_handlers")
	}
	if viper.IsSet("reports.dir") {
		overrides.ReportsDir = viper.GetString("reports.dir")
	}
	if viper.IsSet("prices") {
		overrides.Prices = make(map[string]float64)
		for symbol, raw := range viper.GetStringMap("prices") {
			if price, ok := toFloat(raw); ok {
				overrides.Prices[strings.ToUpper(symbol)] = price
			}
		}
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into the runtime config when the user
// did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadDefaultOverrides()
	flags := cmd.Flags()

	if overrides.TimeoutSecs != nil {
		applyIntDefault(flags, "timeout", *overrides.TimeoutSecs, func(v int) {
			cliConfig.Defaults.TimeoutSecs = v
		})
	}
	if overrides.ExplorerAPIKey != "" {
		setStringFlagIfUnset(flags, "explorer-api-key", overrides.ExplorerAPIKey)
		if f := flags.Lookup("explorer-api-key"); f == nil || !f.Changed {
			cliConfig.Defaults.ExplorerAPIKey = overrides.ExplorerAPIKey
		}
	}
	if overrides.ExplorerRate != nil {
		cliConfig.Defaults.ExplorerRate = *overrides.ExplorerRate
	}
	if overrides.ProbeConcurrency != nil {
		applyIntDefault(flags, "probe-concurrency", *overrides.ProbeConcurrency, func(v int) {
			cliConfig.Defaults.ProbeConcurrency = v
		})
	}
	if overrides.RetryCount != nil {
		applyIntDefault(flags, "retries", *overrides.RetryCount, func(v int) {
			cliConfig.Defaults.RetryCount = v
		})
	}
	if overrides.RPCRate != nil {
		cliConfig.Defaults.RPCRate = *overrides.RPCRate
	}
	if overrides.TelemetryEnabled != nil {
		applyBoolDefault(flags, "telemetry", *overrides.TelemetryEnabled, func(v bool) {
			cliConfig.Defaults.TelemetryEnabled = v
		})
	}
	if overrides.ChainsFile != "" {
		cliConfig.Chains.File = overrides.ChainsFile
	}
	if len(overrides.Endpoints) > 0 {
		cliConfig.Chains.Endpoints = overrides.Endpoints
	}
	if overrides.ReleasesURL != "" {
		cliConfig.Releases.URL = overrides.ReleasesURL
	}
	if overrides.StaticReleases != nil {
		cliConfig.Releases.Static = overrides.StaticReleases
	}
	if len(overrides.FallbackHandlers) > 0 {
		cliConfig.FallbackHandlers = overrides.FallbackHandlers
	}
	if len(overrides.Prices) > 0 {
		cliConfig.Prices = overrides.Prices
	}
	if overrides.ReportsDir != "" {
		cliConfig.ReportsDir = overrides.ReportsDir
	}
}

// containerConfig translates the CLI configuration for application.NewContainer.
func (c *CLIConfig) containerConfig() application.Config {
	retries := c.Defaults.RetryCount
	if retries < 0 {
		retries = 0
	}
	return application.Config{
		ChainsFile:       c.Chains.File,
		Endpoints:        c.Chains.Endpoints,
		RPCRate:          c.Defaults.RPCRate,
		Retries:          uint64(retries),
		CallTimeout:      constants.DefaultCallTimeout,
		ExplorerAPIKey:   c.Defaults.ExplorerAPIKey,
		ExplorerRate:     c.Defaults.ExplorerRate,
		ProbeConcurrency: c.Defaults.ProbeConcurrency,
		FallbackHandlers: c.FallbackHandlers,
		ReleasesURL:      c.Releases.URL,
		StaticReleases:   c.Releases.Static,
		ReportsDir:       c.ReportsDir,
	}
}

// analysisTimeout is the per-Safe timeout derived from the configured seconds.
func (c *CLIConfig) analysisTimeout() time.Duration {
	if c.Defaults.TimeoutSecs <= 0 {
		return constants.DefaultAnalysisTimeout
	}
	return time.Duration(c.Defaults.TimeoutSecs) * time.Second
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
