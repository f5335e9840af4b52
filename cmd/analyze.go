package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
)

type analyzeParams struct {
	Chain     string
	BatchFile string
	Output    string
	File      string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [address...]",
	Short: "Analyse the security configuration of one or more Safes",
	Long: `Fetch each Safe's on-chain configuration, evaluate the security rules
and print a scored report.

Examples:
  safe-audit analyze 0x1234...abcd --chain ethereum
  safe-audit analyze 0x1234...abcd --chain 42161 --probe --output json
  safe-audit analyze --batch safes.txt --chain base --output csv --file report.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		params := analyzeParams{}
		params.Chain, _ = cmd.Flags().GetString("chain")
		params.BatchFile, _ = cmd.Flags().GetString("batch")
		params.Output, _ = cmd.Flags().GetString("output")
		params.File, _ = cmd.Flags().GetString("file")

		format, err := parseOutputFormat(params.Output)
		if err != nil {
			return err
		}

		targets, err := collectTargets(appCtx.Services.Registry, params, args)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return errors.New("no Safe address given (pass addresses or --batch)")
		}

		outcomes := runAnalyses(cmd, appCtx, targets)

		if appCtx.Config.Analyze.Save {
			if err := saveReports(cmd.Context(), cmd.ErrOrStderr(), appCtx.Services.Reports, outcomes); err != nil {
				return fmt.Errorf("save reports: %w", err)
			}
		}

		if err := emitOutcomes(cmd, format, params.File, outcomes); err != nil {
			return err
		}
		return outcomesError(outcomes)
	},
}

func collectTargets(reg *chain.Registry, params analyzeParams, args []string) ([]analysis.Target, error) {
	var defaultChain *chain.Descriptor
	if params.Chain != "" {
		desc, err := resolveChainFlag(reg, params.Chain)
		if err != nil {
			return nil, err
		}
		defaultChain = &desc
	}

	var targets []analysis.Target
	if len(args) > 0 {
		if defaultChain == nil {
			return nil, errors.New("--chain is required when addresses are given as arguments")
		}
		for _, addr := range args {
			targets = append(targets, analysis.Target{ChainID: defaultChain.ID, Address: addr})
		}
	}

	if params.BatchFile != "" {
		f, err := os.Open(params.BatchFile)
		if err != nil {
			return nil, fmt.Errorf("open batch file: %w", err)
		}
		defer f.Close()
		batch, err := parseTargets(f, reg, defaultChain)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", params.BatchFile, err)
		}
		targets = append(targets, batch...)
	}
	return targets, nil
}

func runAnalyses(cmd *cobra.Command, appCtx *AppContext, targets []analysis.Target) []analysis.Outcome {
	cfg := appCtx.Config
	runner := &analysis.Runner{
		Concurrency: cfg.Analyze.Concurrency,
		RateLimit:   cfg.Analyze.RateLimit,
		Timeout:     cfg.analysisTimeout(),
	}
	opts := analysis.Options{ProbeMultiChain: cfg.Analyze.Probe}

	var progress *progressPrinter
	if cfg.Analyze.ProgressEnabled && len(targets) > 1 {
		progress = newProgressPrinter(len(targets), "analyze")
		progress.Start()
	}

	appCtx.Logger.Infow("starting analysis",
		"targets", len(targets),
		"probe", opts.ProbeMultiChain,
		"concurrency", runner.Concurrency)

	start := time.Now()
	outcomes := runner.Run(cmd.Context(), appCtx.Services.Orchestrator, targets, opts, func(_ int, o analysis.Outcome) {
		if o.Failed() {
			appCtx.Logger.Warnw("analysis failed",
				"chain_id", o.Target.ChainID,
				"address", o.Target.Address,
				"category", o.Category,
				"error", o.Error)
		}
		if progress != nil {
			progress.Increment(!o.Failed(), o.Duration)
		}
	})
	duration := time.Since(start)

	if progress != nil {
		progress.Stop()
	}

	if cfg.Defaults.TelemetryEnabled {
		path, err := getTelemetryPath()
		if err == nil {
			err = recordTelemetry(path, "analyze", outcomes, duration)
		}
		if err != nil {
			appCtx.Logger.Warnw("failed to record telemetry", "error", err)
		}
	}

	return outcomes
}

// emitOutcomes renders to stdout, or to file (colour disabled) when set.
func emitOutcomes(cmd *cobra.Command, format outputFormat, file string, outcomes []analysis.Outcome) error {
	if file == "" {
		return renderOutcomes(cmd.OutOrStdout(), format, outcomes)
	}

	previous := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = previous }()

	var buf bytes.Buffer
	if err := renderOutcomes(&buf, format, outcomes); err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	path, err := writeOutputFile(cwd, file, buf.Bytes())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s Report written to %s\n", colorSuccess("✓"), path)
	return nil
}

func outcomesError(outcomes []analysis.Outcome) error {
	failed := 0
	var last analysis.Outcome
	for _, o := range outcomes {
		if o.Failed() {
			failed++
			last = o
		}
	}
	switch {
	case failed == 0:
		return nil
	case len(outcomes) == 1:
		return &AnalysisFailedError{
			Address:  last.Target.Address,
			ChainID:  last.Target.ChainID,
			Category: last.Category,
			Err:      errors.New(last.Error),
		}
	default:
		return &BatchFailedError{Failed: failed, Total: len(outcomes)}
	}
}

func init() {
	flags := analyzeCmd.Flags()
	flags.String("chain", "", "chain slug or id (e.g. ethereum, 42161)")
	flags.String("batch", "", "file with one Safe per line (\"<chain> <address>\" or \"<address>\")")
	flags.StringP("output", "o", "human", "output format: human, json, csv or markdown")
	flags.String("file", "", "write the report to this file (relative to the working directory)")
	flags.BoolVar(&cliConfig.Analyze.Probe, "probe", cliConfig.Analyze.Probe, "probe every registry chain for deployments at the same address")
	flags.IntVar(&cliConfig.Analyze.Concurrency, "concurrency", cliConfig.Analyze.Concurrency, "maximum concurrent analyses for batches")
	flags.IntVar(&cliConfig.Analyze.RateLimit, "rate-limit", cliConfig.Analyze.RateLimit, "analyses started per second for batches")
	flags.BoolVar(&cliConfig.Analyze.Save, "save", cliConfig.Analyze.Save, "save successful reports to the history store")
	flags.BoolVar(&cliConfig.Analyze.ProgressEnabled, "progress", cliConfig.Analyze.ProgressEnabled, "display live progress for batches")
	rootCmd.AddCommand(analyzeCmd)
}
