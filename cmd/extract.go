package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/safe-audit/internal/application/discovery"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Discover Safes created through a chain's proxy factory",
	Long: `Scan ProxyCreation logs of the chain's Safe proxy factory and list the
discovered Safe addresses, one per line. With --min-value only Safes whose
native and token balances are worth at least that many USD are kept.

The output can be fed back into "analyze --batch <file> --chain <chain>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		chainFlag, _ := cmd.Flags().GetString("chain")
		from, _ := cmd.Flags().GetUint64("from")
		to, _ := cmd.Flags().GetUint64("to")
		minValue, _ := cmd.Flags().GetFloat64("min-value")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		if chainFlag == "" {
			return errors.New("--chain is required")
		}
		desc, err := resolveChainFlag(appCtx.Services.Registry, chainFlag)
		if err != nil {
			return err
		}
		if minValue < 0 {
			return fmt.Errorf("--min-value must not be negative, got %g", minValue)
		}

		progress := cmd.ErrOrStderr()
		res, err := appCtx.Services.Extractor.Extract(cmd.Context(), desc, discovery.Options{
			FromBlock:   from,
			ToBlock:     to,
			MinValueUSD: minValue,
			Prices:      appCtx.Config.Prices,
			Concurrency: concurrency,
			OnChunk: func(from, to uint64, found int) {
				appCtx.Logger.Debugw("scanned block range", "from", from, "to", to, "found", found)
				if appCtx.Config.Analyze.ProgressEnabled {
					fmt.Fprintf(progress, "\r[extract] blocks %d-%d, %d new", from, to, found)
				}
			},
		})
		if appCtx.Config.Analyze.ProgressEnabled {
			fmt.Fprintln(progress)
		}
		if err != nil {
			return fmt.Errorf("extract on %s: %w", desc.Slug, err)
		}

		var buf bytes.Buffer
		if asJSON {
			if err := writeJSON(&buf, res); err != nil {
				return err
			}
		} else {
			for _, c := range res.Safes {
				fmt.Fprintln(&buf, c.Address.Hex())
			}
		}

		if file == "" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
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
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %d of %d Safes written to %s (blocks %d-%d)\n",
			colorSuccess("✓"), len(res.Safes), res.Scanned, path, res.FromBlock, res.ToBlock)
		return nil
	},
}

func init() {
	flags := extractCmd.Flags()
	flags.String("chain", "", "chain slug or id")
	flags.Uint64("from", 0, "first block to scan (default: registry start block)")
	flags.Uint64("to", 0, "last block to scan (default: chain head)")
	flags.Float64("min-value", 0, "keep only Safes holding at least this many USD")
	flags.Int("concurrency", 8, "parallel balance lookups for --min-value")
	flags.String("file", "", "write the addresses to this file (relative to the working directory)")
	flags.Bool("json", false, "print the full result as JSON")
	rootCmd.AddCommand(extractCmd)
}
