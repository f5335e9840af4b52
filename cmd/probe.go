package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
)

var probeCmd = &cobra.Command{
	Use:   "probe <address>",
	Short: "Find deployments of a Safe address on every registry chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		output, _ := cmd.Flags().GetString("output")

		format, err := parseOutputFormat(output)
		if err != nil {
			return err
		}
		addr, err := safe.ParseAddress(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), appCtx.Config.analysisTimeout())
		defer cancel()

		appCtx.Logger.Infow("probing chains", "address", addr.Hex(), "chains", appCtx.Services.Registry.Len())
		deployments := appCtx.Services.Prober.Probe(ctx, addr, nil)

		out := cmd.OutOrStdout()
		if format == formatJSON {
			return writeJSON(out, deployments)
		}
		writeDeployments(out, deployments)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringP("output", "o", "human", "output format: human or json")
	rootCmd.AddCommand(probeCmd)
}
