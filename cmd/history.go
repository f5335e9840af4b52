package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	jsonstore "github.com/khanhnv2901/safe-audit/internal/infrastructure/persistence/json"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

var historyCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "Show saved reports for a Safe (see analyze --save)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		chainFlag, _ := cmd.Flags().GetString("chain")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		clearAll, _ := cmd.Flags().GetBool("clear")

		repo := appCtx.Services.Reports
		if repo == nil {
			return errors.New("report history is not configured")
		}
		if chainFlag == "" {
			return errors.New("--chain is required")
		}
		desc, err := resolveChainFlag(appCtx.Services.Registry, chainFlag)
		if err != nil {
			return err
		}
		addr, err := safe.ParseAddress(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if clearAll {
			if err := repo.Delete(cmd.Context(), desc.ID, addr); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Deleted saved reports for %s on %s\n", colorSuccess("✓"), addr.Hex(), desc.Name)
			return nil
		}

		history, err := repo.History(cmd.Context(), desc.ID, addr, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, history)
		}
		if len(history) == 0 {
			fmt.Fprintf(out, "No saved reports for %s on %s\n", addr.Hex(), desc.Name)
			return nil
		}
		writeHistory(out, history)
		return nil
	},
}

func writeHistory(w io.Writer, history []jsonstore.StoredReport) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SAVED\tSCORE\tCHANGE\tRATING\tPASS\tWARN\tFAIL\tUNKNOWN")
	for i, h := range history {
		s := h.Report.Score
		change := "-"
		if i+1 < len(history) {
			change = fmt.Sprintf("%+d", s.Score-history[i+1].Report.Score.Score)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			h.SavedAt.Format("2006-01-02 15:04:05"), s.Score, change,
			formatRatingWithColor(s.Rating, string(s.Rating)), s.Passed, s.Warned, s.Failed, s.Unknown)
	}
	_ = tw.Flush()
}

// saveReports stores every successful report and prints the score change
// against the previously saved one.
func saveReports(ctx context.Context, w io.Writer, repo *jsonstore.ReportRepository, outcomes []analysis.Outcome) error {
	if repo == nil {
		return errors.New("report history is not configured")
	}
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		r := o.Report
		previous, err := repo.Latest(ctx, r.ChainID, r.Address)
		if err != nil && !errors.Is(err, domainerrors.ErrReportNotFound) {
			return err
		}
		if _, err := repo.Save(ctx, r); err != nil {
			return err
		}
		if previous == nil {
			fmt.Fprintf(w, "%s Saved %s on chain %d (score %d, first report)\n",
				colorSuccess("✓"), r.Address.Hex(), r.ChainID, r.Score.Score)
			continue
		}
		fmt.Fprintf(w, "%s Saved %s on chain %d (score %d, %+d since %s)\n",
			colorSuccess("✓"), r.Address.Hex(), r.ChainID, r.Score.Score,
			r.Score.Score-previous.Report.Score.Score, previous.SavedAt.Format("2006-01-02"))
	}
	return nil
}

func init() {
	historyCmd.Flags().String("chain", "", "chain slug or id")
	historyCmd.Flags().Int("limit", 20, "maximum number of reports to show (0 = all)")
	historyCmd.Flags().Bool("json", false, "print the stored reports as JSON")
	historyCmd.Flags().Bool("clear", false, "delete every saved report for the Safe")
	rootCmd.AddCommand(historyCmd)
}
