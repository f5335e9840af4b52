package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [rule-id]",
	Short: "List the security rules and their score weights",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			meta, ok := check.Meta(check.RuleID(args[0]))
			if !ok {
				return fmt.Errorf("%w: unknown rule %q", domainerrors.ErrInvalidInput, args[0])
			}
			if asJSON {
				return writeJSON(out, meta)
			}
			fmt.Fprintf(out, "%s (%s)\nCategory: %s\nWeight:   %d\n\n%s\n",
				meta.Title, meta.ID, meta.Category, meta.Weight, meta.Description)
			return nil
		}

		rules := check.Rules()
		if asJSON {
			return writeJSON(out, rules)
		}

		tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tWEIGHT")
		total := 0
		for _, r := range rules {
			total += r.Weight
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, r.Title, r.Category, r.Weight)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d rules, total weight %d\n", len(rules), total)
		return nil
	},
}

func init() {
	rulesCmd.Flags().Bool("json", false, "print the catalogue as JSON")
	rootCmd.AddCommand(rulesCmd)
}
