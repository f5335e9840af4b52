package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the chains in the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")
		chains := appCtx.Services.Registry.All()
		out := cmd.OutOrStdout()

		if asJSON {
			return writeJSON(out, chains)
		}

		tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSLUG\tNAME\tNATIVE\tEXPLORER")
		for _, c := range chains {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Slug, c.Name, c.NativeCurrencySymbol, displayOrDash(c.ExplorerURL))
		}
		return tw.Flush()
	},
}

func init() {
	chainsCmd.Flags().Bool("json", false, "print the registry as JSON")
	rootCmd.AddCommand(chainsCmd)
}
