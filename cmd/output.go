package cmd

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"text/template"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
)

const (
	jsonPrefix = ""
	jsonIndent = "  "
)

type outputFormat string

const (
	formatHuman    outputFormat = "human"
	formatJSON     outputFormat = "json"
	formatCSV      outputFormat = "csv"
	formatMarkdown outputFormat = "markdown"
)

//go:embed templates/report.md.tmpl
var reportTemplateFS embed.FS

var markdownReportTemplate = template.Must(
	template.New("report.md.tmpl").Funcs(template.FuncMap{
		"statusBadge": statusBadge,
		"escape":      escapeMarkdownCell,
	}).ParseFS(reportTemplateFS, "templates/report.md.tmpl"),
)

var csvHeader = []string{"chain_id", "address", "score", "rating", "rule_id", "status", "message", "error_category", "error"}

func parseOutputFormat(value string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(value))); f {
	case "", formatHuman:
		return formatHuman, nil
	case formatJSON, formatCSV, formatMarkdown:
		return f, nil
	case "md":
		return formatMarkdown, nil
	}
	return "", &OutputFormatError{Format: value}
}

// renderOutcomes writes outcomes in the requested format. A single
// successful outcome renders as a bare report in JSON; anything else
// renders the outcome list.
func renderOutcomes(w io.Writer, format outputFormat, outcomes []analysis.Outcome) error {
	switch format {
	case formatJSON:
		if len(outcomes) == 1 && !outcomes[0].Failed() {
			return writeJSON(w, outcomes[0].Report)
		}
		return writeJSON(w, outcomes)
	case formatCSV:
		return writeCSV(w, outcomes)
	case formatMarkdown:
		return markdownReportTemplate.Execute(w, outcomes)
	default:
		for i, o := range outcomes {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if o.Failed() {
				fmt.Fprintf(w, "%s %s on chain %d: %s (%s)\n",
					colorError("✗"), o.Target.Address, o.Target.ChainID, o.Error, o.Category)
				continue
			}
			writeHumanReport(w, o.Report)
		}
		if len(outcomes) > 1 {
			fmt.Fprintln(w)
			writeBatchSummary(w, outcomes)
		}
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, jsonPrefix, jsonIndent)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func writeCSV(w io.Writer, outcomes []analysis.Outcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range outcomes {
		chainID := strconv.FormatUint(o.Target.ChainID, 10)
		if o.Failed() {
			if err := writer.Write([]string{chainID, o.Target.Address, "", "", "", "", "", o.Category, o.Error}); err != nil {
				return err
			}
			continue
		}
		r := o.Report
		score := strconv.Itoa(r.Score.Score)
		for _, res := range r.Checks {
			row := []string{chainID, r.Address.Hex(), score, string(r.Score.Rating), string(res.RuleID), string(res.Status), res.Message, "", ""}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHumanReport(w io.Writer, r *analysis.Report) {
	st := r.State
	fmt.Fprintf(w, "%s %s on %s (chain %d)\n", colorBold("Safe"), r.Address.Hex(), r.ChainName, r.ChainID)
	fmt.Fprintf(w, "  Version %s | Threshold %d of %d | Nonce %d | Modules %d | Block %d\n",
		displayOrDash(st.Version), st.Threshold, len(st.Owners), st.Nonce, len(st.Modules), st.BlockNumber)
	if st.Guard != nil {
		fmt.Fprintf(w, "  Guard %s\n", st.Guard.Hex())
	}
	if st.FallbackHandler != nil {
		fmt.Fprintf(w, "  Fallback handler %s\n", st.FallbackHandler.Hex())
	}
	fmt.Fprintln(w)

	scoreLine := fmt.Sprintf("%d/100 %s", r.Score.Score, r.Score.Rating)
	fmt.Fprintf(w, "Security score: %s\n", formatRatingWithColor(r.Score.Rating, scoreLine))
	fmt.Fprintf(w, "  %s\n", r.Score.Description)
	fmt.Fprintf(w, "  %d passed, %d warnings, %d failed, %d unknown\n\n",
		r.Score.Passed, r.Score.Warned, r.Score.Failed, r.Score.Unknown)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	for _, res := range r.Checks {
		label := strings.ToUpper(string(res.Status))
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", formatStatusWithColor(label), res.Title, res.Message)
	}
	_ = tw.Flush()

	if len(r.Unavailable) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorWarn("Unavailable data:"))
		for _, note := range r.Unavailable {
			fmt.Fprintf(w, "  - %s\n", note)
		}
	}

	if r.Deployments != nil {
		writeDeployments(w, *r.Deployments)
	}

	if r.ExplorerURL != "" {
		fmt.Fprintf(w, "\nExplorer: %s/address/%s\n", strings.TrimRight(r.ExplorerURL, "/"), r.Address.Hex())
	}
}

func writeDeployments(w io.Writer, m safe.DeploymentMap) {
	fmt.Fprintf(w, "\nDeployments: %d chain(s)", m.TotalDeployments)
	if m.MultiChain {
		fmt.Fprint(w, colorInfo(" multi-chain"))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	for _, d := range m.Deployments {
		if d.Present() {
			fmt.Fprintf(tw, "  %s\t%s\tthreshold %d of %d\tversion %s\n",
				d.ChainName, colorSuccess("present"), d.State.Threshold, len(d.State.Owners), displayOrDash(d.State.Version))
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t\n", d.ChainName, colorMuted("absent"), d.Reason)
	}
	_ = tw.Flush()

	if m.Reuse.Detected() {
		fmt.Fprintf(w, "%s\n", colorWarn("Owners reused across chains:"))
		for _, owner := range m.Reuse.Reused {
			fmt.Fprintf(w, "  %s on chains %v\n", owner.Hex(), m.Reuse.Chains[owner])
		}
	}
}

func writeBatchSummary(w io.Writer, outcomes []analysis.Outcome) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tADDRESS\tSCORE\tRATING\tDURATION")
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
			fmt.Fprintf(tw, "%d\t%s\t-\t%s\t%.2fs\n", o.Target.ChainID, o.Target.Address, colorError(o.Category), o.Duration)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%.2fs\n", o.Target.ChainID, o.Report.Address.Hex(), o.Report.Score.Score,
			formatRatingWithColor(o.Report.Score.Rating, string(o.Report.Score.Rating)), o.Duration)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d analysed, %d failed\n", len(outcomes)-failed, failed)
}

func statusBadge(s check.Status) string {
	switch s {
	case check.StatusPass:
		return "✅ pass"
	case check.StatusWarn:
		return "⚠️ warn"
	case check.StatusFail:
		return "❌ fail"
	default:
		return "❔ unknown"
	}
}

func escapeMarkdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func displayOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
