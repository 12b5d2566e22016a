package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/report"
)

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderVerification(w io.Writer, tf models.Timeframe, v models.Verification, degraded bool) {
	status := "OK"
	if !v.IsValid {
		status = "REJECTED"
	} else if degraded {
		status = "SKIPPED"
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Slot", "Status", "Reason"}),
	)
	_ = table.Append([]string{tf.FullLabel(), status, v.Reason})
	_ = table.Render()
}

func renderAnalysis(w io.Writer, res models.AnalysisResult) {
	view := report.Build(res)

	fmt.Fprintf(w, "Verdict: %s  Confidence: %s\n\n", view.Verdict.Label, view.Confidence)

	plan := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Decision", "Take Profit", "Entry", "Stop Loss"}),
	)
	row := make([]string, 0, len(view.Plan))
	for _, cell := range view.Plan {
		row = append(row, cell.Value)
	}
	_ = plan.Append(row)
	_ = plan.Render()

	if len(view.Indicators) > 0 {
		fmt.Fprintln(w)
		ind := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Indicator", "Signal", "Details"}),
		)
		for _, r := range view.Indicators {
			details := r.Details
			if len(details) > 60 {
				details = details[:60] + "..."
			}
			_ = ind.Append([]string{r.Indicator, r.Signal, details})
		}
		_ = ind.Render()
	}

	section(w, "Summary", res.AnalysisSummary)
	section(w, "Risk Management", res.RiskManagement)
	if res.Disclaimer != "" {
		fmt.Fprintf(w, "\n%s\n", res.Disclaimer)
	}
}

func section(w io.Writer, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", title, strings.Repeat("-", len(title)), body)
}
