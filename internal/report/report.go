// Package report turns analysis results and chat transcripts into the view
// models the UI renders.
package report

import (
	"fmt"
	"math"
	"strconv"

	"chartsense/backend-go/internal/markdown"
	"chartsense/backend-go/internal/models"
)

type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateError   State = "error"
	StateReady   State = "ready"
)

const (
	loadingTitle = "ChartSense is analyzing..."
	loadingHint  = "This may take a few moments."
	emptyTitle   = "Ready for Analysis"
	emptyHint    = `Upload a chart and click "Analyze Chart" to get an AI-powered technical breakdown and trading recommendation.`
)

type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

type PlanCell struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Tone  string `json:"tone"`
}

type IndicatorRow struct {
	Indicator string `json:"indicator"`
	Signal    string `json:"signal"`
	Details   string `json:"details"`
}

// View is the static report panel set.
type View struct {
	State      State                  `json:"state"`
	Title      string                 `json:"title,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Verdict    *Badge                 `json:"verdict,omitempty"`
	Confidence string                 `json:"confidence,omitempty"`
	Summary    []markdown.Block       `json:"summary,omitempty"`
	Plan       []PlanCell             `json:"plan,omitempty"`
	Indicators []IndicatorRow         `json:"indicators,omitempty"`
	Risk       []markdown.Block       `json:"risk,omitempty"`
	Disclaimer string                 `json:"disclaimer,omitempty"`
	Raw        *models.AnalysisResult `json:"raw,omitempty"`
}

// Page picks the panel for the current analysis state. Loading wins over an
// error, an error wins over a result.
func Page(res *models.AnalysisResult, errMsg string, loading bool) View {
	switch {
	case loading:
		return View{State: StateLoading, Title: loadingTitle, Message: loadingHint}
	case errMsg != "":
		return View{State: StateError, Message: errMsg}
	case res == nil:
		return View{State: StateEmpty, Title: emptyTitle, Message: emptyHint}
	}
	return Build(*res)
}

func Build(res models.AnalysisResult) View {
	entry := "Market"
	if res.EntryPrice != nil {
		entry = FormatPrice(*res.EntryPrice)
	}
	rows := make([]IndicatorRow, 0, len(res.KeyIndicators))
	for _, ind := range res.KeyIndicators {
		rows = append(rows, IndicatorRow{Indicator: ind.Indicator, Signal: ind.Signal, Details: ind.Details})
	}
	raw := res
	return View{
		State:      StateReady,
		Verdict:    &Badge{Label: string(res.Verdict), Tone: VerdictTone(res.Verdict)},
		Confidence: FormatConfidence(res.Confidence),
		Summary:    markdown.Parse(res.AnalysisSummary),
		Plan: []PlanCell{
			{Label: "Decision", Value: string(res.TradingDecision), Tone: "cyan"},
			{Label: "Take Profit", Value: FormatPrice(res.TakeProfit), Tone: "green"},
			{Label: "Entry", Value: entry, Tone: "yellow"},
			{Label: "Stop Loss", Value: FormatPrice(res.StopLoss), Tone: "red"},
		},
		Indicators: rows,
		Risk:       markdown.Parse(res.RiskManagement),
		Disclaimer: res.Disclaimer,
		Raw:        &raw,
	}
}

func VerdictTone(v models.Verdict) string {
	switch v {
	case models.VerdictBullish:
		return "green"
	case models.VerdictBearish:
		return "red"
	default:
		return "yellow"
	}
}

// FormatConfidence renders 0.725 as "73%".
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(c*100)))
}

// FormatPrice prints the shortest exact decimal form.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
