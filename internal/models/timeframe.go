package models

import (
	"fmt"
	"strings"
)

// Timeframe identifies one of the five chart upload slots.
type Timeframe string

const (
	TF1H  Timeframe = "1H"
	TF15M Timeframe = "15M"
	TF5M  Timeframe = "5M"
	TF3M  Timeframe = "3M"
	TF1M  Timeframe = "1M"
)

// AllTimeframes is the coarse-to-fine order used everywhere a request is
// assembled from several slots.
var AllTimeframes = []Timeframe{TF1H, TF15M, TF5M, TF3M, TF1M}

type timeframeInfo struct {
	short    string
	full     string
	analysis string
	chat     string
	required bool
}

var timeframes = map[Timeframe]timeframeInfo{
	TF1H: {
		short:    "1 Hour",
		full:     "1 Hour Chart (High Timeframe)",
		analysis: "1 Hour Chart (HTF: Trend & Major Levels)",
		chat:     "1 Hour (HTF)",
		required: true,
	},
	TF15M: {
		short:    "15 Min",
		full:     "15 Minute Chart (Mid Timeframe)",
		analysis: "15 Minute Chart (MTF: Structure & Sentiment)",
		chat:     "15 Minute (MTF)",
		required: true,
	},
	TF5M: {
		short:    "5 Min",
		full:     "5 Minute Chart (Mid/Low Transition)",
		analysis: "5 Minute Chart (Mid: Structural Transition)",
		chat:     "5 Minute (Mid)",
	},
	TF3M: {
		short:    "3 Min",
		full:     "3 Minute Chart (Low Timeframe)",
		analysis: "3 Minute Chart (LTF: Entry & Execution)",
		chat:     "3 Minute (LTF)",
		required: true,
	},
	TF1M: {
		short:    "1 Min",
		full:     "1 Minute Chart (Hyper Scalping)",
		analysis: "1 Minute Chart (Scalp: Micro-Structure)",
		chat:     "1 Minute (Scalp)",
	},
}

func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", raw)
	}
	return tf, nil
}

func (t Timeframe) Valid() bool {
	_, ok := timeframes[t]
	return ok
}

// Required reports whether the slot must be populated before analysis.
func (t Timeframe) Required() bool { return timeframes[t].required }

func (t Timeframe) ShortLabel() string    { return timeframes[t].short }
func (t Timeframe) FullLabel() string     { return timeframes[t].full }
func (t Timeframe) AnalysisLabel() string { return timeframes[t].analysis }
func (t Timeframe) ChatLabel() string     { return timeframes[t].chat }
