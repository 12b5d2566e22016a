package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chartsense/backend-go/internal/models"
)

// BuildAnalysisParts lays out every populated slot coarse-to-fine as a text
// marker followed by its image, then the closing instruction.
func BuildAnalysisParts(images map[models.Timeframe]models.UploadedImage) ([]Part, error) {
	parts := make([]Part, 0, len(images)*2+1)
	for _, tf := range models.AllTimeframes {
		img, ok := images[tf]
		if !ok {
			continue
		}
		parts = append(parts, TextPart(fmt.Sprintf("--- %s ---", tf.AnalysisLabel())))
		parts = append(parts, ImagePart(img))
	}
	if len(parts) == 0 {
		return nil, ErrNoImages
	}
	parts = append(parts, TextPart(analysisInstruction))
	return parts, nil
}

type analysisIndicatorWire struct {
	Indicator *string `json:"indicator"`
	Signal    *string `json:"signal"`
	Details   *string `json:"details"`
}

type analysisWire struct {
	Verdict         *string                  `json:"verdict"`
	Confidence      *float64                 `json:"confidence"`
	AnalysisSummary *string                  `json:"analysisSummary"`
	KeyIndicators   *[]analysisIndicatorWire `json:"keyIndicators"`
	TradingDecision *string                  `json:"tradingDecision"`
	EntryPrice      *float64                 `json:"entryPrice"`
	StopLoss        *float64                 `json:"stopLoss"`
	TakeProfit      *float64                 `json:"takeProfit"`
	RiskManagement  *string                  `json:"riskManagement"`
	Disclaimer      *string                  `json:"disclaimer"`
}

// ParseAnalysis decodes a structured analysis strictly. Every field but
// entryPrice must be present and the enums and confidence range must hold.
func ParseAnalysis(text string) (models.AnalysisResult, error) {
	var out models.AnalysisResult
	var wire analysisWire
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &wire); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("verdict", wire.Verdict != nil)
	check("confidence", wire.Confidence != nil)
	check("analysisSummary", wire.AnalysisSummary != nil)
	check("keyIndicators", wire.KeyIndicators != nil)
	check("tradingDecision", wire.TradingDecision != nil)
	check("stopLoss", wire.StopLoss != nil)
	check("takeProfit", wire.TakeProfit != nil)
	check("riskManagement", wire.RiskManagement != nil)
	check("disclaimer", wire.Disclaimer != nil)
	if len(missing) > 0 {
		return out, fmt.Errorf("%w: missing %s", ErrInvalidFormat, strings.Join(missing, ", "))
	}

	indicators := make([]models.KeyIndicator, 0, len(*wire.KeyIndicators))
	for i, ind := range *wire.KeyIndicators {
		if ind.Indicator == nil || ind.Signal == nil || ind.Details == nil {
			return out, fmt.Errorf("%w: keyIndicators[%d] incomplete", ErrInvalidFormat, i)
		}
		indicators = append(indicators, models.KeyIndicator{
			Indicator: *ind.Indicator,
			Signal:    *ind.Signal,
			Details:   *ind.Details,
		})
	}

	out = models.AnalysisResult{
		Verdict:         models.Verdict(strings.ToUpper(strings.TrimSpace(*wire.Verdict))),
		Confidence:      *wire.Confidence,
		AnalysisSummary: *wire.AnalysisSummary,
		KeyIndicators:   indicators,
		TradingDecision: models.Decision(strings.ToUpper(strings.TrimSpace(*wire.TradingDecision))),
		EntryPrice:      wire.EntryPrice,
		StopLoss:        *wire.StopLoss,
		TakeProfit:      *wire.TakeProfit,
		RiskManagement:  *wire.RiskManagement,
		Disclaimer:      *wire.Disclaimer,
	}
	if err := ValidateAnalysis(out); err != nil {
		return models.AnalysisResult{}, err
	}
	return out, nil
}

func ValidateAnalysis(res models.AnalysisResult) error {
	if !res.Verdict.Valid() {
		return fmt.Errorf("%w: verdict %q", ErrInvalidFormat, res.Verdict)
	}
	if !res.TradingDecision.Valid() {
		return fmt.Errorf("%w: tradingDecision %q", ErrInvalidFormat, res.TradingDecision)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidFormat, res.Confidence)
	}
	return nil
}

// Analyzer runs static analyses against the model.
type Analyzer struct {
	model Model
}

func NewAnalyzer(model Model) *Analyzer {
	return &Analyzer{model: model}
}

// Analyze fails with ErrNoImages before any model call when images is empty.
func (a *Analyzer) Analyze(ctx context.Context, images map[models.Timeframe]models.UploadedImage) (models.AnalysisResult, error) {
	parts, err := BuildAnalysisParts(images)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	res, err := a.model.Analyze(ctx, parts)
	if err != nil {
		return models.AnalysisResult{}, ClassifyModelError(err)
	}
	if err := ValidateAnalysis(res); err != nil {
		return models.AnalysisResult{}, err
	}
	return res, nil
}
