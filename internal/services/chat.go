package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"chartsense/backend-go/internal/models"
)

const (
	SeedUserText    = "Please analyze these charts for a high-precision market situation report and trade plan."
	seedInstruction = "Conduct a high-precision Top-Down analysis. Cross-check all candle lows against Y-axis values for accuracy."
)

type SeedImage struct {
	Timeframe models.Timeframe
	Image     models.UploadedImage
}

// SeedImages orders populated slots coarse-to-fine.
func SeedImages(images map[models.Timeframe]models.UploadedImage) []SeedImage {
	out := make([]SeedImage, 0, len(images))
	for _, tf := range models.AllTimeframes {
		if img, ok := images[tf]; ok {
			out = append(out, SeedImage{Timeframe: tf, Image: img})
		}
	}
	return out
}

// BuildSeedMessage labels every seed image "CHART i of n - <label>:" and
// appends the cross-check instruction, plus the prior analysis as JSON when
// one exists.
func BuildSeedMessage(seeds []SeedImage, prior *models.AnalysisResult) (Message, error) {
	parts := make([]Part, 0, len(seeds)*2+1)
	for i, s := range seeds {
		parts = append(parts, TextPart(fmt.Sprintf("CHART %d of %d - %s:", i+1, len(seeds), s.Timeframe.ChatLabel())))
		parts = append(parts, ImagePart(s.Image))
	}
	prompt := seedInstruction
	if prior != nil {
		b, err := json.Marshal(prior)
		if err != nil {
			return Message{}, err
		}
		prompt += "\n\nReference Analysis Context:\n" + string(b)
	}
	parts = append(parts, TextPart(prompt))
	return Message{Parts: parts}, nil
}

// BuildTurnMessage shapes a follow-up turn. Text without attachments goes
// out as a bare message.
func BuildTurnMessage(text string, images []models.UploadedImage) Message {
	hasText := strings.TrimSpace(text) != ""
	if len(images) == 0 && hasText {
		return Message{Text: text}
	}
	parts := make([]Part, 0, len(images)*2+1)
	if hasText {
		parts = append(parts, TextPart(text))
	}
	for i, img := range images {
		parts = append(parts, TextPart(fmt.Sprintf("Additional Analysis Image %d:", i+1)))
		parts = append(parts, ImagePart(img))
	}
	return Message{Parts: parts}
}
