package services

import (
	"context"

	"chartsense/backend-go/internal/models"
)

// ImageData is an encoded image as sent to the model.
type ImageData struct {
	Data      string
	MediaType string
}

// Part is one element of a multi-part request: text or an image.
type Part struct {
	Text  string
	Image *ImageData
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func ImagePart(img models.UploadedImage) Part {
	return Part{Image: &ImageData{Data: img.Data, MediaType: img.MediaType}}
}

// Message is one user turn in a chat session. A message with no Parts is a
// bare text message.
type Message struct {
	Text  string
	Parts []Part
}

func (m Message) Bare() bool { return len(m.Parts) == 0 }

// Model is the remote analysis service.
type Model interface {
	// Verify checks that an image is a chart of the expected timeframe.
	Verify(ctx context.Context, img ImageData, expected models.Timeframe) (models.Verification, error)
	// Analyze runs the structured top-down analysis over labelled images.
	Analyze(ctx context.Context, parts []Part) (models.AnalysisResult, error)
	// CreateSession opens a stateful conversation.
	CreateSession(ctx context.Context) (ChatSession, error)
}

// ChatSession is a stateful conversation. SendTurn calls onChunk for every
// piece of streamed text, in order, and returns once the reply is complete.
type ChatSession interface {
	SendTurn(ctx context.Context, msg Message, onChunk func(string)) error
}
