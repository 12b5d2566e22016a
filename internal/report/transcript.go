package report

import (
	"chartsense/backend-go/internal/markdown"
	"chartsense/backend-go/internal/models"
)

// Bubble is one transcript entry. User text is shown verbatim, model text as
// parsed markdown.
type Bubble struct {
	ID     string           `json:"id"`
	Role   models.Role      `json:"role"`
	Align  string           `json:"align"`
	Text   string           `json:"text,omitempty"`
	Blocks []markdown.Block `json:"blocks,omitempty"`
	HTML   string           `json:"html,omitempty"`
	Images []string         `json:"images,omitempty"`
}

type TranscriptView struct {
	Started   bool     `json:"started"`
	Streaming bool     `json:"streaming"`
	Error     string   `json:"error,omitempty"`
	Bubbles   []Bubble `json:"bubbles"`
}

func Transcript(msgs []models.ChatMessage) []Bubble {
	out := make([]Bubble, 0, len(msgs))
	for _, m := range msgs {
		b := Bubble{ID: m.ID, Role: m.Role, Images: m.ImagePreviewURLs}
		if m.Role == models.RoleUser {
			b.Align = "right"
			b.Text = m.Content
		} else {
			b.Align = "left"
			b.Blocks = markdown.Parse(m.Content)
			b.HTML = markdown.RenderHTML(b.Blocks)
		}
		out = append(out, b)
	}
	return out
}

// ChatPage builds the full chat panel from a workspace snapshot.
func ChatPage(snap models.WorkspaceSnapshot) TranscriptView {
	return TranscriptView{
		Started:   snap.ChatStarted,
		Streaming: snap.ChatStreaming,
		Error:     snap.ChatError,
		Bubbles:   Transcript(snap.Messages),
	}
}
