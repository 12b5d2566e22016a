package workspace

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/services"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n0000000000")

type fakeSession struct {
	model *fakeModel
	mu    sync.Mutex
	sent  []services.Message
}

func (s *fakeSession) SendTurn(ctx context.Context, msg services.Message, onChunk func(string)) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	m := s.model
	m.mu.Lock()
	chunks, err, gate := m.chunks, m.turnErr, m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	for _, c := range chunks {
		onChunk(c)
	}
	return err
}

type fakeModel struct {
	mu         sync.Mutex
	verify     models.Verification
	verifyErr  error
	analysis   models.AnalysisResult
	analyzeErr error
	analyzed   int
	chunks     []string
	turnErr    error
	gate       chan struct{}
	sessions   []*fakeSession
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		verify: models.Verification{IsValid: true, Reason: "Timeframe label matches."},
		analysis: models.AnalysisResult{
			Verdict:         models.VerdictNeutral,
			Confidence:      0.5,
			TradingDecision: models.DecisionHold,
			StopLoss:        1,
			TakeProfit:      2,
		},
		chunks: []string{"Mar", "ket is..."},
	}
}

func (m *fakeModel) Verify(_ context.Context, _ services.ImageData, _ models.Timeframe) (models.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verify, m.verifyErr
}

func (m *fakeModel) Analyze(_ context.Context, _ []services.Part) (models.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzed++
	return m.analysis, m.analyzeErr
}

func (m *fakeModel) CreateSession(_ context.Context) (services.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &fakeSession{model: m}
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *fakeModel) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func newTestWorkspace(m *fakeModel) *Workspace {
	in := ingest.NewIngestor(ingest.NewPreviews(), 1<<20)
	return New("trader@example.com", Deps{
		Model:         m,
		Verifier:      services.NewGate(m, nil, 0, false),
		Analyzer:      services.NewAnalyzer(m),
		Ingestor:      in,
		MaxChatImages: 6,
	})
}

func ingestPNG(t *testing.T, w *Workspace) ingest.Image {
	t.Helper()
	img, err := w.deps.Ingestor.FromReader(bytes.NewReader(pngBytes), "image/png", ingest.SourcePicker)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return img
}

func uploadTo(t *testing.T, w *Workspace, tf models.Timeframe) {
	t.Helper()
	if err := w.SetActive(tf); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := w.Upload(context.Background(), ingestPNG(t, w)); err != nil {
		t.Fatalf("upload %s: %v", tf, err)
	}
}

func uploadRequired(t *testing.T, w *Workspace) {
	t.Helper()
	for _, tf := range []models.Timeframe{models.TF1H, models.TF15M, models.TF3M} {
		uploadTo(t, w, tf)
	}
}

func pngAttachment() ingest.Attachment {
	return ingest.Attachment{Name: "chart.png", MediaType: "image/png", Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pngBytes)), nil
	}}
}
