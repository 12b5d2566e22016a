package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"chartsense/backend-go/internal/auth"
	"chartsense/backend-go/internal/config"
	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/services"
	"chartsense/backend-go/internal/workspace"
)

const testUser = "trader@example.com"

var pngBytes = []byte("\x89PNG\r\n\x1a\n0000000000")

type fakeSession struct {
	chunks []string
	err    error
}

func (s *fakeSession) SendTurn(_ context.Context, _ services.Message, onChunk func(string)) error {
	for _, c := range s.chunks {
		onChunk(c)
	}
	return s.err
}

type fakeModel struct {
	mu         sync.Mutex
	verify     models.Verification
	analysis   models.AnalysisResult
	analyzeErr error
	healthErr  error
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		verify: models.Verification{IsValid: true, Reason: "Timeframe label matches."},
		analysis: models.AnalysisResult{
			Verdict:         models.VerdictBullish,
			Confidence:      0.8,
			AnalysisSummary: "## Trend\nHigher lows.",
			TradingDecision: models.DecisionBuy,
			StopLoss:        41000,
			TakeProfit:      45000,
		},
	}
}

func (m *fakeModel) Verify(_ context.Context, _ services.ImageData, _ models.Timeframe) (models.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verify, nil
}

func (m *fakeModel) Analyze(_ context.Context, _ []services.Part) (models.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analysis, m.analyzeErr
}

func (m *fakeModel) CreateSession(_ context.Context) (services.ChatSession, error) {
	return &fakeSession{chunks: []string{"Mar", "ket is..."}}, nil
}

func (m *fakeModel) Health(_ context.Context) error { return m.healthErr }
func (m *fakeModel) ModelName() string              { return "fake-model" }

func newTestAPI(m *fakeModel) *API {
	cfg := config.Default()
	cfg.MaxUploadBytes = 1 << 20
	in := ingest.NewIngestor(ingest.NewPreviews(), cfg.MaxUploadBytes)
	cache := services.NewMemoryCache()
	reg := workspace.NewRegistry(workspace.Deps{
		Model:         m,
		Verifier:      services.NewGate(m, cache, time.Hour, false),
		Analyzer:      services.NewAnalyzer(m),
		Ingestor:      in,
		MaxChatImages: cfg.MaxChatImages,
	})
	return New(cfg, Deps{
		Cache:    cache,
		Model:    m,
		Auth:     auth.NewMock(0),
		Tokens:   auth.NewIssuer("test-secret", time.Hour),
		Registry: reg,
		Ingestor: in,
	})
}

// signedIn builds a request as if it had passed the auth middleware.
func signedIn(method, target string, body io.Reader) *http.Request {
	r := httptest.NewRequest(method, target, body)
	return r.WithContext(auth.WithUser(r.Context(), auth.User{Email: testUser}))
}

func multipartBody(t *testing.T, files [][]byte, fields map[string]string, fileField string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="chart.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, api *API, slot models.Timeframe) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	api.WorkspaceActive(rec, signedIn(http.MethodPost, "/api/v1/workspace/active", bytes.NewBufferString(`{"slot":"`+string(slot)+`"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("set active %s: %d %s", slot, rec.Code, rec.Body.String())
	}
	body, ct := multipartBody(t, [][]byte{pngBytes}, nil, "file")
	req := signedIn(http.MethodPost, "/api/v1/workspace/upload", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	api.Upload(rec, req)
	return rec
}

func uploadRequired(t *testing.T, api *API) {
	t.Helper()
	for _, tf := range []models.Timeframe{models.TF1H, models.TF15M, models.TF3M} {
		if rec := upload(t, api, tf); rec.Code != http.StatusOK {
			t.Fatalf("upload %s: %d %s", tf, rec.Code, rec.Body.String())
		}
	}
}
