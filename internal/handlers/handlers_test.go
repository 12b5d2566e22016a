package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/report"
	"chartsense/backend-go/internal/services"
)

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func readEvents(t *testing.T, rec *httptest.ResponseRecorder) []models.ChatEvent {
	t.Helper()
	var out []models.ChatEvent
	sc := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var evt models.ChatEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		out = append(out, evt)
	}
	return out
}

func TestLoginIssuesToken(t *testing.T) {
	api := newTestAPI(newFakeModel())
	rec := httptest.NewRecorder()
	api.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"Trader@Example.com","password":"pw"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.LoginResponse](t, rec)
	if resp.Email != testUser || resp.Token == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}
	if u, err := api.Tokens().Parse(resp.Token); err != nil || u.Email != testUser {
		t.Fatalf("token does not parse: %v", err)
	}

	rec = httptest.NewRecorder()
	api.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.c"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without password, got %d", rec.Code)
	}
}

func TestWorkspaceRequiresUser(t *testing.T) {
	api := newTestAPI(newFakeModel())
	rec := httptest.NewRecorder()
	api.Workspace(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workspace", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUploadStoresIntoActiveSlot(t *testing.T) {
	api := newTestAPI(newFakeModel())
	rec := upload(t, api, models.TF15M)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[uploadResponse](t, rec)
	if resp.Verification == nil || !resp.Verification.IsValid {
		t.Fatalf("expected a passing verdict, got %+v", resp.Verification)
	}
	for _, s := range resp.Workspace.Slots {
		if (s.Image != nil) != (s.Timeframe == models.TF15M) {
			t.Fatalf("slot %s has unexpected image state", s.Timeframe)
		}
	}

	rec = httptest.NewRecorder()
	api.Upload(rec, signedIn(http.MethodDelete, "/api/v1/workspace/upload", nil))
	snap := decode[models.WorkspaceSnapshot](t, rec)
	if len(snap.Missing) != 3 {
		t.Fatalf("expected all required slots missing after clear, got %v", snap.Missing)
	}
}

func TestUploadRejectedTimeframe(t *testing.T) {
	m := newFakeModel()
	m.verify = models.Verification{IsValid: false, Reason: "The chart shows a 4 hour timeframe."}
	api := newTestAPI(m)

	rec := upload(t, api, models.TF1H)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["error"] != "incorrect_timeframe" || body["message"] != "Incorrect Timeframe Detected: The chart shows a 4 hour timeframe." {
		t.Fatalf("unexpected body %v", body)
	}
	if api.ingestor.Previews().Len() != 0 {
		t.Fatal("rejected preview should be released")
	}
}

func TestUploadIgnoresNonImageDrop(t *testing.T) {
	api := newTestAPI(newFakeModel())
	body, ct := multipartBody(t, [][]byte{[]byte("just some text")}, map[string]string{"source": "drop"}, "file")
	// Drops are filtered on the sniffed type when the part claims none.
	raw := strings.Replace(body.String(), "Content-Type: image/png\r\n", "", 1)
	req := signedIn(http.MethodPost, "/api/v1/workspace/upload", strings.NewReader(raw))
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	api.Upload(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if resp := decode[uploadResponse](t, rec); !resp.Ignored || resp.Verification != nil {
		t.Fatalf("expected ignored upload, got %+v", resp)
	}
}

func TestUploadAcceptsDataURL(t *testing.T) {
	api := newTestAPI(newFakeModel())
	payload := fmt.Sprintf(`{"dataUrl":"data:image/png;base64,%s"}`, "iVBORw0KGgowMDAwMDAwMDAw")
	req := signedIn(http.MethodPost, "/api/v1/workspace/upload", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Upload(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[uploadResponse](t, rec)
	if resp.Workspace.Slots[0].Image == nil || resp.Workspace.Slots[0].Image.Data != "iVBORw0KGgowMDAwMDAwMDAw" {
		t.Fatalf("expected the data url payload in the 1H slot, got %+v", resp.Workspace.Slots[0])
	}
}

func TestUploadRejectsMalformedDataURL(t *testing.T) {
	api := newTestAPI(newFakeModel())
	req := signedIn(http.MethodPost, "/api/v1/workspace/upload", strings.NewReader(`{"dataUrl":"data:text/plain,hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Upload(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[errorBody](t, rec).Error; got != "invalid_data_url" {
		t.Fatalf("unexpected code %s", got)
	}
}

func TestAnalysisRequiresCharts(t *testing.T) {
	api := newTestAPI(newFakeModel())
	upload(t, api, models.TF1H)

	rec := httptest.NewRecorder()
	api.Analysis(rec, signedIn(http.MethodPost, "/api/v1/analysis", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	want := "Required charts missing: 15 Min, 3 Min. Please upload them to proceed with the Top-Down analysis."
	if body.Message != want {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestAnalysisReturnsReport(t *testing.T) {
	api := newTestAPI(newFakeModel())
	uploadRequired(t, api)

	rec := httptest.NewRecorder()
	api.Analysis(rec, signedIn(http.MethodPost, "/api/v1/analysis", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	v := decode[report.View](t, rec)
	if v.State != report.StateReady || v.Verdict.Label != "BULLISH" || v.Confidence != "80%" {
		t.Fatalf("unexpected view %+v", v)
	}

	rec = httptest.NewRecorder()
	api.Analysis(rec, signedIn(http.MethodGet, "/api/v1/analysis", nil))
	if got := decode[report.View](t, rec); got.State != report.StateReady {
		t.Fatalf("expected stored result, got %s", got.State)
	}
}

func TestAnalysisErrorStatuses(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"minute quota", &services.UpstreamError{Status: 429, Body: "RESOURCE_EXHAUSTED"}, http.StatusTooManyRequests, "quota_exhausted", "60"},
		{"daily quota", &services.UpstreamError{Status: 429, Body: "daily limit exceeded"}, http.StatusTooManyRequests, "quota_exhausted", "3600"},
		{"invalid format", fmt.Errorf("decode: %w", services.ErrInvalidFormat), http.StatusBadGateway, "invalid_format", ""},
		{"circuit open", services.ErrCircuitOpen, http.StatusServiceUnavailable, "model_unavailable", "20"},
		{"upstream 500", &services.UpstreamError{Status: 500}, http.StatusBadGateway, "upstream_error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newFakeModel()
			m.analyzeErr = tc.err
			api := newTestAPI(m)
			uploadRequired(t, api)

			rec := httptest.NewRecorder()
			api.Analysis(rec, signedIn(http.MethodPost, "/api/v1/analysis", nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if got := decode[errorBody](t, rec).Error; got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
			if got := rec.Header().Get("Retry-After"); got != tc.retryAfter {
				t.Fatalf("expected Retry-After %q, got %q", tc.retryAfter, got)
			}
		})
	}
}

func TestChatStartStreamsReply(t *testing.T) {
	api := newTestAPI(newFakeModel())
	uploadRequired(t, api)

	rec := httptest.NewRecorder()
	api.ChatStart(rec, signedIn(http.MethodPost, "/api/v1/chat/start", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected an event stream, got %q: %s", ct, rec.Body.String())
	}
	events := readEvents(t, rec)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := "message,message,delta,delta,done"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("unexpected event sequence %s", got)
	}
	if events[0].Message.Role != models.RoleUser || len(events[0].Message.ImagePreviewURLs) != 3 {
		t.Fatalf("unexpected seed entry %+v", events[0].Message)
	}

	rec = httptest.NewRecorder()
	api.Chat(rec, signedIn(http.MethodGet, "/api/v1/chat", nil))
	view := decode[report.TranscriptView](t, rec)
	if !view.Started || len(view.Bubbles) != 2 || view.Bubbles[1].HTML == "" {
		t.Fatalf("unexpected transcript %+v", view)
	}
}

func TestChatStartWithoutChartsIsJSONError(t *testing.T) {
	api := newTestAPI(newFakeModel())
	rec := httptest.NewRecorder()
	api.ChatStart(rec, signedIn(http.MethodPost, "/api/v1/chat/start", nil))
	if rec.Code != http.StatusUnprocessableEntity || decode[errorBody](t, rec).Error != "missing_charts" {
		t.Fatalf("expected missing_charts, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestChatMessagesBeforeStart(t *testing.T) {
	api := newTestAPI(newFakeModel())
	req := signedIn(http.MethodPost, "/api/v1/chat/messages", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.ChatMessages(rec, req)
	if rec.Code != http.StatusConflict || decode[errorBody](t, rec).Error != "session_not_initialized" {
		t.Fatalf("expected 409 session_not_initialized, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestChatMessagesTruncatesAttachments(t *testing.T) {
	api := newTestAPI(newFakeModel())
	uploadRequired(t, api)
	api.ChatStart(httptest.NewRecorder(), signedIn(http.MethodPost, "/api/v1/chat/start", nil))

	files := make([][]byte, 8)
	for i := range files {
		files[i] = pngBytes
	}
	body, ct := multipartBody(t, files, map[string]string{"text": "what about these?"}, "files")
	req := signedIn(http.MethodPost, "/api/v1/chat/messages", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	api.ChatMessages(rec, req)

	events := readEvents(t, rec)
	if len(events) == 0 || events[0].Type != models.ChatEventMessage {
		t.Fatalf("expected the user entry first, got %s", rec.Body.String())
	}
	if got := len(events[0].Message.ImagePreviewURLs); got != 6 {
		t.Fatalf("expected 6 attachments, got %d", got)
	}
	if last := events[len(events)-1]; last.Type != models.ChatEventDone {
		t.Fatalf("expected done last, got %s", last.Type)
	}
}

func TestPreviewServesBytes(t *testing.T) {
	api := newTestAPI(newFakeModel())
	ref := api.ingestor.Previews().Put(pngBytes, "image/png")

	rec := httptest.NewRecorder()
	api.Preview(rec, httptest.NewRequest(http.MethodGet, ref, nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" || !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Fatalf("unexpected preview response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	api.ingestor.Previews().Release(ref)
	rec = httptest.NewRecorder()
	api.Preview(rec, httptest.NewRequest(http.MethodGet, ref, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after release, got %d", rec.Code)
	}
}

func TestHealthReportsModel(t *testing.T) {
	m := newFakeModel()
	m.healthErr = fmt.Errorf("dial tcp: refused")
	api := newTestAPI(m)
	rec := httptest.NewRecorder()
	api.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	resp := decode[models.HealthResponse](t, rec)
	if resp.Ok || resp.Model != "fake-model" || resp.DepsStatus["model"].Ok {
		t.Fatalf("unexpected health %+v", resp)
	}
	if !resp.DepsStatus["cache"].Ok {
		t.Fatal("memory cache should report ok")
	}
}
