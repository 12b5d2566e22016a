package workspace

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/services"
)

func newTestChat(m *fakeModel) (*Chat, *ingest.Ingestor) {
	in := ingest.NewIngestor(ingest.NewPreviews(), 1<<20)
	return NewChat(m, in, 6), in
}

func seedsFor(tfs ...models.Timeframe) []services.SeedImage {
	images := make(map[models.Timeframe]models.UploadedImage)
	for _, tf := range tfs {
		images[tf] = models.UploadedImage{Data: string(tf), MediaType: "image/png", Preview: "/p/" + string(tf)}
	}
	return services.SeedImages(images)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.ChatEvent
}

func (l *eventLog) observe(evt models.ChatEvent) {
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.mu.Unlock()
}

func TestChatStartSeedsAndStreams(t *testing.T) {
	m := newFakeModel()
	c, _ := newTestChat(m)
	var log eventLog

	reply, err := c.Start(context.Background(), seedsFor(models.TF5M, models.TF1H), nil, log.observe)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	sent := m.sessions[0].sent
	if len(sent) != 1 {
		t.Fatalf("expected one seed turn, got %d", len(sent))
	}
	parts := sent[0].Parts
	if len(parts) != 5 {
		t.Fatalf("expected 2 labelled images + instruction, got %d parts", len(parts))
	}
	if parts[0].Text != "CHART 1 of 2 - 1 Hour (HTF):" || parts[1].Image.Data != "1H" {
		t.Fatalf("expected 1H first, got %q", parts[0].Text)
	}
	if parts[2].Text != "CHART 2 of 2 - 5 Minute (Mid):" || parts[3].Image.Data != "5M" {
		t.Fatalf("expected 5M second, got %q", parts[2].Text)
	}

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + model entries, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || len(msgs[0].ImagePreviewURLs) != 2 {
		t.Fatalf("unexpected seed entry: %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleModel || msgs[1].Content != "Market is..." {
		t.Fatalf("unexpected model entry: %+v", msgs[1])
	}
	if reply.ID != msgs[1].ID {
		t.Fatal("reply should be the streamed entry")
	}
	if c.State() != ChatActive || c.Busy() {
		t.Fatalf("expected active and idle, got %s busy=%v", c.State(), c.Busy())
	}

	// user entry, empty model entry, one delta per chunk, done
	if len(log.events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(log.events))
	}
	if log.events[0].Message.Role != models.RoleUser {
		t.Fatal("user entry must be announced before streaming")
	}
	if e := log.events[1]; e.Type != models.ChatEventMessage || e.Message.Role != models.RoleModel || e.Message.Content != "" {
		t.Fatalf("expected an empty model entry, got %+v", e)
	}
	if log.events[2].Delta != "Mar" || log.events[3].Delta != "ket is..." || log.events[3].MessageID != reply.ID {
		t.Fatalf("unexpected stream events: %+v", log.events[2:4])
	}
	if log.events[4].Type != models.ChatEventDone {
		t.Fatalf("expected done, got %s", log.events[4].Type)
	}
}

func TestChatModelEntryPrecedesFirstChunk(t *testing.T) {
	m := newFakeModel()
	m.gate = make(chan struct{})
	c, _ := newTestChat(m)

	done := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)
		done <- err
	}()

	for len(c.Messages()) < 2 {
		runtime.Gosched()
	}
	msgs := c.Messages()
	if msgs[1].Role != models.RoleModel || msgs[1].Content != "" {
		t.Fatalf("expected an empty model entry while waiting, got %+v", msgs[1])
	}
	if !c.Busy() {
		t.Fatal("turn should still be running")
	}
	close(m.gate)

	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := c.Messages()[1].Content; got != "Market is..." {
		t.Fatalf("chunks should grow the same entry, got %q", got)
	}
}

func TestChatSeedCarriesPriorAnalysis(t *testing.T) {
	m := newFakeModel()
	c, _ := newTestChat(m)
	prior := &models.AnalysisResult{Verdict: models.VerdictBearish, TradingDecision: models.DecisionSell}
	if _, err := c.Start(context.Background(), seedsFor(models.TF1H), prior, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	parts := m.sessions[0].sent[0].Parts
	if !strings.Contains(parts[len(parts)-1].Text, "Reference Analysis Context:") {
		t.Fatal("expected prior analysis in seed instruction")
	}
}

func TestChatSendBeforeStart(t *testing.T) {
	c, _ := newTestChat(newFakeModel())
	_, err := c.Send(context.Background(), "hello", nil, nil)
	if !errors.Is(err, ErrSessionNotInitialized) {
		t.Fatalf("expected ErrSessionNotInitialized, got %v", err)
	}
	if c.Err() != "Chat session not initialized." {
		t.Fatalf("unexpected chat error %q", c.Err())
	}
}

func TestChatEmptyTurnIsNoop(t *testing.T) {
	m := newFakeModel()
	c, _ := newTestChat(m)
	c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)
	before := len(c.Messages())

	if _, err := c.Send(context.Background(), "   ", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Messages()) != before {
		t.Fatal("empty turn changed the transcript")
	}
	if len(m.sessions[0].sent) != 1 {
		t.Fatal("empty turn reached the model")
	}
}

func TestChatTextTurnIsBare(t *testing.T) {
	m := newFakeModel()
	c, _ := newTestChat(m)
	c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)

	if _, err := c.Send(context.Background(), "Where is support?", nil, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := m.sessions[0].sent
	if !sent[1].Bare() || sent[1].Text != "Where is support?" {
		t.Fatalf("expected bare text turn, got %+v", sent[1])
	}
	if len(c.Messages()) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(c.Messages()))
	}
}

func TestChatAttachmentFailureAbandonsTurn(t *testing.T) {
	m := newFakeModel()
	c, in := newTestChat(m)
	c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)
	before := len(c.Messages())
	var log eventLog

	broken := ingest.Attachment{Name: "bad.png", Open: func() (io.ReadCloser, error) {
		return nil, errors.New("read failed")
	}}
	_, err := c.Send(context.Background(), "compare", []ingest.Attachment{pngAttachment(), broken, pngAttachment()}, log.observe)
	if !errors.Is(err, ingest.ErrProcessImages) {
		t.Fatalf("expected ErrProcessImages, got %v", err)
	}
	if len(c.Messages()) != before {
		t.Fatal("failed turn appended entries")
	}
	if c.Err() != "Failed to process images." {
		t.Fatalf("unexpected chat error %q", c.Err())
	}
	if len(log.events) != 1 || log.events[0].Type != models.ChatEventError {
		t.Fatalf("expected exactly one error event, got %+v", log.events)
	}
	if in.Previews().Len() != 0 {
		t.Fatal("previews of the failed batch leaked")
	}
	if c.Busy() {
		t.Fatal("busy flag stuck after failure")
	}
}

func TestChatAttachmentTurn(t *testing.T) {
	m := newFakeModel()
	c, in := newTestChat(m)
	c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)

	if _, err := c.Send(context.Background(), "", []ingest.Attachment{pngAttachment(), pngAttachment()}, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := c.Messages()
	if len(msgs[2].ImagePreviewURLs) != 2 {
		t.Fatalf("expected 2 attachment previews, got %d", len(msgs[2].ImagePreviewURLs))
	}
	if in.Previews().Len() != 2 {
		t.Fatalf("expected transcript to own 2 previews, got %d", in.Previews().Len())
	}
	c.Reset()
	if in.Previews().Len() != 0 {
		t.Fatal("reset should release attachment previews")
	}
}

func TestChatTooManyAttachments(t *testing.T) {
	c, _ := newTestChat(newFakeModel())
	c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)
	atts := make([]ingest.Attachment, 7)
	for i := range atts {
		atts[i] = pngAttachment()
	}
	if _, err := c.Send(context.Background(), "x", atts, nil); !errors.Is(err, ErrTooManyAttachments) {
		t.Fatalf("expected ErrTooManyAttachments, got %v", err)
	}
}

func TestChatTurnFailureKeepsTranscript(t *testing.T) {
	m := newFakeModel()
	c, _ := newTestChat(m)
	c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)

	m.mu.Lock()
	m.chunks = nil
	m.turnErr = &services.UpstreamError{Status: 429, Body: "quota"}
	m.mu.Unlock()

	if _, err := c.Send(context.Background(), "next?", nil, nil); err == nil {
		t.Fatal("expected failure")
	}
	msgs := c.Messages()
	if len(msgs) != 4 || msgs[1].Content != "Market is..." {
		t.Fatalf("transcript corrupted: %+v", msgs)
	}
	if msgs[3].Role != models.RoleModel || msgs[3].Content != "" {
		t.Fatalf("failed turn should leave its empty reply entry, got %+v", msgs[3])
	}
	if !strings.Contains(c.Err(), "quota has been exhausted") {
		t.Fatalf("expected quota message, got %q", c.Err())
	}
}

func TestChatResetDropsInFlightStream(t *testing.T) {
	m := newFakeModel()
	m.gate = make(chan struct{})
	c, _ := newTestChat(m)

	done := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background(), seedsFor(models.TF1H), nil, nil)
		done <- err
	}()

	// wait until the seed entry is in and the turn is blocked
	for m.sessionCount() == 0 || len(c.Messages()) == 0 {
		runtime.Gosched()
	}
	c.Reset()
	close(m.gate)

	if err := <-done; !errors.Is(err, ErrSessionReset) {
		t.Fatalf("expected ErrSessionReset, got %v", err)
	}
	if len(c.Messages()) != 0 {
		t.Fatal("stale stream wrote into the reset transcript")
	}
	if c.Busy() || c.Started() {
		t.Fatal("reset chat should be idle and uninitialized")
	}
}
