// Package workspace holds one user's charts, analysis result and chat, and
// keeps them consistent with a single generation of uploads.
package workspace

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/recorder"
	"chartsense/backend-go/internal/services"
)

// ErrStale means the uploads changed while an analysis ran; its result was
// discarded.
var ErrStale = errors.New("uploads changed during analysis")

const msgAnalysisFailed = "An error occurred during analysis."

// RejectedError is a failed timeframe verification.
type RejectedError struct {
	Timeframe models.Timeframe
	Reason    string
}

func (e *RejectedError) Error() string {
	return "Incorrect Timeframe Detected: " + e.Reason
}

// Verifier checks an image against the slot it targets. The bool reports a
// degraded verdict.
type Verifier interface {
	Verify(ctx context.Context, img models.UploadedImage, expected models.Timeframe) (models.Verification, bool)
}

type Analyzer interface {
	Analyze(ctx context.Context, images map[models.Timeframe]models.UploadedImage) (models.AnalysisResult, error)
}

// Deps are shared by every workspace of a registry.
type Deps struct {
	Model         services.Model
	Verifier      Verifier
	Analyzer      Analyzer
	Ingestor      *ingest.Ingestor
	Recorder      recorder.Recorder
	MaxChatImages int
}

type Workspace struct {
	user  string
	deps  Deps
	store *Store
	chat  *Chat

	// seq orders slot mutations and their invalidation against reads of
	// the slots that seed an analysis or a chat.
	seq sync.Mutex

	mu          sync.Mutex
	analysis    *models.AnalysisResult
	analysisErr string
	analyzing   bool
	lastSeen    time.Time
}

func New(user string, deps Deps) *Workspace {
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	return &Workspace{
		user:     user,
		deps:     deps,
		store:    NewStore(deps.Ingestor.Previews()),
		chat:     NewChat(deps.Model, deps.Ingestor, deps.MaxChatImages),
		lastSeen: time.Now(),
	}
}

func (w *Workspace) User() string  { return w.user }
func (w *Workspace) Store() *Store { return w.store }
func (w *Workspace) Chat() *Chat   { return w.chat }

func (w *Workspace) SetActive(tf models.Timeframe) error {
	w.touch()
	return w.store.SetActive(tf)
}

// Upload verifies img against the active slot and stores it there. A
// rejection leaves the store unchanged and releases the candidate preview.
func (w *Workspace) Upload(ctx context.Context, img ingest.Image) (models.Verification, error) {
	w.touch()
	tf := w.store.Active()
	w.store.SetUploadError("")

	v, degraded := w.deps.Verifier.Verify(ctx, img.Uploaded(), tf)
	if err := w.deps.Recorder.RecordVerification(&recorder.VerificationEvent{
		User:      w.user,
		Timeframe: tf,
		IsValid:   v.IsValid,
		Reason:    v.Reason,
		Degraded:  degraded,
	}); err != nil {
		log.Printf("[WARN] record verification: %v", err)
	}

	if !v.IsValid {
		rej := &RejectedError{Timeframe: tf, Reason: v.Reason}
		w.store.SetUploadError(rej.Error())
		w.deps.Ingestor.Previews().Release(img.Preview)
		return v, rej
	}

	w.seq.Lock()
	_, err := w.store.Upload(tf, img.Uploaded())
	if err == nil {
		w.invalidate()
	}
	w.seq.Unlock()
	if err != nil {
		w.deps.Ingestor.Previews().Release(img.Preview)
		return v, err
	}
	return v, nil
}

// Clear empties the active slot.
func (w *Workspace) Clear() {
	w.touch()
	w.seq.Lock()
	defer w.seq.Unlock()
	w.store.Clear(w.store.Active())
	w.invalidate()
}

// invalidate drops everything derived from the previous upload generation.
func (w *Workspace) invalidate() {
	w.mu.Lock()
	w.analysis = nil
	w.analysisErr = ""
	w.mu.Unlock()
	w.chat.Reset()
}

// Analyze runs the static analysis over the current uploads.
func (w *Workspace) Analyze(ctx context.Context) (models.AnalysisResult, error) {
	w.touch()
	if err := w.store.ValidateCompleteness(); err != nil {
		w.mu.Lock()
		w.analysisErr = err.Error()
		w.mu.Unlock()
		return models.AnalysisResult{}, err
	}

	w.mu.Lock()
	if w.analyzing {
		w.mu.Unlock()
		return models.AnalysisResult{}, ErrBusy
	}
	w.analyzing = true
	w.analysis = nil
	w.analysisErr = ""
	w.mu.Unlock()

	w.seq.Lock()
	gen := w.store.Generation()
	images := w.store.Images()
	w.seq.Unlock()

	res, err := w.deps.Analyzer.Analyze(ctx, images)

	w.mu.Lock()
	w.analyzing = false
	if w.store.Generation() != gen {
		w.mu.Unlock()
		return models.AnalysisResult{}, ErrStale
	}
	if err != nil {
		w.analysisErr = services.UserMessage(err, msgAnalysisFailed)
		w.mu.Unlock()
		return models.AnalysisResult{}, err
	}
	w.analysis = &res
	w.mu.Unlock()

	tfs := make([]models.Timeframe, 0, len(images))
	for _, tf := range models.AllTimeframes {
		if _, ok := images[tf]; ok {
			tfs = append(tfs, tf)
		}
	}
	if err := w.deps.Recorder.RecordAnalysis(&recorder.AnalysisEvent{User: w.user, Timeframes: tfs, Result: res}); err != nil {
		log.Printf("[WARN] record analysis: %v", err)
	}
	return res, nil
}

// Analysis returns the current result and error text.
func (w *Workspace) Analysis() (*models.AnalysisResult, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.analysis == nil {
		return nil, w.analysisErr
	}
	res := *w.analysis
	return &res, w.analysisErr
}

// StartChat seeds a new session with the current uploads and, when present,
// the last analysis result.
func (w *Workspace) StartChat(ctx context.Context, observe Observer) (models.ChatMessage, error) {
	w.touch()
	w.seq.Lock()
	if err := w.store.ValidateCompleteness(); err != nil {
		w.seq.Unlock()
		w.chat.SetError(err.Error())
		return models.ChatMessage{}, err
	}
	prior, _ := w.Analysis()
	seeds := services.SeedImages(w.store.Images())
	epoch, err := w.chat.begin()
	w.seq.Unlock()
	if err != nil {
		return models.ChatMessage{}, err
	}

	reply, err := w.chat.seed(ctx, epoch, seeds, prior, observe)
	w.recordTurn(reply, err)
	return reply, err
}

func (w *Workspace) SendChat(ctx context.Context, text string, atts []ingest.Attachment, observe Observer) (models.ChatMessage, error) {
	w.touch()
	reply, err := w.chat.Send(ctx, text, atts, observe)
	w.recordTurn(reply, err)
	return reply, err
}

func (w *Workspace) recordTurn(reply models.ChatMessage, err error) {
	if err != nil || reply.ID == "" {
		return
	}
	if rerr := w.deps.Recorder.RecordChatTurn(&recorder.ChatTurnEvent{User: w.user, Message: reply}); rerr != nil {
		log.Printf("[WARN] record chat turn: %v", rerr)
	}
}

// Snapshot renders the whole workspace for the API.
func (w *Workspace) Snapshot() models.WorkspaceSnapshot {
	w.touch()
	images := w.store.Images()
	slots := make([]models.SlotState, 0, len(models.AllTimeframes))
	for _, tf := range models.AllTimeframes {
		st := models.SlotState{
			Timeframe: tf,
			Label:     tf.ShortLabel(),
			FullLabel: tf.FullLabel(),
			Required:  tf.Required(),
		}
		if img, ok := images[tf]; ok {
			img := img
			st.Image = &img
		}
		slots = append(slots, st)
	}

	analysis, analysisErr := w.Analysis()
	w.mu.Lock()
	analyzing := w.analyzing
	w.mu.Unlock()

	missing := w.store.Missing()
	if missing == nil {
		missing = []models.Timeframe{}
	}
	return models.WorkspaceSnapshot{
		User:          w.user,
		ActiveSlot:    w.store.Active(),
		Slots:         slots,
		Missing:       missing,
		UploadError:   w.store.UploadError(),
		Analysis:      analysis,
		AnalysisError: analysisErr,
		Analyzing:     analyzing,
		ChatStarted:   w.chat.Started(),
		ChatStreaming: w.chat.Busy(),
		ChatError:     w.chat.Err(),
		Messages:      w.chat.Messages(),
	}
}

// Busy reports whether an analysis or a chat turn is running.
func (w *Workspace) Busy() bool {
	w.mu.Lock()
	analyzing := w.analyzing
	w.mu.Unlock()
	return analyzing || w.chat.Busy()
}

// Close releases every preview the workspace owns.
func (w *Workspace) Close() {
	w.chat.Reset()
	w.store.ReleaseAll()
}

func (w *Workspace) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastSeen = time.Now()
	w.mu.Unlock()
}
