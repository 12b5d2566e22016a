package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/services"
)

var (
	ErrSessionNotInitialized = errors.New("chat session not initialized")
	ErrBusy                  = errors.New("another request is still running")
	ErrTooManyAttachments    = errors.New("too many attachments")
)

// ErrSessionReset means the session was discarded while the turn ran and its
// output was dropped.
var ErrSessionReset = errors.New("chat session was reset")

const (
	msgNotInitialized = "Chat session not initialized."
	msgProcessImages  = "Failed to process images."
	msgStartFailed    = "Failed to start session."
	msgSendFailed     = "Error sending message."
)

type ChatState int

const (
	ChatUninitialized ChatState = iota
	ChatSeeding
	ChatActive
)

func (s ChatState) String() string {
	switch s {
	case ChatSeeding:
		return "seeding"
	case ChatActive:
		return "active"
	default:
		return "uninitialized"
	}
}

// Observer receives every transcript mutation in order.
type Observer func(models.ChatEvent)

// Chat drives one conversation: seed turn, then follow-up turns. Only one
// turn streams at a time.
type Chat struct {
	model          services.Model
	ingestor       *ingest.Ingestor
	maxAttachments int

	mu       sync.Mutex
	state    ChatState
	session  services.ChatSession
	epoch    uint64
	busy     bool
	messages []models.ChatMessage
	err      string
	owned    []string
}

func NewChat(model services.Model, ingestor *ingest.Ingestor, maxAttachments int) *Chat {
	if maxAttachments <= 0 {
		maxAttachments = 6
	}
	return &Chat{model: model, ingestor: ingestor, maxAttachments: maxAttachments}
}

// Start opens a fresh session and streams the seed turn. Any previous
// session and transcript are discarded.
func (c *Chat) Start(ctx context.Context, seeds []services.SeedImage, prior *models.AnalysisResult, observe Observer) (models.ChatMessage, error) {
	epoch, err := c.begin()
	if err != nil {
		return models.ChatMessage{}, err
	}
	return c.seed(ctx, epoch, seeds, prior, observe)
}

// begin discards the current session and claims the chat for a new one. A
// Reset after begin makes the pending seed turn stale.
func (c *Chat) begin() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, ErrBusy
	}
	c.resetLocked()
	c.state = ChatSeeding
	c.busy = true
	return c.epoch, nil
}

func (c *Chat) seed(ctx context.Context, epoch uint64, seeds []services.SeedImage, prior *models.AnalysisResult, observe Observer) (models.ChatMessage, error) {
	msg, err := services.BuildSeedMessage(seeds, prior)
	if err != nil {
		return models.ChatMessage{}, c.abortStart(epoch, err, observe)
	}
	sess, err := c.model.CreateSession(ctx)
	if err != nil {
		return models.ChatMessage{}, c.abortStart(epoch, err, observe)
	}

	previews := make([]string, 0, len(seeds))
	for _, s := range seeds {
		previews = append(previews, s.Image.Preview)
	}
	user := models.ChatMessage{
		ID:               uuid.NewString(),
		Role:             models.RoleUser,
		Content:          services.SeedUserText,
		ImagePreviewURLs: previews,
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrSessionReset
	}
	c.session = sess
	c.messages = append(c.messages, user)
	c.mu.Unlock()
	emit(observe, models.ChatEvent{Type: models.ChatEventMessage, Message: &user})

	reply, err := c.stream(ctx, epoch, sess, msg, msgStartFailed, observe)

	c.mu.Lock()
	if c.epoch == epoch {
		c.state = ChatActive
	}
	c.mu.Unlock()
	return reply, err
}

func (c *Chat) abortStart(epoch uint64, err error, observe Observer) error {
	c.mu.Lock()
	if c.epoch == epoch {
		c.state = ChatUninitialized
	}
	c.mu.Unlock()
	return c.fail(epoch, err, msgStartFailed, observe)
}

// Send runs one follow-up turn. Empty text with no attachments does nothing.
func (c *Chat) Send(ctx context.Context, text string, atts []ingest.Attachment, observe Observer) (models.ChatMessage, error) {
	c.mu.Lock()
	if c.session == nil {
		c.err = msgNotInitialized
		c.mu.Unlock()
		return models.ChatMessage{}, ErrSessionNotInitialized
	}
	if strings.TrimSpace(text) == "" && len(atts) == 0 {
		c.mu.Unlock()
		return models.ChatMessage{}, nil
	}
	if len(atts) > c.maxAttachments {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrTooManyAttachments
	}
	if c.busy {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrBusy
	}
	c.busy = true
	c.err = ""
	epoch := c.epoch
	sess := c.session
	c.mu.Unlock()

	var images []ingest.Image
	if len(atts) > 0 {
		var err error
		images, err = c.ingestor.EncodeAll(ctx, atts)
		if err != nil {
			return models.ChatMessage{}, c.fail(epoch, err, msgProcessImages, observe)
		}
	}

	uploaded := make([]models.UploadedImage, 0, len(images))
	previews := make([]string, 0, len(images))
	for _, img := range images {
		uploaded = append(uploaded, img.Uploaded())
		previews = append(previews, img.Preview)
	}
	user := models.ChatMessage{
		ID:               uuid.NewString(),
		Role:             models.RoleUser,
		Content:          text,
		ImagePreviewURLs: previews,
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.releasePreviews(previews)
		return models.ChatMessage{}, ErrSessionReset
	}
	c.messages = append(c.messages, user)
	c.owned = append(c.owned, previews...)
	c.mu.Unlock()
	emit(observe, models.ChatEvent{Type: models.ChatEventMessage, Message: &user})

	return c.stream(ctx, epoch, sess, services.BuildTurnMessage(text, uploaded), msgSendFailed, observe)
}

// stream appends an empty model entry, then sends msg and grows that entry
// with every received chunk.
func (c *Chat) stream(ctx context.Context, epoch uint64, sess services.ChatSession, msg services.Message, fallback string, observe Observer) (models.ChatMessage, error) {
	entry := models.ChatMessage{ID: uuid.NewString(), Role: models.RoleModel}
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrSessionReset
	}
	c.messages = append(c.messages, entry)
	c.mu.Unlock()
	emit(observe, models.ChatEvent{Type: models.ChatEventMessage, Message: &entry})

	onChunk := func(chunk string) {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		if i := c.indexLocked(entry.ID); i >= 0 {
			c.messages[i].Content += chunk
		}
		c.mu.Unlock()
		emit(observe, models.ChatEvent{Type: models.ChatEventDelta, MessageID: entry.ID, Delta: chunk})
	}

	if err := sess.SendTurn(ctx, msg, onChunk); err != nil {
		return models.ChatMessage{}, c.fail(epoch, err, fallback, observe)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrSessionReset
	}
	reply := c.messages[c.indexLocked(entry.ID)]
	c.busy = false
	c.mu.Unlock()

	emit(observe, models.ChatEvent{Type: models.ChatEventDone, MessageID: reply.ID})
	return reply, nil
}

// fail records the chat-level error for a turn of epoch and clears busy.
// Earlier transcript entries stay untouched.
func (c *Chat) fail(epoch uint64, err error, fallback string, observe Observer) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSessionReset
	}
	msg := services.UserMessage(err, fallback)
	if errors.Is(err, ingest.ErrProcessImages) {
		msg = msgProcessImages
	}
	c.err = msg
	c.busy = false
	c.mu.Unlock()
	emit(observe, models.ChatEvent{Type: models.ChatEventError, Error: msg})
	return err
}

// Reset discards the session and transcript. Streams still running for the
// old session can no longer touch the transcript.
func (c *Chat) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Chat) resetLocked() {
	c.releasePreviews(c.owned)
	c.epoch++
	c.state = ChatUninitialized
	c.session = nil
	c.busy = false
	c.messages = nil
	c.err = ""
	c.owned = nil
}

func (c *Chat) releasePreviews(refs []string) {
	if c.ingestor == nil {
		return
	}
	for _, ref := range refs {
		c.ingestor.Previews().Release(ref)
	}
}

// SetError shows msg as the chat-level error, e.g. a failed completeness check.
func (c *Chat) SetError(msg string) {
	c.mu.Lock()
	c.err = msg
	c.mu.Unlock()
}

func (c *Chat) State() ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Chat) Started() bool {
	return c.State() != ChatUninitialized
}

func (c *Chat) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Chat) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Messages returns a copy of the transcript.
func (c *Chat) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Session exposes the live handle so callers can tell sessions apart.
func (c *Chat) Session() services.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Chat) indexLocked(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func emit(observe Observer, evt models.ChatEvent) {
	if observe != nil {
		observe(evt)
	}
}
