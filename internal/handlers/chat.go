package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/report"
	"chartsense/backend-go/internal/workspace"
)

type chatMessageRequest struct {
	Text string `json:"text"`
}

// Chat returns the transcript view.
func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.ChatPage(ws.Snapshot()))
}

// ChatStart opens a new session seeded with the uploaded charts and streams
// the first reply.
func (a *API) ChatStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	stream, ok := newEventStream(w)
	if !ok {
		return
	}
	_, err := ws.StartChat(detached(r), stream.Send)
	stream.finish(w, err, resetNotice(err))
}

// ChatMessages sends one user turn with optional image attachments.
func (a *API) ChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	text, atts, err := a.readTurn(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	stream, ok := newEventStream(w)
	if !ok {
		return
	}
	_, err = ws.SendChat(detached(r), text, atts, stream.Send)
	stream.finish(w, err, resetNotice(err))
	if err == nil && !stream.Started() {
		// Empty turn: nothing was sent.
		w.WriteHeader(http.StatusNoContent)
	}
}

func resetNotice(err error) string {
	if errors.Is(err, workspace.ErrSessionReset) {
		return "Chat was reset because the charts changed."
	}
	return ""
}

// readTurn parses a multipart form with "text" and "files", or a JSON body
// with text only. Files beyond the attachment limit are dropped.
func (a *API) readTurn(w http.ResponseWriter, r *http.Request) (string, []ingest.Attachment, error) {
	limit := a.cfg.MaxUploadBytes * int64(a.cfg.MaxChatImages+1)
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req chatMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", nil, errInvalidBody
		}
		return req.Text, nil, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", nil, ingest.ErrTooLarge
		}
		return "", nil, errInvalidBody
	}
	files := r.MultipartForm.File["files"]
	if n := a.cfg.MaxChatImages; n > 0 && len(files) > n {
		files = files[:n]
	}
	atts := make([]ingest.Attachment, 0, len(files))
	for _, fh := range files {
		fh := fh
		atts = append(atts, ingest.Attachment{
			Name:      fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return r.FormValue("text"), atts, nil
}
