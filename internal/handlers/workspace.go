package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/workspace"
)

type activeRequest struct {
	Slot string `json:"slot"`
}

type uploadRequest struct {
	DataURL string `json:"dataUrl"`
	Source  string `json:"source"`
}

type uploadResponse struct {
	Ignored      bool                     `json:"ignored,omitempty"`
	Verification *models.Verification     `json:"verification,omitempty"`
	Workspace    models.WorkspaceSnapshot `json:"workspace"`
}

func (a *API) Workspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

func (a *API) WorkspaceActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: `Expected {"slot": "<timeframe>"}.`})
		return
	}
	tf, err := models.ParseTimeframe(req.Slot)
	if err == nil {
		err = ws.SetActive(tf)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_slot", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

// Upload stores a chart into the active slot (POST) or clears it (DELETE).
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodDelete:
		ws.Clear()
		writeJSON(w, http.StatusOK, ws.Snapshot())
		return
	case http.MethodPost:
	default:
		methodNotAllowed(w)
		return
	}

	img, err := a.readUpload(w, r)
	if errors.Is(err, ingest.ErrNoFile) || errors.Is(err, ingest.ErrNotImage) {
		writeJSON(w, http.StatusOK, uploadResponse{Ignored: true, Workspace: ws.Snapshot()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	v, err := ws.Upload(detached(r), img)
	if err != nil {
		var rej *workspace.RejectedError
		if errors.As(err, &rej) {
			writeJSON(w, http.StatusUnprocessableEntity, struct {
				errorBody
				uploadResponse
			}{
				errorBody:      errorBody{Error: "incorrect_timeframe", Message: rej.Error()},
				uploadResponse: uploadResponse{Verification: &v, Workspace: ws.Snapshot()},
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Verification: &v, Workspace: ws.Snapshot()})
}

// readUpload accepts either a multipart "file" field or a JSON data URL.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request) (ingest.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes+(1<<20))
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return ingest.Image{}, ingest.ErrNoFile
		}
		return a.ingestor.FromDataURL(req.DataURL, parseSource(req.Source))
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return ingest.Image{}, ingest.ErrTooLarge
		}
		return ingest.Image{}, ingest.ErrNoFile
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		return ingest.Image{}, ingest.ErrNoFile
	}
	defer f.Close()
	return a.ingestor.FromReader(f, fh.Header.Get("Content-Type"), parseSource(r.FormValue("source")))
}

func parseSource(raw string) ingest.Source {
	if strings.EqualFold(strings.TrimSpace(raw), string(ingest.SourceDrop)) {
		return ingest.SourceDrop
	}
	return ingest.SourcePicker
}
