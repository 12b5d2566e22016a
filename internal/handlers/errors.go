package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"chartsense/backend-go/internal/auth"
	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/services"
	"chartsense/backend-go/internal/workspace"
)

var errInvalidBody = errors.New("invalid request body")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"upstream_status,omitempty"`
}

// retryAfter is the Retry-After hint for quota rejections.
func retryAfter(q *services.QuotaError) string {
	if q.Daily {
		return "3600"
	}
	return "60"
}

// writeError maps a domain or model error to a status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	err = services.ClassifyModelError(err)

	var (
		q       *services.QuotaError
		missing *workspace.MissingError
		reject  *workspace.RejectedError
		upErr   *services.UpstreamError
		netErr  net.Error
	)
	switch {
	case errors.Is(err, errInvalidBody):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "The request body could not be read."})
	case errors.As(err, &q):
		w.Header().Set("Retry-After", retryAfter(q))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "quota_exhausted", Message: q.Error()})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "missing_charts", Message: missing.Error()})
	case errors.As(err, &reject):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "incorrect_timeframe", Message: reject.Error()})
	case errors.Is(err, services.ErrNoImages):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "no_images", Message: services.UserMessage(err, "")})
	case errors.Is(err, ingest.ErrProcessImages):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "image_processing_failed", Message: "Failed to process images."})
	case errors.Is(err, ingest.ErrMalformedURL):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_data_url", Message: "The image data URL could not be decoded."})
	case errors.Is(err, ingest.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file_too_large", Message: "The file exceeds the upload limit."})
	case errors.Is(err, workspace.ErrTooManyAttachments):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "too_many_attachments", Message: err.Error()})
	case errors.Is(err, workspace.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: "busy", Message: "A request is already in progress."})
	case errors.Is(err, workspace.ErrSessionNotInitialized):
		writeJSON(w, http.StatusConflict, errorBody{Error: "session_not_initialized", Message: "Chat session not initialized."})
	case errors.Is(err, workspace.ErrStale), errors.Is(err, workspace.ErrSessionReset):
		writeJSON(w, http.StatusConflict, errorBody{Error: "stale", Message: "Charts changed while the request was running."})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: err.Error()})
	case errors.Is(err, services.ErrInvalidFormat):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "invalid_format", Message: services.UserMessage(err, "")})
	case errors.Is(err, services.ErrCircuitOpen):
		w.Header().Set("Retry-After", "20")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "model_unavailable", Message: services.UserMessage(err, "")})
	case errors.As(err, &upErr):
		writeUpstreamError(w, upErr)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "upstream_timeout", Message: "The analysis service timed out."})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: err.Error()})
	}
}

func writeUpstreamError(w http.ResponseWriter, upErr *services.UpstreamError) {
	body := errorBody{Error: "upstream_error", Message: upErr.Error(), Status: upErr.Status}
	switch {
	case upErr.Status == http.StatusRequestTimeout || upErr.Status == http.StatusGatewayTimeout:
		body.Error = "upstream_timeout"
		writeJSON(w, http.StatusGatewayTimeout, body)
	case upErr.Status >= 400 && upErr.Status < 500:
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		writeJSON(w, http.StatusBadGateway, body)
	}
}
