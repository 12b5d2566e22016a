package handlers

import (
	"net/http"
	"strconv"
)

// Preview serves the bytes behind a preview reference. Ids are random and
// unguessable, so the route sits outside the auth middleware for <img> tags.
func (a *API) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	data, mediaType, ok := a.ingestor.Previews().Get(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}
