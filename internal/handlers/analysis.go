package handlers

import (
	"net/http"

	"chartsense/backend-go/internal/report"
)

// Analysis runs the static top-down analysis (POST) or returns the current
// report panel (GET).
func (a *API) Analysis(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.workspaceFor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		res, errMsg := ws.Analysis()
		writeJSON(w, http.StatusOK, report.Page(res, errMsg, ws.Snapshot().Analyzing))
	case http.MethodPost:
		res, err := ws.Analyze(detached(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report.Build(res))
	default:
		methodNotAllowed(w)
	}
}
