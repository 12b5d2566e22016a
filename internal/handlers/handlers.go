package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chartsense/backend-go/internal/auth"
	"chartsense/backend-go/internal/config"
	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/services"
	"chartsense/backend-go/internal/workspace"
)

// Probe reports whether the model service is reachable.
type Probe interface {
	Health(ctx context.Context) error
	ModelName() string
}

type Deps struct {
	Cache     services.Cache
	Model     Probe
	Auth      auth.Authenticator
	Tokens    *auth.Issuer
	Registry  *workspace.Registry
	Ingestor  *ingest.Ingestor
	Recording bool
}

type API struct {
	cfg      config.Config
	cache    services.Cache
	model    Probe
	auth     auth.Authenticator
	tokens   *auth.Issuer
	registry *workspace.Registry
	ingestor *ingest.Ingestor
	features map[string]bool
}

func New(cfg config.Config, deps Deps) *API {
	return &API{
		cfg:      cfg,
		cache:    deps.Cache,
		model:    deps.Model,
		auth:     deps.Auth,
		tokens:   deps.Tokens,
		registry: deps.Registry,
		ingestor: deps.Ingestor,
		features: map[string]bool{
			"verify_fail_closed": cfg.VerifyFailClosed,
			"redis_cache":        deps.Cache != nil && deps.Cache.Backend() == "redis",
			"recorder_enabled":   deps.Recording,
			"thinking_enabled":   cfg.ModelThinking > 0,
		},
	}
}

// Tokens exposes the session issuer to the auth middleware.
func (a *API) Tokens() *auth.Issuer { return a.tokens }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "Method not allowed."})
}

// workspaceFor returns the signed-in user's workspace.
func (a *API) workspaceFor(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "Please sign in to continue."})
		return nil, false
	}
	return a.registry.Get(u.Email), true
}

// detached keeps model calls running after the client goes away; the
// workspace, not the request, owns their outcome.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
