package http

import (
	"net/http"

	"chartsense/backend-go/internal/config"
	"chartsense/backend-go/internal/handlers"
	"chartsense/backend-go/internal/ingest"
)

func NewRouter(cfg config.Config, api *handlers.API) http.Handler {
	authed := withAuth(api.Tokens())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", api.Health)
	mux.HandleFunc("/api/v1/auth/login", api.Login)
	mux.HandleFunc(ingest.PreviewPrefix, api.Preview)

	mux.Handle("/api/v1/workspace", authed(http.HandlerFunc(api.Workspace)))
	mux.Handle("/api/v1/workspace/active", authed(http.HandlerFunc(api.WorkspaceActive)))
	mux.Handle("/api/v1/workspace/upload", authed(http.HandlerFunc(api.Upload)))
	mux.Handle("/api/v1/analysis", authed(http.HandlerFunc(api.Analysis)))
	mux.Handle("/api/v1/chat", authed(http.HandlerFunc(api.Chat)))
	mux.Handle("/api/v1/chat/start", authed(http.HandlerFunc(api.ChatStart)))
	mux.Handle("/api/v1/chat/messages", authed(http.HandlerFunc(api.ChatMessages)))

	h := http.Handler(mux)
	h = withRecovery(h)
	h = withLogging(h)
	h = withRateLimit(cfg.RateLimitPerMin)(h)
	h = withCORS(h)
	return h
}
