package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"chartsense/backend-go/internal/auth"
	"chartsense/backend-go/internal/models"
)

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req models.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "Expected a JSON body with email and password."})
		return
	}
	user, err := a.auth.Authenticate(r.Context(), auth.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(w, err)
		return
	}
	token, exp, err := a.tokens.Issue(user)
	if err != nil {
		log.Printf("[WARN] issue token for %s: %v", user.Email, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		Email:     user.Email,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
	})
}
