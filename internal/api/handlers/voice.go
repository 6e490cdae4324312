package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/voice"
)

// hashCaller reduces a caller identifier to a short hash. Raw phone
// numbers never reach storage.
func hashCaller(from string) string {
	if from == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(from))
	return hex.EncodeToString(sum[:])[:16]
}

// StartCall sets up a voice session for a webhook-style telephony vendor
// and returns the token plus the greeting to speak.
func StartCall(agent *voice.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			From string `json:"from"`
		}
		// An empty body is fine; the caller identity is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)

		token, greeting := agent.StartSession(hashCaller(req.From))
		writeJSON(w, http.StatusCreated, map[string]string{
			"session_id": token,
			"say":        greeting,
		})
	}
}

// CallUtterance feeds one transcribed utterance into a session and returns
// the reply and whether the call should hang up.
func CallUtterance(agent *voice.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := mux.Vars(r)["session_id"]

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		reply, done, err := agent.HandleUtterance(r.Context(), token, req.Text)
		if err != nil {
			if errors.Is(err, voice.ErrSessionNotFound) {
				middleware.WriteError(w, http.StatusNotFound, "call session not found")
				return
			}
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"say":  reply,
			"done": done,
		})
	}
}

// EndCall handles the vendor's hangup signal.
func EndCall(agent *voice.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := mux.Vars(r)["session_id"]
		agent.EndSession(token)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
	}
}
