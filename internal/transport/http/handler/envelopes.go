package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/signin-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// IssuedLinkEnvelope wraps a magic-link issuance response. Token is the
// plaintext secret; the caller embeds it in the link it delivers.
type IssuedLinkEnvelope struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssuedCodeEnvelope wraps a numeric-code issuance response. The code itself
// travels out-of-band and is never part of the response.
type IssuedCodeEnvelope struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifiedEnvelope wraps a successful verification.
type VerifiedEnvelope struct {
	Identifier string `json:"identifier"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes. Store and
// delivery failures surface as an opaque 500; the collapsed invalid-or-expired
// cases all map to the same 404 body.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidOrExpired):
		writeError(w, http.StatusNotFound, "invalid or expired credential")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
