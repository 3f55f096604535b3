package handler

import (
	"encoding/json"
	"net/http"

	"github.com/signin-api/internal/application/credential"
	"github.com/signin-api/internal/pkg/validate"
)

// SigninHandler handles passwordless sign-in endpoints: magic-link and
// numeric-code issuance plus their verification counterparts.
type SigninHandler struct {
	svc credential.Service
}

func NewSigninHandler(svc credential.Service) *SigninHandler {
	return &SigninHandler{svc: svc}
}

type issueRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

type verifyLinkRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Token      string `json:"token" validate:"required"`
}

type verifyCodeRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

func (h *SigninHandler) RequestLink(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issued, err := h.svc.IssueLinkToken(r.Context(), req.Identifier)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IssuedLinkEnvelope{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

func (h *SigninHandler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	var req verifyLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.svc.VerifyLinkToken(r.Context(), req.Identifier, req.Token)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifiedEnvelope{Identifier: v.Identifier})
}

func (h *SigninHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issued, err := h.svc.IssueNumericCode(r.Context(), req.Identifier)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IssuedCodeEnvelope{Message: "sign-in code sent", ExpiresAt: issued.ExpiresAt})
}

func (h *SigninHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.svc.VerifyNumericCode(r.Context(), req.Identifier, req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifiedEnvelope{Identifier: v.Identifier})
}
