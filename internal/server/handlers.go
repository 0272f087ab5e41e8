package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

type flowResponse struct {
	Phase     string     `json:"phase"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Delivery  string     `json:"delivery,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type profileResponse struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	account, err := h.engine.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, loginStart)
		return
	}
	writeJSON(w, http.StatusCreated, profileResponse{
		Username:  account.Username,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.BeginLogin(r.Context(), sessionID(r), req.Identifier, req.Password)
	if err != nil {
		h.fail(w, r, err, loginStart)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (h *handlers) loginVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ConfirmLoginCode(r.Context(), sessionID(r), req.Code)
	if err != nil {
		h.fail(w, r, err, loginStart)
		return
	}
	_, err = h.sessions.Rotate(w, r, func(oldID, newID string) error {
		return h.engine.RotateSession(r.Context(), oldID, newID)
	})
	if err != nil {
		h.fail(w, r, err, loginStart)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (h *handlers) loginResend(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ResendLoginCode(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, r, err, loginStart)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), sessionID(r)); err != nil {
		h.fail(w, r, err, loginStart)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ProfileFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, loginStart, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Username:  p.Username,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
	})
}

// The recovery request answers identically for known and unknown addresses
// when the engine runs with uniform responses.
func (h *handlers) recovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.BeginRecovery(r.Context(), sessionID(r), req.Email)
	if err != nil {
		h.fail(w, r, err, recoveryStart)
		return
	}
	writeJSON(w, http.StatusAccepted, flowResponse{
		Phase:   res.Phase.String(),
		Message: "if the address is registered, a reset code has been sent",
	})
}

func (h *handlers) recoveryVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ConfirmRecoveryCode(r.Context(), sessionID(r), req.Code)
	if err != nil {
		h.fail(w, r, err, recoveryStart)
		return
	}
	writeJSON(w, http.StatusOK, recoveryResponse(res))
}

func (h *handlers) recoveryResend(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.ResendRecoveryCode(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, r, err, recoveryStart)
		return
	}
	writeJSON(w, http.StatusOK, recoveryResponse(res))
}

func (h *handlers) recoveryReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.CompleteRecovery(r.Context(), sessionID(r), req.Password, req.Confirm); err != nil {
		h.fail(w, r, err, recoveryStart)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Phase: "anonymous", Message: "password updated"})
}

func loginResponse(res otpauth.LoginResult) flowResponse {
	out := flowResponse{Phase: res.Phase.String()}
	if !res.ExpiresAt.IsZero() {
		t := res.ExpiresAt
		out.ExpiresAt = &t
	}
	if res.Delivery.Status != 0 {
		out.Delivery = res.Delivery.Status.String()
	}
	return out
}

func recoveryResponse(res otpauth.RecoveryResult) flowResponse {
	out := flowResponse{Phase: res.Phase.String()}
	if !res.ExpiresAt.IsZero() {
		t := res.ExpiresAt
		out.ExpiresAt = &t
	}
	if res.Delivery.Status != 0 {
		out.Delivery = res.Delivery.Status.String()
	}
	return out
}

func sessionID(r *http.Request) string {
	sid, _ := middleware.SessionIDFromContext(r.Context())
	return sid
}

// fail maps engine errors to responses. Flow errors redirect to start.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error, start string) {
	switch {
	case errors.Is(err, otpauth.ErrFlowOutOfOrder), errors.Is(err, otpauth.ErrNotAuthenticated):
		http.Redirect(w, r, start, http.StatusSeeOther)
	case errors.Is(err, otpauth.ErrInvalidCredentials), errors.Is(err, otpauth.ErrInvalidOrExpiredToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, otpauth.ErrDuplicateIdentity):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, otpauth.ErrInvalidInput),
		errors.Is(err, otpauth.ErrPasswordPolicy),
		errors.Is(err, otpauth.ErrPasswordMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, otpauth.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
