package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dascribs/authcore/internal/common"
)

// Unknown and expired one-time tokens share one response so a caller
// cannot learn which tokens ever existed.
const invalidTokenMessage = "invalid or expired token"

type errorResponse struct {
	Error            string `json:"error"`
	SecondsRemaining int64  `json:"secondsRemaining,omitempty"`
}

// statusFor maps a service outcome to a status code and client-facing text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrTokenNotFound), errors.Is(err, common.ErrTokenInvalidOrExpired):
		return http.StatusBadRequest, invalidTokenMessage
	case errors.Is(err, common.ErrTokenMismatch):
		return http.StatusConflict, common.ErrTokenMismatch.Error()
	case errors.Is(err, common.ErrEmailTaken):
		return http.StatusConflict, common.ErrEmailTaken.Error()

	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, common.ErrInvalidCredentials.Error()
	case errors.Is(err, common.ErrSessionNotFound):
		return http.StatusUnauthorized, common.ErrSessionNotFound.Error()
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, common.ErrTokenExpired.Error()
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, common.ErrInvalidToken.Error()

	case errors.Is(err, common.ErrAccountDeactivated):
		return http.StatusForbidden, common.ErrAccountDeactivated.Error()
	case errors.Is(err, common.ErrEmailNotVerified):
		return http.StatusForbidden, common.ErrEmailNotVerified.Error()

	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, common.ErrRateLimited.Error()

	case errors.Is(err, common.ErrInvalidEmail),
		errors.Is(err, common.ErrWeakPassword),
		errors.Is(err, common.ErrPasswordReuse),
		errors.Is(err, common.ErrSameEmail),
		errors.Is(err, common.ErrUnknownRole),
		errors.Is(err, common.ErrAlreadyVerified):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cd *common.CooldownError
	if errors.As(err, &cd) {
		secs := cd.SecondsRemaining()
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: common.ErrCooldown.Error(), SecondsRemaining: secs})
		return
	}

	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeMessage(w, status, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}
