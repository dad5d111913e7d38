package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/auth"
	"github.com/dascribs/authcore/internal/server/models"
	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/dascribs/authcore/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// acceptedMessage is returned by the endpoints that must not reveal whether
// an address is registered.
const acceptedMessage = "If the address belongs to an account, a message is on its way."

type messageResponse struct {
	Message string `json:"message"`
}

type principalView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName,omitempty"`
	Role          string     `json:"role"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"emailVerified"`
	PendingEmail  string     `json:"pendingEmail,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func viewPrincipal(p *models.Principal) principalView {
	return principalView{
		ID:            p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		Active:        p.Active,
		EmailVerified: p.EmailVerified,
		PendingEmail:  p.PendingEmail,
		LastLoginAt:   p.LastLoginAt,
		CreatedAt:     p.CreatedAt,
	}
}

type sessionView struct {
	ID           string    `json:"id"`
	TokenPrefix  string    `json:"tokenPrefix"`
	ClientIP     string    `json:"clientIp,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Current      bool      `json:"current"`
}

type loginResponse struct {
	AccessToken      string        `json:"accessToken"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	SessionToken     string        `json:"sessionToken"`
	SessionExpiresAt time.Time     `json:"sessionExpiresAt"`
	Principal        principalView `json:"principal"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	// Roles other than the default are granted by an operator, never self-assigned.
	p, err := s.svc.Auth.Register(r.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewPrincipal(p))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.svc.Auth.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{
		AccessToken:      res.Bearer.Token,
		ExpiresAt:        res.Bearer.ExpiresAt,
		SessionToken:     res.Session.Token,
		SessionExpiresAt: res.Session.ExpiresAt,
		Principal:        viewPrincipal(res.Principal),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.Logout(r.Context(), bearerToken(r), r.Header.Get(common.SessionTokenHeaderName)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	n, err := s.svc.Auth.LogoutAll(r.Context(), id.PrincipalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"terminated": n})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Auth.Me(r.Context(), identity(r).PrincipalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewPrincipal(p))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	list, err := s.svc.Sessions.ListActive(r.Context(), id.PrincipalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]sessionView, 0, len(list))
	for _, ss := range list {
		out = append(out, sessionView{
			ID:           ss.ID,
			TokenPrefix:  common.TokenPrefix(ss.Token),
			ClientIP:     ss.ClientIP,
			UserAgent:    ss.UserAgent,
			CreatedAt:    ss.CreatedAt,
			LastActivity: ss.LastActivity,
			ExpiresAt:    ss.ExpiresAt,
			Current:      ss.ID == id.SessionID,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Sessions.TerminateByID(r.Context(), identity(r).PrincipalID, chi.URLParam(r, "id"))
	if errors.Is(err, common.ErrSessionNotFound) {
		// The caller is authenticated; the id simply names none of its sessions.
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Reset.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: acceptedMessage})
}

func (s *Server) handleValidateResetToken(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Reset.ValidateResetToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Reset.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "password reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.svc.Reset.ChangePassword(r.Context(), identity(r).PrincipalID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.svc.Verification.Verify(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewPrincipal(p))
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Verification.ResendByEmail(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: acceptedMessage})
}

func (s *Server) handleResendCooldown(w http.ResponseWriter, r *http.Request) {
	left, err := s.svc.Verification.ResendCooldown(r.Context(), identity(r).PrincipalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cd := common.CooldownError{Remaining: left}
	respondJSON(w, http.StatusOK, map[string]int64{"secondsRemaining": cd.SecondsRemaining()})
}

type emailChangeRequest struct {
	NewEmail string `json:"newEmail"`
}

func (s *Server) handleInitiateEmailChange(w http.ResponseWriter, r *http.Request) {
	var req emailChangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Verification.InitiateEmailChange(r.Context(), identity(r).PrincipalID, req.NewEmail); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, messageResponse{Message: "confirmation sent to the new address"})
}

func (s *Server) handleConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.svc.Verification.CompleteEmailChange(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewPrincipal(p))
}

func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	roles := s.svc.Roles.Roles()
	if roles == nil {
		roles = []rbac.Role{}
	}
	respondJSON(w, http.StatusOK, roles)
}

// handleSetActive switches the account named in the path on or off.
// Deactivation also ends all of its sessions.
func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.svc.Auth.SetActive(r.Context(), chi.URLParam(r, "id"), active)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, viewPrincipal(p))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(w, r, dest); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// identity is only called behind authenticate, which guarantees presence.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}
