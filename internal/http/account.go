package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/johoo26/myzhihu/internal/auth"
	"github.com/johoo26/myzhihu/internal/token"
	"github.com/johoo26/myzhihu/internal/util"
)

const tokenTTL = time.Hour

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	u, err := auth.Register(r.Context(), s.DB, s.Cfg.AdminEmail, username, email, password)
	if err != nil {
		s.fail(w, err)
		return
	}

	tok, err := s.Tokens.Issue(token.Payload{Purpose: token.PurposeConfirm, UserID: u.ID}, tokenTTL)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Mail.Notify(u.Email, "confirm", map[string]string{"username": u.Username, "token": tok})

	util.Respond(w, http.StatusCreated, map[string]any{
		"id": u.ID, "username": u.Username, "email": u.Email,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	sid, uid, err := auth.Login(r.Context(), s.DB, email, password, s.Cfg.SessionLifetime)
	if err != nil {
		s.fail(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.Cfg.SessionLifetime),
	})
	util.Respond(w, http.StatusOK, map[string]any{"id": uid})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil {
		_ = auth.Logout(r.Context(), s.DB, c.Value)
		c.MaxAge = -1
		c.Path = "/"
		http.SetCookie(w, c)
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if u.Confirmed {
		util.Respond(w, http.StatusOK, nil)
		return
	}
	p, err := s.Tokens.Redeem(r.PathValue("token"), token.PurposeConfirm)
	if err != nil || p.UserID != u.ID {
		util.Fail(w, http.StatusBadRequest, "invalid token")
		return
	}
	if err := auth.Confirm(r.Context(), s.DB, u.ID); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	tok, err := s.Tokens.Issue(token.Payload{Purpose: token.PurposeConfirm, UserID: u.ID}, tokenTTL)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Mail.Notify(u.Email, "confirm", map[string]string{"username": u.Username, "token": tok})
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !auth.Verify(u, r.FormValue("old_password")) {
		util.Fail(w, http.StatusForbidden, "wrong password")
		return
	}
	if err := auth.SetPassword(r.Context(), s.DB, u.ID, r.FormValue("new_password")); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

// handleResetRequest never reveals whether the address exists.
func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	if u, err := auth.UserByEmail(r.Context(), s.DB, email); err == nil {
		tok, err := s.Tokens.Issue(token.Payload{Purpose: token.PurposeReset, UserID: u.ID}, tokenTTL)
		if err == nil {
			s.Mail.Notify(u.Email, "reset", map[string]string{"username": u.Username, "token": tok})
		}
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	p, err := s.Tokens.Redeem(r.FormValue("token"), token.PurposeReset)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := auth.SetPassword(r.Context(), s.DB, p.UserID, r.FormValue("password")); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleChangeEmailRequest(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !auth.Verify(u, r.FormValue("password")) {
		util.Fail(w, http.StatusForbidden, "wrong password")
		return
	}
	newEmail := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	if newEmail == "" {
		util.Fail(w, http.StatusBadRequest, "email is required")
		return
	}
	tok, err := s.Tokens.Issue(token.Payload{Purpose: token.PurposeChangeEmail, UserID: u.ID, Email: newEmail}, tokenTTL)
	if err != nil {
		s.fail(w, err)
		return
	}
	// The token goes to the address being claimed, proving the user controls it.
	s.Mail.Notify(newEmail, "change-email", map[string]string{"username": u.Username, "token": tok})
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.Tokens.Redeem(r.PathValue("token"), token.PurposeChangeEmail)
	if err != nil || p.UserID != u.ID || p.Email == "" {
		util.Fail(w, http.StatusBadRequest, "invalid token")
		return
	}
	if err := auth.UpdateEmail(r.Context(), s.DB, u.ID, p.Email); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}
