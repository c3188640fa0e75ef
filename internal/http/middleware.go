package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/johoo26/myzhihu/internal/auth"
	"github.com/johoo26/myzhihu/internal/models"
	"github.com/johoo26/myzhihu/internal/util"
)

const CookieName = "session_id"

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			if uid, exp, err2 := auth.UserFromSession(r.Context(), s.DB, c.Value); err2 == nil && exp.After(time.Now()) {
				r = r.WithContext(auth.WithUserID(r.Context(), uid))
			}
			// Invalid or expired sessions fall through as anonymous.
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFrom(r.Context()); !ok {
			util.Fail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireConfirmed locks unconfirmed accounts out of everything but the auth
// endpoints.
func (s *Server) requireConfirmed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.currentUser(r)
		if err != nil {
			util.Fail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !u.Confirmed {
			util.Fail(w, http.StatusForbidden, "account not confirmed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePermission gates a route on a permission bit. The stores re-check the
// same bits, so this is the first of two gates, not the only one.
func (s *Server) requirePermission(p models.Permission, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.currentUser(r)
		if err != nil {
			util.Fail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !u.Can(p) {
			util.Fail(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ----------------------------
// Access log
// ----------------------------

type statusRW struct {
	http.ResponseWriter
	status int
}

func (w *statusRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func WithAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRW{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "dur", time.Since(start).Truncate(time.Millisecond))
	})
}

// WithTimeout applies a 5s deadline to the whole request.
func WithTimeout(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, 5*time.Second, "request timeout")
}
