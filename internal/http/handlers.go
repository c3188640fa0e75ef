// Package httpx is the thin JSON handler layer over the core stores. Handlers
// authenticate via the session middleware, gate permissions, call the stores,
// and translate sentinel errors to status codes; no business logic lives here.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/johoo26/myzhihu/internal/app"
	"github.com/johoo26/myzhihu/internal/auth"
	"github.com/johoo26/myzhihu/internal/content"
	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/feed"
	"github.com/johoo26/myzhihu/internal/mail"
	"github.com/johoo26/myzhihu/internal/models"
	"github.com/johoo26/myzhihu/internal/token"
	"github.com/johoo26/myzhihu/internal/util"
)

type Server struct {
	DB     *db.DB
	Cfg    app.Config
	Tokens *token.Service
	Mail   mail.Dispatcher
	Mux    *http.ServeMux
}

func NewServer(d *db.DB, cfg app.Config, dispatcher mail.Dispatcher) *Server {
	s := &Server{
		DB:     d,
		Cfg:    cfg,
		Tokens: token.NewService(cfg.SecretKey),
		Mail:   dispatcher,
		Mux:    http.NewServeMux(),
	}

	// Session-only routes (work for anonymous and unconfirmed callers).
	open := func(h http.HandlerFunc) http.Handler {
		return s.withSession(http.HandlerFunc(h))
	}
	// Authenticated, but still allowed before confirmation.
	authed := func(h http.HandlerFunc) http.Handler {
		return s.withSession(s.requireAuth(http.HandlerFunc(h)))
	}
	// The site proper: authenticated and confirmed.
	member := func(h http.HandlerFunc) http.Handler {
		return s.withSession(s.requireAuth(s.requireConfirmed(http.HandlerFunc(h))))
	}
	// Confirmed plus a permission bit.
	perm := func(p models.Permission, h http.HandlerFunc) http.Handler {
		return s.withSession(s.requireAuth(s.requireConfirmed(s.requirePermission(p, http.HandlerFunc(h)))))
	}

	s.Mux.Handle("POST /auth/register", open(s.handleRegister))
	s.Mux.Handle("POST /auth/login", open(s.handleLogin))
	s.Mux.Handle("POST /auth/logout", authed(s.handleLogout))
	s.Mux.Handle("GET /auth/confirm/{token}", authed(s.handleConfirm))
	s.Mux.Handle("POST /auth/resend-confirmation", authed(s.handleResendConfirmation))
	s.Mux.Handle("POST /auth/change-password", authed(s.handleChangePassword))
	s.Mux.Handle("POST /auth/reset-password-request", open(s.handleResetRequest))
	s.Mux.Handle("POST /auth/reset-password", open(s.handleResetPassword))
	s.Mux.Handle("POST /auth/change-email-request", authed(s.handleChangeEmailRequest))
	s.Mux.Handle("GET /auth/change-email/{token}", authed(s.handleChangeEmail))

	s.Mux.Handle("GET /feed", member(s.handleFeed))
	s.Mux.Handle("GET /explore/daily-hot", member(s.handleDailyHot))
	s.Mux.Handle("GET /explore/monthly-hot", member(s.handleMonthlyHot))
	s.Mux.Handle("GET /search", member(s.handleSearch))

	s.Mux.Handle("GET /topics", member(s.handleTopics))
	s.Mux.Handle("POST /topics", member(s.handleAddTopic))
	s.Mux.Handle("GET /topics/{id}/answers", member(s.handleTopicAnswers))
	s.Mux.Handle("GET /topics/{id}/questions", member(s.handleTopicQuestions))
	s.Mux.Handle("GET /topics/{id}/followers", member(s.handleTopicFollowers))
	s.Mux.Handle("POST /topics/{id}/follow", perm(models.PermFollow, s.handleFollowTopic))
	s.Mux.Handle("POST /topics/{id}/unfollow", perm(models.PermFollow, s.handleUnfollowTopic))

	s.Mux.Handle("POST /questions", perm(models.PermWriteArticles, s.handleAsk))
	s.Mux.Handle("GET /questions/{id}", member(s.handleQuestion))
	s.Mux.Handle("DELETE /questions/{id}", member(s.handleDeleteQuestion))
	s.Mux.Handle("GET /questions/{id}/followers", member(s.handleQuestionFollowers))
	s.Mux.Handle("POST /questions/{id}/follow", perm(models.PermFollow, s.handleFollowQuestion))
	s.Mux.Handle("POST /questions/{id}/unfollow", perm(models.PermFollow, s.handleUnfollowQuestion))
	s.Mux.Handle("POST /questions/{id}/answers", perm(models.PermWriteArticles, s.handleAnswer))

	s.Mux.Handle("GET /answers/{id}", member(s.handleGetAnswer))
	s.Mux.Handle("PUT /answers/{id}", member(s.handleEditAnswer))
	s.Mux.Handle("DELETE /answers/{id}", member(s.handleDeleteAnswer))
	s.Mux.Handle("POST /answers/{id}/comments", perm(models.PermComment, s.handleComment))
	s.Mux.Handle("POST /answers/{id}/like", perm(models.PermComment, s.handleLike))
	s.Mux.Handle("POST /answers/{id}/unlike", perm(models.PermComment, s.handleUnlike))

	s.Mux.Handle("GET /notifications/likes", member(s.handleUnreadLikes))
	s.Mux.Handle("POST /notifications/likes/read", member(s.handleMarkLikesRead))

	s.Mux.Handle("PUT /people/edit", member(s.handleEditProfile))
	s.Mux.Handle("GET /people/{username}", member(s.handleProfile))
	s.Mux.Handle("GET /people/{username}/activities", member(s.handleProfileLikes))
	s.Mux.Handle("GET /people/{username}/answers", member(s.handleProfileAnswers))
	s.Mux.Handle("GET /people/{username}/asks", member(s.handleProfileQuestions))
	s.Mux.Handle("GET /people/{username}/followers", member(s.handleProfileFollowers))
	s.Mux.Handle("GET /people/{username}/followings", member(s.handleProfileFollowings))
	s.Mux.Handle("GET /people/{username}/following/topics", member(s.handleProfileTopics))
	s.Mux.Handle("GET /people/{username}/following/questions", member(s.handleProfileFollowedQuestions))
	s.Mux.Handle("POST /people/{username}/follow", perm(models.PermFollow, s.handleFollowUser))
	s.Mux.Handle("POST /people/{username}/unfollow", perm(models.PermFollow, s.handleUnfollowUser))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.Mux.ServeHTTP(w, r) }

// ----------------------------
// Helpers
// ----------------------------

func (s *Server) currentUser(r *http.Request) (*models.User, error) {
	uid, ok := auth.UserIDFrom(r.Context())
	if !ok {
		return nil, auth.ErrNotFound
	}
	return auth.UserByID(r.Context(), s.DB, uid)
}

// fail maps sentinel errors from the stores onto status codes. Expected
// user-facing outcomes are messages, not logged anomalies.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		util.Fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, content.ErrForbidden):
		util.Fail(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, content.ErrDuplicateTitle),
		errors.Is(err, content.ErrDuplicateTopic),
		errors.Is(err, content.ErrAlreadyLiked),
		errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrDuplicateUsername):
		util.Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidLogin):
		util.Fail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, token.ErrInvalid):
		util.Fail(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("internal error", "err", err)
		util.Fail(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func pageParam(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return page
}

// ----------------------------
// Home feed and explore
// ----------------------------

// handleFeed serves the three home feeds: mode=topics (default), followings,
// likes.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	page := pageParam(r)

	switch r.URL.Query().Get("mode") {
	case "followings":
		p, err := feed.Followings(r.Context(), s.DB, u.ID, page, feed.DefaultPerPage)
		if err != nil {
			s.fail(w, err)
			return
		}
		util.Respond(w, http.StatusOK, p)
	case "likes":
		p, err := feed.FollowingsLikes(r.Context(), s.DB, u.ID, page, feed.DefaultPerPage)
		if err != nil {
			s.fail(w, err)
			return
		}
		util.Respond(w, http.StatusOK, p)
	default:
		p, err := feed.InterestedTopics(r.Context(), s.DB, u.ID, page, feed.DefaultPerPage)
		if err != nil {
			s.fail(w, err)
			return
		}
		util.Respond(w, http.StatusOK, p)
	}
}

func (s *Server) handleDailyHot(w http.ResponseWriter, r *http.Request) {
	p, err := feed.DailyHot(r.Context(), s.DB, pageParam(r), feed.DefaultPerPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleMonthlyHot(w http.ResponseWriter, r *http.Request) {
	p, err := feed.MonthlyHot(r.Context(), s.DB, pageParam(r), feed.DefaultPerPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		util.Fail(w, http.StatusBadRequest, "q is required")
		return
	}
	answers, err := feed.Search(r.Context(), s.DB, q)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"query": q, "answers": answers})
}
