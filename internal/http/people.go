package httpx

import (
	"net/http"

	"github.com/johoo26/myzhihu/internal/auth"
	"github.com/johoo26/myzhihu/internal/feed"
	"github.com/johoo26/myzhihu/internal/graph"
	"github.com/johoo26/myzhihu/internal/models"
	"github.com/johoo26/myzhihu/internal/util"
)

func (s *Server) profileUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u, err := auth.UserByUsername(r.Context(), s.DB, r.PathValue("username"))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return u, true
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	followers, err := graph.FollowerCount(r.Context(), s.DB, u.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	followings, err := graph.FollowingCount(r.Context(), s.DB, u.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{
		"id":          u.ID,
		"username":    u.Username,
		"about_me":    u.AboutMe,
		"description": u.Description,
		"location":    u.Location,
		"avatar":      u.Gravatar(100),
		"followers":   followers,
		"followings":  followings,
	})
}

func (s *Server) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = auth.UpdateProfile(r.Context(), s.DB, u.ID,
		r.FormValue("about_me"), r.FormValue("description"), r.FormValue("location"))
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleProfileLikes(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	p, err := feed.UserLikes(r.Context(), s.DB, u.ID, pageParam(r), feed.DefaultPerPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleProfileAnswers(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	p, err := feed.UserAnswers(r.Context(), s.DB, u.ID, pageParam(r), feed.DefaultPerPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleProfileQuestions(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	p, err := feed.UserQuestions(r.Context(), s.DB, u.ID, pageParam(r), 15)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleProfileFollowedQuestions(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	p, err := feed.FollowedQuestions(r.Context(), s.DB, u.ID, pageParam(r), 15)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleProfileFollowers(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	users, err := graph.Followers(r.Context(), s.DB, u.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"followers": users})
}

func (s *Server) handleProfileFollowings(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	users, err := graph.Followings(r.Context(), s.DB, u.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"followings": users})
}

func (s *Server) handleProfileTopics(w http.ResponseWriter, r *http.Request) {
	u, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	topics, err := graph.FollowedTopics(r.Context(), s.DB, u.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleFollowUser(w http.ResponseWriter, r *http.Request) {
	s.userEdge(w, r, graph.Follow)
}

func (s *Server) handleUnfollowUser(w http.ResponseWriter, r *http.Request) {
	s.userEdge(w, r, graph.Unfollow)
}

func (s *Server) userEdge(w http.ResponseWriter, r *http.Request, op edgeOp) {
	caller, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	target, ok := s.profileUser(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), s.DB, caller.ID, target.ID); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}
