package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/johoo26/myzhihu/internal/content"
	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/feed"
	"github.com/johoo26/myzhihu/internal/graph"
	"github.com/johoo26/myzhihu/internal/util"
)

// edgeOp is a graph mutation on a (user, target) pair.
type edgeOp func(ctx context.Context, d *db.DB, userID, targetID int64) error

// ----------------------------
// Topics
// ----------------------------

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := content.Topics(r.Context(), s.DB)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleAddTopic(w http.ResponseWriter, r *http.Request) {
	t, err := content.CreateTopic(r.Context(), s.DB, r.FormValue("name"), r.FormValue("description"))
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusCreated, t)
}

func (s *Server) handleTopicAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad topic id")
		return
	}
	p, err := feed.TopicAnswers(r.Context(), s.DB, id, pageParam(r), feed.DefaultPerPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleTopicQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad topic id")
		return
	}
	p, err := feed.TopicQuestions(r.Context(), s.DB, id, pageParam(r), 20)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, p)
}

func (s *Server) handleTopicFollowers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad topic id")
		return
	}
	users, err := graph.TopicFollowers(r.Context(), s.DB, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"followers": users})
}

func (s *Server) handleFollowTopic(w http.ResponseWriter, r *http.Request) {
	s.topicEdge(w, r, graph.FollowTopic)
}

func (s *Server) handleUnfollowTopic(w http.ResponseWriter, r *http.Request) {
	s.topicEdge(w, r, graph.UnfollowTopic)
}

func (s *Server) topicEdge(w http.ResponseWriter, r *http.Request, op edgeOp) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad topic id")
		return
	}
	if _, err := content.TopicByID(r.Context(), s.DB, id); err != nil {
		s.fail(w, err)
		return
	}
	if err := op(r.Context(), s.DB, u.ID, id); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

// ----------------------------
// Questions
// ----------------------------

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var topicIDs []int64
	if err := r.ParseForm(); err != nil {
		util.Fail(w, http.StatusBadRequest, "bad form")
		return
	}
	for _, v := range r.Form["topics"] {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || id < 1 {
			util.Fail(w, http.StatusBadRequest, "bad topic id")
			return
		}
		topicIDs = append(topicIDs, id)
	}
	q, err := content.CreateQuestion(r.Context(), s.DB, u, r.FormValue("title"), r.FormValue("body"), topicIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusCreated, q)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad question id")
		return
	}
	q, err := content.QuestionByID(r.Context(), s.DB, id, true)
	if err != nil {
		s.fail(w, err)
		return
	}
	answers, err := content.AnswersByQuestion(r.Context(), s.DB, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"question": q, "answers": answers})
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad question id")
		return
	}
	if err := content.DeleteQuestion(r.Context(), s.DB, u, id); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleQuestionFollowers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad question id")
		return
	}
	users, err := graph.QuestionFollowers(r.Context(), s.DB, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"followers": users})
}

func (s *Server) handleFollowQuestion(w http.ResponseWriter, r *http.Request) {
	s.questionEdge(w, r, graph.FollowQuestion)
}

func (s *Server) handleUnfollowQuestion(w http.ResponseWriter, r *http.Request) {
	s.questionEdge(w, r, graph.UnfollowQuestion)
}

func (s *Server) questionEdge(w http.ResponseWriter, r *http.Request, op edgeOp) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad question id")
		return
	}
	if _, err := content.QuestionByID(r.Context(), s.DB, id, false); err != nil {
		s.fail(w, err)
		return
	}
	if err := op(r.Context(), s.DB, u.ID, id); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

// ----------------------------
// Answers
// ----------------------------

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	qid, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad question id")
		return
	}
	body := r.FormValue("body")
	if strings.TrimSpace(body) == "" {
		util.Fail(w, http.StatusBadRequest, "body is required")
		return
	}
	a, err := content.CreateAnswer(r.Context(), s.DB, u, qid, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusCreated, a)
}

func (s *Server) handleGetAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad answer id")
		return
	}
	a, err := content.AnswerByID(r.Context(), s.DB, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	comments, err := content.CommentsByAnswer(r.Context(), s.DB, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"answer": a, "comments": comments})
}

func (s *Server) handleEditAnswer(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad answer id")
		return
	}
	if err := content.EditAnswer(r.Context(), s.DB, u, id, r.FormValue("body")); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad answer id")
		return
	}
	if err := content.DeleteAnswer(r.Context(), s.DB, u, id); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad answer id")
		return
	}
	body := r.FormValue("body")
	if strings.TrimSpace(body) == "" {
		util.Fail(w, http.StatusBadRequest, "body is required")
		return
	}
	c, err := content.CreateComment(r.Context(), s.DB, u, id, body)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusCreated, c)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad answer id")
		return
	}
	if err := content.Like(r.Context(), s.DB, u, id); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		util.Fail(w, http.StatusBadRequest, "bad answer id")
		return
	}
	if err := content.Unlike(r.Context(), s.DB, u, id); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}

// ----------------------------
// Like notifications
// ----------------------------

func (s *Server) handleUnreadLikes(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	likes, err := content.UnreadLikes(r.Context(), s.DB, u.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, map[string]any{"likes": likes})
}

func (s *Server) handleMarkLikesRead(w http.ResponseWriter, r *http.Request) {
	u, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := content.MarkLikesRead(r.Context(), s.DB, u.ID); err != nil {
		s.fail(w, err)
		return
	}
	util.Respond(w, http.StatusOK, nil)
}
