// Package feed derives personalized, time-ordered, paginated feeds by joining
// the caller's graph edges with content. Ordering is always timestamp
// descending with id descending as the tiebreak, so pages are deterministic.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/models"
)

const DefaultPerPage = 10

// SearchLimit caps free-text search results; there is no relevance ranking.
const SearchLimit = 30

type Page[T any] struct {
	Items   []T
	Page    int
	PerPage int
	Total   int
}

func (p Page[T]) HasPrev() bool { return p.Page > 1 }
func (p Page[T]) HasNext() bool { return p.Page*p.PerPage < p.Total }

func clamp(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return page, perPage
}

// ----------------------------
// Answer feeds
// ----------------------------

// InterestedTopics: answers whose question is tagged with at least one topic
// the user follows.
func InterestedTopics(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Answer], error) {
	return answersPage(ctx, d, `a.question_id IN (
		SELECT tq.question_id FROM topics_questions tq
		JOIN topics_users tu ON tu.topic_id = tq.topic_id
		WHERE tu.user_id = ?)`, []any{userID}, page, perPage)
}

// Followings: answers authored by users the caller follows.
func Followings(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Answer], error) {
	return answersPage(ctx, d,
		`a.user_id IN (SELECT followed_id FROM follows WHERE follower_id = ?)`,
		[]any{userID}, page, perPage)
}

// TopicAnswers is a topic's activity stream: every answer under the topic.
func TopicAnswers(ctx context.Context, d *db.DB, topicID int64, page, perPage int) (Page[models.Answer], error) {
	return answersPage(ctx, d,
		`a.question_id IN (SELECT question_id FROM topics_questions WHERE topic_id = ?)`,
		[]any{topicID}, page, perPage)
}

func UserAnswers(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Answer], error) {
	return answersPage(ctx, d, `a.user_id = ?`, []any{userID}, page, perPage)
}

// DailyHot: answers from the last 24 hours with more than 2 likes, newest
// first. Deliberately not ordered by like count.
func DailyHot(ctx context.Context, d *db.DB, page, perPage int) (Page[models.Answer], error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	return answersPage(ctx, d, `a.created_at > ? AND a.likes_count > 2`, []any{cutoff}, page, perPage)
}

// MonthlyHot: answers from the last 30 days with more than 10 likes.
func MonthlyHot(ctx context.Context, d *db.DB, page, perPage int) (Page[models.Answer], error) {
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	return answersPage(ctx, d, `a.created_at > ? AND a.likes_count > 10`, []any{cutoff}, page, perPage)
}

// likeEscaper quotes LIKE metacharacters so the query is matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search scans answer bodies for case-insensitive substring containment.
func Search(ctx context.Context, d *db.DB, query string) ([]models.Answer, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT `+answerCols+` FROM answers a
		JOIN users u ON u.id = a.user_id
		JOIN questions q ON q.id = a.question_id
		WHERE LOWER(a.body) LIKE ? ESCAPE '\'
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ?
	`), pattern, SearchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnswers(rows)
}

// ----------------------------
// Like feeds
// ----------------------------

// FollowingsLikes: likes made by users the caller follows.
func FollowingsLikes(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Like], error) {
	return likesPage(ctx, d,
		`l.user_id IN (SELECT followed_id FROM follows WHERE follower_id = ?)`,
		[]any{userID}, page, perPage)
}

// UserLikes is the profile activity page: the user's own likes.
func UserLikes(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Like], error) {
	return likesPage(ctx, d, `l.user_id = ?`, []any{userID}, page, perPage)
}

// ----------------------------
// Question feeds
// ----------------------------

func UserQuestions(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Question], error) {
	return questionsPage(ctx, d, `q.user_id = ?`, []any{userID}, page, perPage)
}

func FollowedQuestions(ctx context.Context, d *db.DB, userID int64, page, perPage int) (Page[models.Question], error) {
	return questionsPage(ctx, d,
		`q.id IN (SELECT question_id FROM questions_users WHERE user_id = ?)`,
		[]any{userID}, page, perPage)
}

func TopicQuestions(ctx context.Context, d *db.DB, topicID int64, page, perPage int) (Page[models.Question], error) {
	return questionsPage(ctx, d,
		`q.id IN (SELECT question_id FROM topics_questions WHERE topic_id = ?)`,
		[]any{topicID}, page, perPage)
}

// ----------------------------
// Query plumbing
// ----------------------------

const answerCols = `a.id, a.question_id, a.user_id, a.body, a.body_html, a.likes_count, a.created_at,
	u.username, q.title`

type scanner interface{ Scan(...any) error }

func answersPage(ctx context.Context, d *db.DB, where string, args []any, page, perPage int) (Page[models.Answer], error) {
	page, perPage = clamp(page, perPage)
	out := Page[models.Answer]{Page: page, PerPage: perPage}

	if err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(1) FROM answers a WHERE `+where), args...).Scan(&out.Total); err != nil {
		return out, err
	}

	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT `+answerCols+` FROM answers a
		JOIN users u ON u.id = a.user_id
		JOIN questions q ON q.id = a.question_id
		WHERE `+where+`
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?
	`), append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	out.Items, err = collectAnswers(rows)
	return out, err
}

func collectAnswers(rows interface {
	scanner
	Next() bool
	Err() error
}) ([]models.Answer, error) {
	var items []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Body, &a.BodyHTML, &a.LikesCount,
			&a.CreatedAt, &a.Author, &a.QuestionTitle); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func likesPage(ctx context.Context, d *db.DB, where string, args []any, page, perPage int) (Page[models.Like], error) {
	page, perPage = clamp(page, perPage)
	out := Page[models.Like]{Page: page, PerPage: perPage}

	if err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(1) FROM likes l WHERE `+where), args...).Scan(&out.Total); err != nil {
		return out, err
	}

	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT l.id, l.answer_id, l.user_id, l.unread, l.created_at, u.username, a.body, q.id, q.title
		FROM likes l
		JOIN users u ON u.id = l.user_id
		JOIN answers a ON a.id = l.answer_id
		JOIN questions q ON q.id = a.question_id
		WHERE `+where+`
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT ? OFFSET ?
	`), append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var l models.Like
		if err := rows.Scan(&l.ID, &l.AnswerID, &l.UserID, &l.Unread, &l.CreatedAt,
			&l.Author, &l.AnswerBody, &l.QuestionID, &l.QuestionTitle); err != nil {
			return out, err
		}
		out.Items = append(out.Items, l)
	}
	return out, rows.Err()
}

func questionsPage(ctx context.Context, d *db.DB, where string, args []any, page, perPage int) (Page[models.Question], error) {
	page, perPage = clamp(page, perPage)
	out := Page[models.Question]{Page: page, PerPage: perPage}

	if err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(1) FROM questions q WHERE `+where), args...).Scan(&out.Total); err != nil {
		return out, err
	}

	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT q.id, q.title, q.body, q.user_id, q.views, q.created_at, u.username
		FROM questions q
		JOIN users u ON u.id = q.user_id
		WHERE `+where+`
		ORDER BY q.created_at DESC, q.id DESC
		LIMIT ? OFFSET ?
	`), append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Title, &q.Body, &q.UserID, &q.Views, &q.CreatedAt, &q.Author); err != nil {
			return out, err
		}
		out.Items = append(out.Items, q)
	}
	return out, rows.Err()
}
