// Package content is the content store: topics, questions, answers, comments
// and like edges. body_html is recomputed from body at every write, and
// likes_count is a cache re-derived from the like edge set inside the same
// transaction as any edge mutation.
package content

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/models"
)

var (
	ErrDuplicateTitle = errors.New("question title already taken")
	ErrDuplicateTopic = errors.New("topic name already taken")
	ErrAlreadyLiked   = errors.New("answer already liked")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
)

// ----------------------------
// Topics
// ----------------------------

func CreateTopic(ctx context.Context, d *db.DB, name, description string) (*models.Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("topic name is required")
	}
	t := models.Topic{Name: name, Description: description}
	err := d.QueryRowContext(ctx, d.Rebind(
		`INSERT INTO topics (name, description) VALUES (?, ?) RETURNING id`),
		name, description).Scan(&t.ID)
	if isUniqueErr(err) {
		return nil, ErrDuplicateTopic
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func TopicByID(ctx context.Context, d *db.DB, id int64) (*models.Topic, error) {
	var t models.Topic
	err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT id, name, description FROM topics WHERE id = ?`), id).
		Scan(&t.ID, &t.Name, &t.Description)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Topics lists every topic, for the topic square page.
func Topics(ctx context.Context, d *db.DB) ([]models.Topic, error) {
	rows, err := d.QueryContext(ctx, `SELECT id, name, description FROM topics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ----------------------------
// Questions
// ----------------------------

// CreateQuestion inserts a question and its topic links in one transaction.
// Title uniqueness is global, not per author.
func CreateQuestion(ctx context.Context, d *db.DB, author *models.User, title, body string, topicIDs []int64) (*models.Question, error) {
	if !author.Can(models.PermWriteArticles) {
		return nil, ErrForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title is required")
	}

	var exists int
	if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM questions WHERE title = ?`), title).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, ErrDuplicateTitle
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	q := models.Question{Title: title, Body: body, UserID: author.ID, CreatedAt: time.Now().UTC()}
	err = tx.QueryRowContext(ctx, d.Rebind(`
		INSERT INTO questions (title, body, user_id, created_at) VALUES (?, ?, ?, ?) RETURNING id
	`), title, body, author.ID, q.CreatedAt).Scan(&q.ID)
	if isUniqueErr(err) {
		return nil, ErrDuplicateTitle
	}
	if err != nil {
		return nil, err
	}

	for _, tid := range topicIDs {
		var known int
		if err := tx.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM topics WHERE id = ?`), tid).Scan(&known); err != nil {
			return nil, err
		}
		if known == 0 {
			return nil, ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, d.Rebind(`
			INSERT INTO topics_questions (topic_id, question_id) VALUES (?, ?)
			ON CONFLICT (topic_id, question_id) DO NOTHING
		`), tid, q.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &q, nil
}

// QuestionByID loads a question with author and topics. When bumpViews is set
// the persisted view counter is incremented in SQL, not in process memory.
func QuestionByID(ctx context.Context, d *db.DB, id int64, bumpViews bool) (*models.Question, error) {
	if bumpViews {
		if _, err := d.ExecContext(ctx, d.Rebind(`UPDATE questions SET views = views + 1 WHERE id = ?`), id); err != nil {
			return nil, err
		}
	}

	var q models.Question
	err := d.QueryRowContext(ctx, d.Rebind(`
		SELECT q.id, q.title, q.body, q.user_id, q.views, q.created_at, u.username
		FROM questions q JOIN users u ON u.id = q.user_id
		WHERE q.id = ?
	`), id).Scan(&q.ID, &q.Title, &q.Body, &q.UserID, &q.Views, &q.CreatedAt, &q.Author)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT t.id, t.name, t.description FROM topics_questions tq
		JOIN topics t ON t.id = tq.topic_id
		WHERE tq.question_id = ?
		ORDER BY t.name
	`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, err
		}
		q.Topics = append(q.Topics, t)
	}
	return &q, rows.Err()
}

// DeleteQuestion removes the question; answers, their comments and likes, the
// topic links and the subscriptions go with it via the schema's cascades.
func DeleteQuestion(ctx context.Context, d *db.DB, caller *models.User, id int64) error {
	var authorID int64
	err := d.QueryRowContext(ctx, d.Rebind(`SELECT user_id FROM questions WHERE id = ?`), id).Scan(&authorID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if caller.ID != authorID && !caller.Can(models.PermWriteArticles) {
		return ErrForbidden
	}
	_, err = d.ExecContext(ctx, d.Rebind(`DELETE FROM questions WHERE id = ?`), id)
	return err
}

// ----------------------------
// Answers
// ----------------------------

const answerCols = `a.id, a.question_id, a.user_id, a.body, a.body_html, a.likes_count, a.created_at,
	u.username, q.title`

func scanAnswer(sc interface{ Scan(...any) error }) (models.Answer, error) {
	var a models.Answer
	err := sc.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Body, &a.BodyHTML, &a.LikesCount, &a.CreatedAt,
		&a.Author, &a.QuestionTitle)
	return a, err
}

func CreateAnswer(ctx context.Context, d *db.DB, author *models.User, questionID int64, body string) (*models.Answer, error) {
	if !author.Can(models.PermWriteArticles) {
		return nil, ErrForbidden
	}
	var exists int
	if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM questions WHERE id = ?`), questionID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	a := models.Answer{
		QuestionID: questionID,
		UserID:     author.ID,
		Body:       body,
		BodyHTML:   renderBody(body),
		CreatedAt:  time.Now().UTC(),
	}
	err := d.QueryRowContext(ctx, d.Rebind(`
		INSERT INTO answers (question_id, user_id, body, body_html, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id
	`), a.QuestionID, a.UserID, a.Body, a.BodyHTML, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func AnswerByID(ctx context.Context, d *db.DB, id int64) (*models.Answer, error) {
	a, err := scanAnswer(d.QueryRowContext(ctx, d.Rebind(`
		SELECT `+answerCols+` FROM answers a
		JOIN users u ON u.id = a.user_id
		JOIN questions q ON q.id = a.question_id
		WHERE a.id = ?
	`), id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func AnswersByQuestion(ctx context.Context, d *db.DB, questionID int64) ([]models.Answer, error) {
	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT `+answerCols+` FROM answers a
		JOIN users u ON u.id = a.user_id
		JOIN questions q ON q.id = a.question_id
		WHERE a.question_id = ?
		ORDER BY a.created_at DESC, a.id DESC
	`), questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EditAnswer is allowed for the author or any WRITE_ARTICLES holder; the
// permission is site-wide, matching the observed product behavior. body_html
// is always recomputed at the write boundary.
func EditAnswer(ctx context.Context, d *db.DB, caller *models.User, id int64, newBody string) error {
	var authorID int64
	err := d.QueryRowContext(ctx, d.Rebind(`SELECT user_id FROM answers WHERE id = ?`), id).Scan(&authorID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if caller.ID != authorID && !caller.Can(models.PermWriteArticles) {
		return ErrForbidden
	}
	_, err = d.ExecContext(ctx, d.Rebind(`UPDATE answers SET body = ?, body_html = ? WHERE id = ?`),
		newBody, renderBody(newBody), id)
	return err
}

func DeleteAnswer(ctx context.Context, d *db.DB, caller *models.User, id int64) error {
	var authorID int64
	err := d.QueryRowContext(ctx, d.Rebind(`SELECT user_id FROM answers WHERE id = ?`), id).Scan(&authorID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if caller.ID != authorID && !caller.Can(models.PermWriteArticles) {
		return ErrForbidden
	}
	_, err = d.ExecContext(ctx, d.Rebind(`DELETE FROM answers WHERE id = ?`), id)
	return err
}

// ----------------------------
// Comments
// ----------------------------

func CreateComment(ctx context.Context, d *db.DB, author *models.User, answerID int64, body string) (*models.Comment, error) {
	if !author.Can(models.PermComment) {
		return nil, ErrForbidden
	}
	var exists int
	if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM answers WHERE id = ?`), answerID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	c := models.Comment{AnswerID: answerID, UserID: author.ID, Body: body, CreatedAt: time.Now().UTC()}
	err := d.QueryRowContext(ctx, d.Rebind(`
		INSERT INTO comments (answer_id, user_id, body, created_at) VALUES (?, ?, ?, ?) RETURNING id
	`), c.AnswerID, c.UserID, c.Body, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func CommentsByAnswer(ctx context.Context, d *db.DB, answerID int64) ([]models.Comment, error) {
	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT c.id, c.answer_id, c.user_id, c.body, c.created_at, u.username
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.answer_id = ?
		ORDER BY c.created_at ASC, c.id ASC
	`), answerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.AnswerID, &c.UserID, &c.Body, &c.CreatedAt, &c.Author); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ----------------------------
// Likes
// ----------------------------

// Like creates the like edge and re-derives likes_count from the edge set in
// the same transaction, so concurrent likes cannot lose updates.
func Like(ctx context.Context, d *db.DB, user *models.User, answerID int64) error {
	if !user.Can(models.PermComment) {
		return ErrForbidden
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(1) FROM answers WHERE id = ?`), answerID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	err = tx.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(1) FROM likes WHERE answer_id = ? AND user_id = ?`), answerID, user.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return ErrAlreadyLiked
	}

	_, err = tx.ExecContext(ctx, d.Rebind(
		`INSERT INTO likes (answer_id, user_id, created_at) VALUES (?, ?, ?)`),
		answerID, user.ID, time.Now().UTC())
	if isUniqueErr(err) {
		// Lost the race against a concurrent identical like.
		return ErrAlreadyLiked
	}
	if err != nil {
		return err
	}

	if err := rederiveLikesCount(ctx, d, tx, answerID); err != nil {
		return err
	}
	return tx.Commit()
}

// Unlike removes the edge if present (no-op otherwise) and re-derives the
// counter either way.
func Unlike(ctx context.Context, d *db.DB, user *models.User, answerID int64) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, d.Rebind(
		`DELETE FROM likes WHERE answer_id = ? AND user_id = ?`), answerID, user.ID); err != nil {
		return err
	}
	if err := rederiveLikesCount(ctx, d, tx, answerID); err != nil {
		return err
	}
	return tx.Commit()
}

// rederiveLikesCount writes COUNT(*) of the edge set into the cached counter.
// The edge set is the source of truth; the counter never drifts.
//
// On Postgres the answer row is locked before counting: under READ COMMITTED
// the UPDATE's subquery runs against the statement snapshot, so without the
// lock two likes committing back-to-back could leave the counter one short.
// SQLite serializes writers and rejects FOR UPDATE, so it skips the lock.
func rederiveLikesCount(ctx context.Context, d *db.DB, tx *sql.Tx, answerID int64) error {
	if d.Dialect() == db.Postgres {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM answers WHERE id = $1 FOR UPDATE`, answerID).Scan(&id)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE answers SET likes_count = (SELECT COUNT(1) FROM likes WHERE answer_id = ?)
		WHERE id = ?
	`), answerID, answerID)
	return err
}

func HaveLiked(ctx context.Context, d *db.DB, userID, answerID int64) (bool, error) {
	var n int
	err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(1) FROM likes WHERE answer_id = ? AND user_id = ?`), answerID, userID).Scan(&n)
	return n > 0, err
}

// UnreadLikes lists unread likes on answers the owner wrote, newest first.
func UnreadLikes(ctx context.Context, d *db.DB, ownerID int64) ([]models.Like, error) {
	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT l.id, l.answer_id, l.user_id, l.unread, l.created_at, u.username, a.body, q.id, q.title
		FROM likes l
		JOIN answers a ON a.id = l.answer_id
		JOIN questions q ON q.id = a.question_id
		JOIN users u ON u.id = l.user_id
		WHERE a.user_id = ? AND l.unread = TRUE
		ORDER BY l.created_at DESC, l.id DESC
	`), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Like
	for rows.Next() {
		var l models.Like
		if err := rows.Scan(&l.ID, &l.AnswerID, &l.UserID, &l.Unread, &l.CreatedAt,
			&l.Author, &l.AnswerBody, &l.QuestionID, &l.QuestionTitle); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func MarkLikesRead(ctx context.Context, d *db.DB, ownerID int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(`
		UPDATE likes SET unread = FALSE
		WHERE unread = TRUE AND answer_id IN (SELECT id FROM answers WHERE user_id = ?)
	`), ownerID)
	return err
}

// ----------------------------
// Helpers
// ----------------------------

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
