// Package graph is the social graph store: user-to-user follow edges, topic
// membership and question subscriptions. Every mutation is idempotent with
// respect to repeated identical calls, and none of them dispatch
// notifications; the graph is pure state.
package graph

import (
	"context"
	"time"

	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/models"
)

// ----------------------------
// User follows
// ----------------------------

// Follow creates the (follower, followed) edge unless it already exists.
// Self-follow is not guarded; see DESIGN.md.
func Follow(ctx context.Context, d *db.DB, follower, followed int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(`
		INSERT INTO follows (follower_id, followed_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (follower_id, followed_id) DO NOTHING
	`), follower, followed, time.Now().UTC())
	return err
}

func Unfollow(ctx context.Context, d *db.DB, follower, followed int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(
		`DELETE FROM follows WHERE follower_id = ? AND followed_id = ?`), follower, followed)
	return err
}

func IsFollowing(ctx context.Context, d *db.DB, follower, followed int64) (bool, error) {
	return exists(ctx, d,
		`SELECT COUNT(1) FROM follows WHERE follower_id = ? AND followed_id = ?`, follower, followed)
}

func IsFollowedBy(ctx context.Context, d *db.DB, user, other int64) (bool, error) {
	return IsFollowing(ctx, d, other, user)
}

func FollowerCount(ctx context.Context, d *db.DB, userID int64) (int, error) {
	return count(ctx, d, `SELECT COUNT(1) FROM follows WHERE followed_id = ?`, userID)
}

func FollowingCount(ctx context.Context, d *db.DB, userID int64) (int, error) {
	return count(ctx, d, `SELECT COUNT(1) FROM follows WHERE follower_id = ?`, userID)
}

// Followers lists the users following userID, most recent edge first.
func Followers(ctx context.Context, d *db.DB, userID int64) ([]models.User, error) {
	return users(ctx, d, `
		SELECT u.id, u.username, u.avatar_hash FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followed_id = ?
		ORDER BY f.created_at DESC, u.id DESC
	`, userID)
}

// Followings lists the users userID follows, most recent edge first.
func Followings(ctx context.Context, d *db.DB, userID int64) ([]models.User, error) {
	return users(ctx, d, `
		SELECT u.id, u.username, u.avatar_hash FROM follows f
		JOIN users u ON u.id = f.followed_id
		WHERE f.follower_id = ?
		ORDER BY f.created_at DESC, u.id DESC
	`, userID)
}

// ----------------------------
// Topic membership
// ----------------------------

func FollowTopic(ctx context.Context, d *db.DB, userID, topicID int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(`
		INSERT INTO topics_users (topic_id, user_id) VALUES (?, ?)
		ON CONFLICT (topic_id, user_id) DO NOTHING
	`), topicID, userID)
	return err
}

func UnfollowTopic(ctx context.Context, d *db.DB, userID, topicID int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(
		`DELETE FROM topics_users WHERE topic_id = ? AND user_id = ?`), topicID, userID)
	return err
}

func IsFollowingTopic(ctx context.Context, d *db.DB, userID, topicID int64) (bool, error) {
	return exists(ctx, d,
		`SELECT COUNT(1) FROM topics_users WHERE topic_id = ? AND user_id = ?`, topicID, userID)
}

func TopicFollowers(ctx context.Context, d *db.DB, topicID int64) ([]models.User, error) {
	return users(ctx, d, `
		SELECT u.id, u.username, u.avatar_hash FROM topics_users tu
		JOIN users u ON u.id = tu.user_id
		WHERE tu.topic_id = ?
		ORDER BY u.id DESC
	`, topicID)
}

// FollowedTopics lists the topics a user follows.
func FollowedTopics(ctx context.Context, d *db.DB, userID int64) ([]models.Topic, error) {
	rows, err := d.QueryContext(ctx, d.Rebind(`
		SELECT t.id, t.name, t.description FROM topics_users tu
		JOIN topics t ON t.id = tu.topic_id
		WHERE tu.user_id = ?
		ORDER BY t.name
	`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// ----------------------------
// Question subscriptions
// ----------------------------

func FollowQuestion(ctx context.Context, d *db.DB, userID, questionID int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(`
		INSERT INTO questions_users (question_id, user_id) VALUES (?, ?)
		ON CONFLICT (question_id, user_id) DO NOTHING
	`), questionID, userID)
	return err
}

func UnfollowQuestion(ctx context.Context, d *db.DB, userID, questionID int64) error {
	_, err := d.ExecContext(ctx, d.Rebind(
		`DELETE FROM questions_users WHERE question_id = ? AND user_id = ?`), questionID, userID)
	return err
}

func IsFollowingQuestion(ctx context.Context, d *db.DB, userID, questionID int64) (bool, error) {
	return exists(ctx, d,
		`SELECT COUNT(1) FROM questions_users WHERE question_id = ? AND user_id = ?`, questionID, userID)
}

func QuestionFollowers(ctx context.Context, d *db.DB, questionID int64) ([]models.User, error) {
	return users(ctx, d, `
		SELECT u.id, u.username, u.avatar_hash FROM questions_users qu
		JOIN users u ON u.id = qu.user_id
		WHERE qu.question_id = ?
		ORDER BY u.id DESC
	`, questionID)
}

// ----------------------------
// Helpers
// ----------------------------

func exists(ctx context.Context, d *db.DB, query string, args ...any) (bool, error) {
	n, err := count(ctx, d, query, args...)
	return n > 0, err
}

func count(ctx context.Context, d *db.DB, query string, args ...any) (int, error) {
	var n int
	err := d.QueryRowContext(ctx, d.Rebind(query), args...).Scan(&n)
	return n, err
}

func users(ctx context.Context, d *db.DB, query string, args ...any) ([]models.User, error) {
	rows, err := d.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarHash); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
