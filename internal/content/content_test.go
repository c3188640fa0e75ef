package content

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johoo26/myzhihu/internal/auth"
	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d))
	t.Cleanup(func() { d.Close() })
	return d
}

func newUser(t *testing.T, d *db.DB, name string) *models.User {
	t.Helper()
	u, err := auth.Register(context.Background(), d, "", name, name+"@example.com", "secret1")
	require.NoError(t, err)
	return u
}

func likesEdgeCount(t *testing.T, d *db.DB, answerID int64) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow(d.Rebind(`SELECT COUNT(1) FROM likes WHERE answer_id = ?`), answerID).Scan(&n))
	return n
}

func cachedLikesCount(t *testing.T, d *db.DB, answerID int64) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow(d.Rebind(`SELECT likes_count FROM answers WHERE id = ?`), answerID).Scan(&n))
	return n
}

func TestCreateQuestionDuplicateTitle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")

	_, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "asking for a friend", nil)
	require.NoError(t, err)

	// Uniqueness is global, not per author.
	_, err = CreateQuestion(ctx, d, bob, "Why is the sky blue?", "", nil)
	assert.ErrorIs(t, err, ErrDuplicateTitle)
}

func TestCreateQuestionLinksTopics(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")

	t1, err := CreateTopic(ctx, d, "physics", "the hard one")
	require.NoError(t, err)
	t2, err := CreateTopic(ctx, d, "optics", "")
	require.NoError(t, err)
	_, err = CreateTopic(ctx, d, "physics", "")
	assert.ErrorIs(t, err, ErrDuplicateTopic)

	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", []int64{t1.ID, t2.ID})
	require.NoError(t, err)

	got, err := QuestionByID(ctx, d, q.ID, false)
	require.NoError(t, err)
	require.Len(t, got.Topics, 2)
	assert.Equal(t, "alice", got.Author)
}

func TestCreateQuestionUnknownTopic(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")

	t1, err := CreateTopic(ctx, d, "physics", "")
	require.NoError(t, err)

	_, err = CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", []int64{t1.ID, 9999})
	assert.ErrorIs(t, err, ErrNotFound)

	// The whole insert rolled back; the title is free again.
	_, err = CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", []int64{t1.ID})
	require.NoError(t, err)
}

func TestQuestionViewsCounter(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")

	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = QuestionByID(ctx, d, q.ID, true)
		require.NoError(t, err)
	}
	got, err := QuestionByID(ctx, d, q.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Views)
}

func TestCreateAnswerRendersMarkdown(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)

	a, err := CreateAnswer(ctx, d, alice, q.ID, "**bold** and <script>alert('x')</script>")
	require.NoError(t, err)

	assert.Contains(t, a.BodyHTML, "<strong>bold</strong>")
	assert.NotContains(t, a.BodyHTML, "<script>")
	assert.NotContains(t, a.BodyHTML, "alert('x')")

	_, err = CreateAnswer(ctx, d, alice, 9999, "orphan")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditAnswerPermissions(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, alice, q.ID, "first draft")
	require.NoError(t, err)

	// A caller with no WRITE_ARTICLES bit and no authorship is rejected.
	limited := &models.User{ID: bob.ID, Permissions: models.PermFollow | models.PermComment}
	assert.ErrorIs(t, EditAnswer(ctx, d, limited, a.ID, "hijacked"), ErrForbidden)

	// The site-wide WRITE_ARTICLES bit allows editing someone else's answer.
	require.NoError(t, EditAnswer(ctx, d, bob, a.ID, "*revised*"))

	got, err := AnswerByID(ctx, d, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "*revised*", got.Body)
	assert.Contains(t, got.BodyHTML, "<em>revised</em>")

	assert.ErrorIs(t, EditAnswer(ctx, d, alice, 9999, "x"), ErrNotFound)
}

func TestComments(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, alice, q.ID, "scattering")
	require.NoError(t, err)

	muted := &models.User{ID: bob.ID, Permissions: models.PermFollow}
	_, err = CreateComment(ctx, d, muted, a.ID, "nope")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = CreateComment(ctx, d, bob, a.ID, "nice answer")
	require.NoError(t, err)
	_, err = CreateComment(ctx, d, alice, a.ID, "thanks")
	require.NoError(t, err)

	comments, err := CommentsByAnswer(ctx, d, a.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	// Oldest first on an answer page.
	assert.Equal(t, "nice answer", comments[0].Body)
	assert.Equal(t, "bob", comments[0].Author)
}

func TestLikeUnlikeKeepsCounterDerived(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")
	carol := newUser(t, d, "carol")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, alice, q.ID, "scattering")
	require.NoError(t, err)

	require.NoError(t, Like(ctx, d, bob, a.ID))
	assert.ErrorIs(t, Like(ctx, d, bob, a.ID), ErrAlreadyLiked)
	require.NoError(t, Like(ctx, d, carol, a.ID))

	assert.Equal(t, 2, likesEdgeCount(t, d, a.ID))
	assert.Equal(t, 2, cachedLikesCount(t, d, a.ID))

	liked, err := HaveLiked(ctx, d, bob.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, Unlike(ctx, d, bob, a.ID))
	// Unlike of a missing edge is a no-op; the counter still matches the edges.
	require.NoError(t, Unlike(ctx, d, bob, a.ID))

	assert.Equal(t, 1, likesEdgeCount(t, d, a.ID))
	assert.Equal(t, 1, cachedLikesCount(t, d, a.ID))

	assert.ErrorIs(t, Like(ctx, d, bob, 9999), ErrNotFound)
}

func TestConcurrentLikesLoseNoUpdates(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, alice, q.ID, "scattering")
	require.NoError(t, err)

	const n = 8
	users := make([]*models.User, n)
	for i := range users {
		users[i] = newUser(t, d, "liker"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			assert.NoError(t, Like(ctx, d, u, a.ID))
		}(u)
	}
	wg.Wait()

	assert.Equal(t, n, likesEdgeCount(t, d, a.ID))
	assert.Equal(t, n, cachedLikesCount(t, d, a.ID))
}

func TestUnreadLikes(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, alice, q.ID, "scattering")
	require.NoError(t, err)

	require.NoError(t, Like(ctx, d, bob, a.ID))

	likes, err := UnreadLikes(ctx, d, alice.ID)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, "bob", likes[0].Author)
	assert.Equal(t, q.ID, likes[0].QuestionID)

	require.NoError(t, MarkLikesRead(ctx, d, alice.ID))
	likes, err = UnreadLikes(ctx, d, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, likes)
}

func TestDeleteAnswerCascades(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", nil)
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, alice, q.ID, "scattering")
	require.NoError(t, err)
	_, err = CreateComment(ctx, d, bob, a.ID, "nice")
	require.NoError(t, err)
	require.NoError(t, Like(ctx, d, bob, a.ID))

	limited := &models.User{ID: bob.ID, Permissions: models.PermComment}
	assert.ErrorIs(t, DeleteAnswer(ctx, d, limited, a.ID), ErrForbidden)

	require.NoError(t, DeleteAnswer(ctx, d, alice, a.ID))

	_, err = AnswerByID(ctx, d, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	var n int
	require.NoError(t, d.QueryRow(d.Rebind(`SELECT COUNT(1) FROM comments WHERE answer_id = ?`), a.ID).Scan(&n))
	assert.Zero(t, n)
	assert.Zero(t, likesEdgeCount(t, d, a.ID))
}

func TestDeleteQuestionCascades(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := newUser(t, d, "alice")
	bob := newUser(t, d, "bob")
	topic, err := CreateTopic(ctx, d, "physics", "")
	require.NoError(t, err)
	q, err := CreateQuestion(ctx, d, alice, "Why is the sky blue?", "", []int64{topic.ID})
	require.NoError(t, err)
	a, err := CreateAnswer(ctx, d, bob, q.ID, "scattering")
	require.NoError(t, err)
	require.NoError(t, Like(ctx, d, alice, a.ID))

	require.NoError(t, DeleteQuestion(ctx, d, alice, q.ID))

	_, err = QuestionByID(ctx, d, q.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = AnswerByID(ctx, d, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	var n int
	require.NoError(t, d.QueryRow(d.Rebind(`SELECT COUNT(1) FROM topics_questions WHERE question_id = ?`), q.ID).Scan(&n))
	assert.Zero(t, n)

	// The topic itself survives.
	_, err = TopicByID(ctx, d, topic.ID)
	assert.NoError(t, err)
}

func TestRenderBodyWhitelist(t *testing.T) {
	html := renderBody("# Heading\n\n> quote with `code`\n\n<img src=x onerror=alert(1)>")
	assert.Contains(t, html, "<h1>Heading</h1>")
	assert.Contains(t, html, "<blockquote>")
	assert.Contains(t, html, "<code>code</code>")
	assert.NotContains(t, strings.ToLower(html), "<img")
	assert.NotContains(t, strings.ToLower(html), "onerror")
}
