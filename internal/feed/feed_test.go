package feed

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johoo26/myzhihu/internal/auth"
	"github.com/johoo26/myzhihu/internal/content"
	"github.com/johoo26/myzhihu/internal/db"
	"github.com/johoo26/myzhihu/internal/graph"
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

func backdateAnswer(t *testing.T, d *db.DB, answerID int64, at time.Time) {
	t.Helper()
	_, err := d.Exec(d.Rebind(`UPDATE answers SET created_at = ? WHERE id = ?`), at, answerID)
	require.NoError(t, err)
}

func setLikesCount(t *testing.T, d *db.DB, answerID int64, n int) {
	t.Helper()
	_, err := d.Exec(d.Rebind(`UPDATE answers SET likes_count = ? WHERE id = ?`), n, answerID)
	require.NoError(t, err)
}

func TestInterestedTopicsFeed(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	a := newUser(t, d, "alice")
	b := newUser(t, d, "bob")

	history, err := content.CreateTopic(ctx, d, "history", "")
	require.NoError(t, err)
	require.NoError(t, graph.FollowTopic(ctx, d, a.ID, history.ID))

	q, err := content.CreateQuestion(ctx, d, b, "What happened in 1453?", "", []int64{history.ID})
	require.NoError(t, err)
	ans, err := content.CreateAnswer(ctx, d, b, q.ID, "Constantinople fell.")
	require.NoError(t, err)

	page, err := InterestedTopics(ctx, d, a.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ans.ID, page.Items[0].ID)
	assert.Equal(t, "bob", page.Items[0].Author)
	assert.Equal(t, "What happened in 1453?", page.Items[0].QuestionTitle)

	// A fresh feed after unfollowing no longer contains the answer.
	require.NoError(t, graph.UnfollowTopic(ctx, d, a.ID, history.ID))
	page, err = InterestedTopics(ctx, d, a.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestFollowingsFeed(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	a := newUser(t, d, "alice")
	b := newUser(t, d, "bob")
	c := newUser(t, d, "carol")

	q, err := content.CreateQuestion(ctx, d, b, "What happened in 1453?", "", nil)
	require.NoError(t, err)
	fromB, err := content.CreateAnswer(ctx, d, b, q.ID, "from bob")
	require.NoError(t, err)
	_, err = content.CreateAnswer(ctx, d, c, q.ID, "from carol")
	require.NoError(t, err)

	require.NoError(t, graph.Follow(ctx, d, a.ID, b.ID))

	page, err := Followings(ctx, d, a.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, fromB.ID, page.Items[0].ID)
}

func TestFollowingsLikesFeed(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	a := newUser(t, d, "alice")
	b := newUser(t, d, "bob")
	c := newUser(t, d, "carol")

	q, err := content.CreateQuestion(ctx, d, c, "What happened in 1453?", "", nil)
	require.NoError(t, err)
	ans, err := content.CreateAnswer(ctx, d, c, q.ID, "Constantinople fell.")
	require.NoError(t, err)

	require.NoError(t, content.Like(ctx, d, b, ans.ID))
	require.NoError(t, content.Like(ctx, d, a, ans.ID))
	require.NoError(t, graph.Follow(ctx, d, a.ID, b.ID))

	page, err := FollowingsLikes(ctx, d, a.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, b.ID, page.Items[0].UserID)
	assert.Equal(t, "bob", page.Items[0].Author)
	assert.Equal(t, ans.ID, page.Items[0].AnswerID)
}

func TestFeedOrderingAndPagination(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	a := newUser(t, d, "alice")
	b := newUser(t, d, "bob")
	require.NoError(t, graph.Follow(ctx, d, a.ID, b.ID))

	q, err := content.CreateQuestion(ctx, d, b, "What happened in 1453?", "", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	var ids []int64
	for i := 0; i < 5; i++ {
		ans, err := content.CreateAnswer(ctx, d, b, q.ID, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
		// Same timestamp: ordering must fall back to id descending.
		backdateAnswer(t, d, ans.ID, now)
		ids = append(ids, ans.ID)
	}

	page, err := Followings(ctx, d, a.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.False(t, page.HasPrev())
	assert.True(t, page.HasNext())
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.Equal(t, ids[3], page.Items[1].ID)

	page, err = Followings(ctx, d, a.ID, 3, 2)
	require.NoError(t, err)
	assert.True(t, page.HasPrev())
	assert.False(t, page.HasNext())
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[0], page.Items[0].ID)
}

func TestHotLists(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	u := newUser(t, d, "alice")
	q, err := content.CreateQuestion(ctx, d, u, "What happened in 1453?", "", nil)
	require.NoError(t, err)

	fresh, err := content.CreateAnswer(ctx, d, u, q.ID, "fresh and popular")
	require.NoError(t, err)
	setLikesCount(t, d, fresh.ID, 3)

	cold, err := content.CreateAnswer(ctx, d, u, q.ID, "fresh but ignored")
	require.NoError(t, err)
	setLikesCount(t, d, cold.ID, 2)

	old, err := content.CreateAnswer(ctx, d, u, q.ID, "old but very popular")
	require.NoError(t, err)
	setLikesCount(t, d, old.ID, 11)
	backdateAnswer(t, d, old.ID, time.Now().UTC().Add(-5*24*time.Hour))

	ancient, err := content.CreateAnswer(ctx, d, u, q.ID, "too old for any list")
	require.NoError(t, err)
	setLikesCount(t, d, ancient.ID, 50)
	backdateAnswer(t, d, ancient.ID, time.Now().UTC().Add(-40*24*time.Hour))

	daily, err := DailyHot(ctx, d, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, daily.Items, 1)
	assert.Equal(t, fresh.ID, daily.Items[0].ID)

	monthly, err := MonthlyHot(ctx, d, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, monthly.Items, 1)
	assert.Equal(t, old.ID, monthly.Items[0].ID)
}

func TestSearch(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	u := newUser(t, d, "alice")
	q, err := content.CreateQuestion(ctx, d, u, "What happened in 1453?", "", nil)
	require.NoError(t, err)

	first, err := content.CreateAnswer(ctx, d, u, q.ID, "The OTTOMAN army took the city.")
	require.NoError(t, err)
	second, err := content.CreateAnswer(ctx, d, u, q.ID, "ottoman cannons mattered most.")
	require.NoError(t, err)
	_, err = content.CreateAnswer(ctx, d, u, q.ID, "Unrelated remark.")
	require.NoError(t, err)

	got, err := Search(ctx, d, "Ottoman")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
}

func TestSearchMatchesMetacharactersLiterally(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	u := newUser(t, d, "alice")
	q, err := content.CreateQuestion(ctx, d, u, "What happened in 1453?", "", nil)
	require.NoError(t, err)

	literal, err := content.CreateAnswer(ctx, d, u, q.ID, "I am 100% certain.")
	require.NoError(t, err)
	_, err = content.CreateAnswer(ctx, d, u, q.ID, "I am 100x certain.")
	require.NoError(t, err)

	got, err := Search(ctx, d, "100%")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, literal.ID, got[0].ID)

	underscore, err := content.CreateAnswer(ctx, d, u, q.ID, "see siege_notes for details")
	require.NoError(t, err)
	_, err = content.CreateAnswer(ctx, d, u, q.ID, "see siegeXnotes for details")
	require.NoError(t, err)

	got, err = Search(ctx, d, "siege_notes")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, underscore.ID, got[0].ID)
}

func TestSearchCap(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	u := newUser(t, d, "alice")
	q, err := content.CreateQuestion(ctx, d, u, "What happened in 1453?", "", nil)
	require.NoError(t, err)

	for i := 0; i < SearchLimit+5; i++ {
		_, err := content.CreateAnswer(ctx, d, u, q.ID, fmt.Sprintf("ottoman note %d", i))
		require.NoError(t, err)
	}

	got, err := Search(ctx, d, "ottoman")
	require.NoError(t, err)
	assert.Len(t, got, SearchLimit)
}

func TestPersonalPages(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	a := newUser(t, d, "alice")
	b := newUser(t, d, "bob")

	q, err := content.CreateQuestion(ctx, d, a, "What happened in 1453?", "", nil)
	require.NoError(t, err)
	ans, err := content.CreateAnswer(ctx, d, b, q.ID, "Constantinople fell.")
	require.NoError(t, err)
	require.NoError(t, content.Like(ctx, d, a, ans.ID))
	require.NoError(t, graph.FollowQuestion(ctx, d, b.ID, q.ID))

	questions, err := UserQuestions(ctx, d, a.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, questions.Items, 1)
	assert.Equal(t, q.ID, questions.Items[0].ID)

	answers, err := UserAnswers(ctx, d, b.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, answers.Items, 1)
	assert.Equal(t, ans.ID, answers.Items[0].ID)

	likes, err := UserLikes(ctx, d, a.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, likes.Items, 1)
	assert.Equal(t, ans.ID, likes.Items[0].AnswerID)

	followed, err := FollowedQuestions(ctx, d, b.ID, 1, DefaultPerPage)
	require.NoError(t, err)
	require.Len(t, followed.Items, 1)
	assert.Equal(t, q.ID, followed.Items[0].ID)
}
