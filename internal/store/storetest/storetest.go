// Package storetest holds behaviour checks shared by every store.Store
// backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
)

// Factory returns an empty store. Run closes it when the subtest ends.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"UserLifecycle", testUserLifecycle},
		{"DuplicateUser", testDuplicateUser},
		{"UserValidation", testUserValidation},
		{"PostLifecycle", testPostLifecycle},
		{"PostValidation", testPostValidation},
		{"ListPostsFilters", testListPostsFilters},
		{"CommentModeration", testCommentModeration},
		{"DeleteLeavesComments", testDeleteLeavesComments},
		{"TopCommented", testTopCommented},
		{"PostCountsByAuthor", testPostCountsByAuthor},
		{"ConcurrentComments", testConcurrentComments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

func createUser(t *testing.T, st store.Store, username string) model.User {
	t.Helper()
	u := model.User{Username: username, Email: username + "@example.com", PasswordHash: "hash-" + username}
	id, err := st.CreateUser(context.Background(), &u)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return u
}

func createPost(t *testing.T, st store.Store, author model.User, title string, status model.PostStatus) model.BlogPost {
	t.Helper()
	p := model.BlogPost{Title: title, Content: "body of " + title, Author: author.ID, Status: status}
	_, err := st.CreatePost(context.Background(), &p)
	require.NoError(t, err)
	return p
}

func createComment(t *testing.T, st store.Store, post string, author model.User) model.Comment {
	t.Helper()
	c := model.Comment{Post: post, Author: author.ID, Content: "nice"}
	_, err := st.CreateComment(context.Background(), &c)
	require.NoError(t, err)
	return c
}

func testUserLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := createUser(t, st, "alice")
	assert.Equal(t, model.RoleReader, u.Role)

	got, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash-alice", got.PasswordHash)
	assert.Equal(t, model.RoleReader, got.Role)

	byID, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	require.NoError(t, st.SetUserRole(ctx, "alice", model.RoleAdmin))
	got, err = st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	_, err = st.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, st.SetUserRole(ctx, "nobody", model.RoleAdmin), store.ErrNotFound)
}

func testDuplicateUser(t *testing.T, st store.Store) {
	ctx := context.Background()
	createUser(t, st, "bob")

	sameName := model.User{Username: "bob", Email: "other@example.com", PasswordHash: "x"}
	_, err := st.CreateUser(ctx, &sameName)
	assert.ErrorIs(t, err, store.ErrDuplicateUser)

	sameEmail := model.User{Username: "bobby", Email: "bob@example.com", PasswordHash: "x"}
	_, err = st.CreateUser(ctx, &sameEmail)
	assert.ErrorIs(t, err, store.ErrDuplicateUser)
}

func testUserValidation(t *testing.T, st store.Store) {
	_, err := st.CreateUser(context.Background(), &model.User{Username: "carol", PasswordHash: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func testPostLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	author := createUser(t, st, "dave")
	p := model.BlogPost{Title: "Hello", Content: "World", Author: author.ID}
	id, err := st.CreatePost(ctx, &p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := st.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt), "created_at changed on read: %v != %v", p.CreatedAt, got.CreatedAt)
	assert.Equal(t, author.ID, got.Author)
	assert.Equal(t, "dave", got.AuthorUsername)

	updatedAt := time.Now().Add(time.Hour)
	updated, err := st.UpdatePost(ctx, id, store.PostUpdate{Title: "Hi", Content: "", Status: model.StatusPublished, UpdatedAt: updatedAt})
	require.NoError(t, err)
	assert.Equal(t, "Hi", updated.Title)
	assert.Empty(t, updated.Content)
	assert.Equal(t, model.StatusPublished, updated.Status)
	assert.Equal(t, author.ID, updated.Author)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	require.NoError(t, st.DeletePost(ctx, id))
	_, err = st.GetPost(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, st.DeletePost(ctx, id), store.ErrNotFound)
	_, err = st.UpdatePost(ctx, id, store.PostUpdate{UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPostValidation(t *testing.T, st store.Store) {
	ctx := context.Background()
	author := createUser(t, st, "erin")
	_, err := st.CreatePost(ctx, &model.BlogPost{Content: "no title", Author: author.ID})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = st.CreatePost(ctx, &model.BlogPost{Title: "t", Content: "c", Author: author.ID, Status: "archived"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func testListPostsFilters(t *testing.T, st store.Store) {
	ctx := context.Background()
	ann := createUser(t, st, "ann")
	ben := createUser(t, st, "ben")
	createPost(t, st, ann, "Go Concurrency", model.StatusDraft)
	createPost(t, st, ann, "Rust ownership", model.StatusPublished)
	createPost(t, st, ben, "Why GOPATH went away", model.StatusPublished)

	all, err := st.ListPosts(ctx, store.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byTitle, err := st.ListPosts(ctx, store.PostFilter{Title: "go"})
	require.NoError(t, err)
	assert.Len(t, byTitle, 2)

	byAuthor, err := st.ListPosts(ctx, store.PostFilter{Author: ann.ID})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)
	for _, p := range byAuthor {
		assert.Equal(t, "ann", p.AuthorUsername)
	}

	combined, err := st.ListPosts(ctx, store.PostFilter{Title: "GO", Status: "published"})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "Why GOPATH went away", combined[0].Title)

	none, err := st.ListPosts(ctx, store.PostFilter{Author: ben.ID, Status: "draft"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	createPost(t, st, ben, "Élan vital", model.StatusPublished)
	for _, q := range []string{"élan", "ÉLAN", "Élan"} {
		accented, err := st.ListPosts(ctx, store.PostFilter{Title: q})
		require.NoError(t, err)
		require.Len(t, accented, 1, "title filter %q", q)
		assert.Equal(t, "Élan vital", accented[0].Title)
	}
}

func testCommentModeration(t *testing.T, st store.Store) {
	ctx := context.Background()
	author := createUser(t, st, "fay")
	post := createPost(t, st, author, "Moderated", model.StatusPublished)
	c := createComment(t, st, post.ID, author)
	assert.False(t, c.Approved)

	listed, err := st.ListApprovedComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	approved, err := st.ApproveComment(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	assert.Equal(t, "fay", approved.AuthorUsername)

	listed, err = st.ListApprovedComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, c.ID, listed[0].ID)
	assert.Equal(t, "fay", listed[0].AuthorUsername)

	_, err = st.ApproveComment(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.CreateComment(ctx, &model.Comment{Post: post.ID, Author: author.ID})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func testDeleteLeavesComments(t *testing.T, st store.Store) {
	ctx := context.Background()
	author := createUser(t, st, "gus")
	post := createPost(t, st, author, "Doomed", model.StatusDraft)
	c := createComment(t, st, post.ID, author)
	_, err := st.ApproveComment(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, st.DeletePost(ctx, post.ID))

	orphans, err := st.ListApprovedComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
}

func testTopCommented(t *testing.T, st store.Store) {
	ctx := context.Background()
	author := createUser(t, st, "hal")
	counts := []int{2, 0, 5, 1, 3, 4}
	ids := make([]string, len(counts))
	for i, n := range counts {
		p := createPost(t, st, author, "post", model.StatusPublished)
		ids[i] = p.ID
		for j := 0; j < n; j++ {
			c := createComment(t, st, p.ID, author)
			if j%2 == 0 {
				_, err := st.ApproveComment(ctx, c.ID)
				require.NoError(t, err)
			}
		}
	}
	createComment(t, st, "no-such-post", author)

	top, err := st.TopCommentedPosts(ctx, store.TopCommentedLimit)
	require.NoError(t, err)
	require.Len(t, top, 5)
	want := []int{5, 4, 3, 2, 1}
	for i, pc := range top {
		assert.Equal(t, want[i], pc.CommentCount)
	}
	assert.Equal(t, ids[2], top[0].ID)
	assert.Equal(t, "post", top[0].Title)
}

func testPostCountsByAuthor(t *testing.T, st store.Store) {
	ctx := context.Background()
	ivy := createUser(t, st, "ivy")
	jon := createUser(t, st, "jon")
	createPost(t, st, ivy, "a", model.StatusDraft)
	createPost(t, st, ivy, "b", model.StatusDraft)
	createPost(t, st, jon, "c", model.StatusDraft)
	ghost := model.BlogPost{Title: "d", Content: "e", Author: "deleted-user"}
	_, err := st.CreatePost(ctx, &ghost)
	require.NoError(t, err)

	counts, err := st.PostCountsByAuthor(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.AuthorPostCount{
		{Author: "ivy", PostCount: 2},
		{Author: "jon", PostCount: 1},
	}, counts)
}

func testConcurrentComments(t *testing.T, st store.Store) {
	ctx := context.Background()
	author := createUser(t, st, "kit")
	post := createPost(t, st, author, "busy", model.StatusPublished)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := model.Comment{Post: post.ID, Author: author.ID, Content: "hi"}
			if _, err := st.CreateComment(ctx, &c); !assert.NoError(t, err) {
				return
			}
			_, err := st.ApproveComment(ctx, c.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	comments, err := st.ListApprovedComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, comments, writers)

	top, err := st.TopCommentedPosts(ctx, store.TopCommentedLimit)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, writers, top[0].CommentCount)
}
