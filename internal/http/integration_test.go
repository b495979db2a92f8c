package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/client"
	"github.com/alphabot-ai/blogapi/internal/config"
	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
	"github.com/alphabot-ai/blogapi/internal/store/sqlite"
)

type testClient struct {
	server *httptest.Server
	store  store.Store
	client *http.Client
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	cfg := config.Config{
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		TokenHeader: "x-auth-token",
		CORSOrigins: []string{"*"},
	}
	dsnName := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName))
	require.NoError(t, err)
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, bcrypt.MinCost)
	server := httptest.NewServer(NewServer(st, authSvc, cfg, zerolog.Nop()))
	t.Cleanup(func() {
		server.Close()
		_ = st.Close()
	})
	return &testClient{server: server, store: st, client: server.Client()}
}

type response struct {
	status int
	body   []byte
}

func (r response) decode(t *testing.T, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dest), string(r.body))
}

func (r response) errorMessage(t *testing.T) string {
	t.Helper()
	var payload map[string]string
	r.decode(t, &payload)
	return payload["error"]
}

func (tc *testClient) do(t *testing.T, method, path, token, body string) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}
	resp, err := tc.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: raw}
}

// login registers username and returns its token and user id.
func (tc *testClient) login(t *testing.T, username string) (string, string) {
	t.Helper()
	c, err := client.NewTestHelper(tc.server.URL).RegisterAndLogin(context.Background(), username)
	require.NoError(t, err)
	user, err := tc.store.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return c.Token, user.ID
}

func (tc *testClient) loginAdmin(t *testing.T, username string) string {
	t.Helper()
	tc.login(t, username)
	require.NoError(t, tc.store.SetUserRole(context.Background(), username, model.RoleAdmin))
	helper := client.NewTestHelper(tc.server.URL)
	token, err := client.New(tc.server.URL).Login(context.Background(), username, helper.Password)
	require.NoError(t, err)
	return token
}

func (tc *testClient) createPost(t *testing.T, token, title, status string) model.BlogPost {
	t.Helper()
	body := fmt.Sprintf(`{"title":%q,"content":"content of %s","status":%q}`, title, title, status)
	resp := tc.do(t, http.MethodPost, "/api/blogposts", token, body)
	require.Equal(t, http.StatusCreated, resp.status, string(resp.body))
	var post model.BlogPost
	resp.decode(t, &post)
	return post
}

func TestRegister(t *testing.T) {
	tc := newTestClient(t)

	resp := tc.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"amy","email":"amy@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusCreated, resp.status)
	var ok map[string]string
	resp.decode(t, &ok)
	assert.Equal(t, "User registered successfully", ok["message"])

	user, err := tc.store.GetUserByUsername(context.Background(), "amy")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", user.PasswordHash)
	assert.Equal(t, model.RoleReader, user.Role)

	failures := []string{
		`{"username":"amy","email":"amy2@example.com","password":"pw"}`,
		`{"username":"amy2","email":"amy@example.com","password":"pw"}`,
		`{"username":"bea","email":"bea@example.com"}`,
		`{"username":"bea","password":"pw"}`,
		`{not json`,
	}
	for _, body := range failures {
		resp := tc.do(t, http.MethodPost, "/api/auth/register", "", body)
		assert.Equal(t, http.StatusInternalServerError, resp.status, body)
		assert.Equal(t, "User registration failed", resp.errorMessage(t), body)
	}
}

func TestRegisterIgnoresRole(t *testing.T) {
	tc := newTestClient(t)
	resp := tc.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"eve","email":"eve@example.com","password":"pw","role":"admin"}`)
	require.Equal(t, http.StatusCreated, resp.status)
	user, err := tc.store.GetUserByUsername(context.Background(), "eve")
	require.NoError(t, err)
	assert.Equal(t, model.RoleReader, user.Role)
}

func TestLogin(t *testing.T) {
	tc := newTestClient(t)
	tc.login(t, "cat")

	resp := tc.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"cat","password":"password123"}`)
	require.Equal(t, http.StatusOK, resp.status)
	var ok map[string]string
	resp.decode(t, &ok)
	assert.NotEmpty(t, ok["token"])

	wrong := tc.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"cat","password":"nope"}`)
	unknown := tc.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"dog","password":"password123"}`)
	assert.Equal(t, http.StatusBadRequest, wrong.status)
	assert.Equal(t, http.StatusBadRequest, unknown.status)
	assert.Equal(t, "Invalid credentials", wrong.errorMessage(t))
	assert.Equal(t, string(wrong.body), string(unknown.body))
}

func TestPostCRUD(t *testing.T) {
	tc := newTestClient(t)
	token, userID := tc.login(t, "dan")

	post := tc.createPost(t, token, "First", "")
	assert.Equal(t, userID, post.Author)
	assert.Equal(t, model.StatusDraft, post.Status)

	resp := tc.do(t, http.MethodGet, "/api/blogposts/"+post.ID, "", "")
	require.Equal(t, http.StatusOK, resp.status)
	var got model.BlogPost
	resp.decode(t, &got)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "dan", got.AuthorUsername)

	resp = tc.do(t, http.MethodPut, "/api/blogposts/"+post.ID, token, `{"title":"Renamed","status":"published"}`)
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))
	var updated model.BlogPost
	resp.decode(t, &updated)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Empty(t, updated.Content)
	assert.Equal(t, model.StatusPublished, updated.Status)
	assert.Equal(t, userID, updated.Author)

	resp = tc.do(t, http.MethodDelete, "/api/blogposts/"+post.ID, token, "")
	require.Equal(t, http.StatusOK, resp.status)
	var deleted map[string]string
	resp.decode(t, &deleted)
	assert.Equal(t, "Post deleted successfully", deleted["message"])

	resp = tc.do(t, http.MethodGet, "/api/blogposts/"+post.ID, "", "")
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "Post not found", resp.errorMessage(t))
}

func TestCreatePostFailures(t *testing.T) {
	tc := newTestClient(t)
	token, userID := tc.login(t, "fin")

	for _, body := range []string{`{"content":"no title"}`, `{"title":"t","content":"c","status":"archived"}`, `[`} {
		resp := tc.do(t, http.MethodPost, "/api/blogposts", token, body)
		assert.Equal(t, http.StatusInternalServerError, resp.status, body)
		assert.Equal(t, "Failed to create post", resp.errorMessage(t))
	}

	resp := tc.do(t, http.MethodPost, "/api/blogposts", token, `{"title":"t","content":"c","author":"someone-else"}`)
	require.Equal(t, http.StatusCreated, resp.status)
	var post model.BlogPost
	resp.decode(t, &post)
	assert.Equal(t, userID, post.Author)
}

func TestOwnership(t *testing.T) {
	tc := newTestClient(t)
	ownerToken, _ := tc.login(t, "gil")
	otherToken, _ := tc.login(t, "hugo")
	adminToken := tc.loginAdmin(t, "root")
	post := tc.createPost(t, ownerToken, "Mine", "draft")

	for _, token := range []string{otherToken, adminToken} {
		resp := tc.do(t, http.MethodPut, "/api/blogposts/"+post.ID, token, `{"title":"x","content":"y"}`)
		assert.Equal(t, http.StatusForbidden, resp.status)
		assert.Equal(t, "Not authorized", resp.errorMessage(t))

		resp = tc.do(t, http.MethodDelete, "/api/blogposts/"+post.ID, token, "")
		assert.Equal(t, http.StatusForbidden, resp.status)
	}

	resp := tc.do(t, http.MethodPut, "/api/blogposts/does-not-exist", ownerToken, `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "Post not found", resp.errorMessage(t))
	resp = tc.do(t, http.MethodDelete, "/api/blogposts/does-not-exist", ownerToken, "")
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = tc.do(t, http.MethodGet, "/api/blogposts/"+post.ID, "", "")
	var got model.BlogPost
	resp.decode(t, &got)
	assert.Equal(t, "Mine", got.Title)
}

func TestListPostsFilters(t *testing.T) {
	tc := newTestClient(t)
	ivyToken, ivyID := tc.login(t, "ivy")
	jayToken, _ := tc.login(t, "jay")
	tc.createPost(t, ivyToken, "Learning Go", "draft")
	tc.createPost(t, ivyToken, "Shipping", "published")
	tc.createPost(t, jayToken, "go fast", "published")

	list := func(query string) []model.BlogPost {
		resp := tc.do(t, http.MethodGet, "/api/blogposts"+query, "", "")
		require.Equal(t, http.StatusOK, resp.status)
		var posts []model.BlogPost
		resp.decode(t, &posts)
		return posts
	}

	assert.Len(t, list(""), 3)
	assert.Len(t, list("?title=GO"), 2)
	assert.Len(t, list("?author="+ivyID), 2)
	assert.Len(t, list("?status=published"), 2)
	assert.Len(t, list("?title=go&status=published&author="+ivyID), 0)
	assert.Len(t, list("?title=&status="), 3)

	for _, p := range list("?author=" + ivyID) {
		assert.Equal(t, "ivy", p.AuthorUsername)
	}
}

func TestCommentModeration(t *testing.T) {
	tc := newTestClient(t)
	token, userID := tc.login(t, "kai")
	adminToken := tc.loginAdmin(t, "mod")
	post := tc.createPost(t, token, "Discuss", "published")

	resp := tc.do(t, http.MethodPost, "/api/comments", "", fmt.Sprintf(`{"post":%q,"content":"hi"}`, post.ID))
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = tc.do(t, http.MethodPost, "/api/comments", token, fmt.Sprintf(`{"post":%q,"content":"hi"}`, post.ID))
	require.Equal(t, http.StatusCreated, resp.status)
	var comment model.Comment
	resp.decode(t, &comment)
	assert.False(t, comment.Approved)
	assert.Equal(t, userID, comment.Author)

	resp = tc.do(t, http.MethodPost, "/api/comments", token, fmt.Sprintf(`{"post":%q}`, post.ID))
	assert.Equal(t, http.StatusInternalServerError, resp.status)
	assert.Equal(t, "Failed to add comment", resp.errorMessage(t))

	listComments := func() []model.Comment {
		resp := tc.do(t, http.MethodGet, "/api/comments/post/"+post.ID, "", "")
		require.Equal(t, http.StatusOK, resp.status)
		var comments []model.Comment
		resp.decode(t, &comments)
		return comments
	}
	assert.Empty(t, listComments())

	resp = tc.do(t, http.MethodPut, "/api/comments/"+comment.ID+"/approve", token, "")
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "Not authorized", resp.errorMessage(t))

	resp = tc.do(t, http.MethodPut, "/api/comments/missing/approve", token, "")
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = tc.do(t, http.MethodPut, "/api/comments/missing/approve", adminToken, "")
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "Comment not found", resp.errorMessage(t))

	resp = tc.do(t, http.MethodPut, "/api/comments/"+comment.ID+"/approve", adminToken, "")
	require.Equal(t, http.StatusOK, resp.status)
	var approved model.Comment
	resp.decode(t, &approved)
	assert.True(t, approved.Approved)

	comments := listComments()
	require.Len(t, comments, 1)
	assert.Equal(t, "kai", comments[0].AuthorUsername)
}

func TestCommentsOutliveTheirPost(t *testing.T) {
	tc := newTestClient(t)
	token, _ := tc.login(t, "lea")
	adminToken := tc.loginAdmin(t, "boss")
	post := tc.createPost(t, token, "Short lived", "draft")

	resp := tc.do(t, http.MethodPost, "/api/comments", token, fmt.Sprintf(`{"post":%q,"content":"first"}`, post.ID))
	require.Equal(t, http.StatusCreated, resp.status)
	var comment model.Comment
	resp.decode(t, &comment)
	resp = tc.do(t, http.MethodPut, "/api/comments/"+comment.ID+"/approve", adminToken, "")
	require.Equal(t, http.StatusOK, resp.status)

	resp = tc.do(t, http.MethodDelete, "/api/blogposts/"+post.ID, token, "")
	require.Equal(t, http.StatusOK, resp.status)

	resp = tc.do(t, http.MethodGet, "/api/comments/post/"+post.ID, "", "")
	require.Equal(t, http.StatusOK, resp.status)
	var comments []model.Comment
	resp.decode(t, &comments)
	assert.Len(t, comments, 1)

	resp = tc.do(t, http.MethodPost, "/api/comments", token, `{"post":"never-existed","content":"orphan"}`)
	assert.Equal(t, http.StatusCreated, resp.status)
}

func TestReports(t *testing.T) {
	tc := newTestClient(t)
	monToken, _ := tc.login(t, "mon")
	nedToken, _ := tc.login(t, "ned")

	var posts []model.BlogPost
	for i := 0; i < 6; i++ {
		token := monToken
		if i%3 == 0 {
			token = nedToken
		}
		posts = append(posts, tc.createPost(t, token, fmt.Sprintf("post %d", i), "published"))
	}
	for i, post := range posts {
		for j := 0; j < i; j++ {
			resp := tc.do(t, http.MethodPost, "/api/comments", monToken, fmt.Sprintf(`{"post":%q,"content":"c"}`, post.ID))
			require.Equal(t, http.StatusCreated, resp.status)
		}
	}

	resp := tc.do(t, http.MethodGet, "/api/blogposts/top-commented", "", "")
	require.Equal(t, http.StatusOK, resp.status)
	var top []model.PostCommentCount
	resp.decode(t, &top)
	require.Len(t, top, 5)
	for i, pc := range top {
		assert.Equal(t, 5-i, pc.CommentCount)
		assert.Equal(t, posts[5-i].ID, pc.ID)
	}
	var raw []map[string]any
	resp.decode(t, &raw)
	assert.Contains(t, raw[0], "commentCount")

	resp = tc.do(t, http.MethodGet, "/api/blogposts/posts-by-author", "", "")
	require.Equal(t, http.StatusOK, resp.status)
	var counts []model.AuthorPostCount
	resp.decode(t, &counts)
	assert.ElementsMatch(t, []model.AuthorPostCount{
		{Author: "mon", PostCount: 4},
		{Author: "ned", PostCount: 2},
	}, counts)
}

func TestExpiredToken(t *testing.T) {
	tc := newTestClient(t)
	tc.login(t, "old")
	user, err := tc.store.GetUserByUsername(context.Background(), "old")
	require.NoError(t, err)

	expired, err := auth.NewService(tc.store, "test-secret", -time.Minute, bcrypt.MinCost).IssueToken(user)
	require.NoError(t, err)
	resp := tc.do(t, http.MethodPost, "/api/blogposts", expired, `{"title":"t","content":"c"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "Token is not valid", resp.errorMessage(t))
}
