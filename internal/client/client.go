// Package client provides a Go client for the blog API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alphabot-ai/blogapi/internal/model"
)

const DefaultTokenHeader = "x-auth-token"

// Client is a blog API client. Login stores the token, which is then sent
// on every request.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	Token       string
	TokenHeader string
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		TokenHeader: DefaultTokenHeader,
	}
}

type PostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status,omitempty"`
}

type PostFilter struct {
	Title  string
	Author string
	Status string
}

func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body := map[string]string{"username": username, "email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/register", body, nil)
}

// Login authenticates and keeps the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &result); err != nil {
		return "", err
	}
	c.Token = result.Token
	return result.Token, nil
}

func (c *Client) CreatePost(ctx context.Context, in PostInput) (model.BlogPost, error) {
	var post model.BlogPost
	err := c.do(ctx, http.MethodPost, "/api/blogposts", in, &post)
	return post, err
}

func (c *Client) ListPosts(ctx context.Context, filter PostFilter) ([]model.BlogPost, error) {
	q := url.Values{}
	if filter.Title != "" {
		q.Set("title", filter.Title)
	}
	if filter.Author != "" {
		q.Set("author", filter.Author)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	path := "/api/blogposts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var posts []model.BlogPost
	err := c.do(ctx, http.MethodGet, path, nil, &posts)
	return posts, err
}

func (c *Client) GetPost(ctx context.Context, id string) (model.BlogPost, error) {
	var post model.BlogPost
	err := c.do(ctx, http.MethodGet, "/api/blogposts/"+url.PathEscape(id), nil, &post)
	return post, err
}

// UpdatePost replaces title, content and status. Empty fields are sent and
// stored as empty.
func (c *Client) UpdatePost(ctx context.Context, id string, in PostInput) (model.BlogPost, error) {
	var post model.BlogPost
	body := map[string]string{"title": in.Title, "content": in.Content, "status": in.Status}
	err := c.do(ctx, http.MethodPut, "/api/blogposts/"+url.PathEscape(id), body, &post)
	return post, err
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/blogposts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateComment(ctx context.Context, postID, content string) (model.Comment, error) {
	var comment model.Comment
	body := map[string]string{"post": postID, "content": content}
	err := c.do(ctx, http.MethodPost, "/api/comments", body, &comment)
	return comment, err
}

func (c *Client) ApproveComment(ctx context.Context, id string) (model.Comment, error) {
	var comment model.Comment
	err := c.do(ctx, http.MethodPut, "/api/comments/"+url.PathEscape(id)+"/approve", nil, &comment)
	return comment, err
}

func (c *Client) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	var comments []model.Comment
	err := c.do(ctx, http.MethodGet, "/api/comments/post/"+url.PathEscape(postID), nil, &comments)
	return comments, err
}

func (c *Client) TopCommented(ctx context.Context) ([]model.PostCommentCount, error) {
	var posts []model.PostCommentCount
	err := c.do(ctx, http.MethodGet, "/api/blogposts/top-commented", nil, &posts)
	return posts, err
}

func (c *Client) PostsByAuthor(ctx context.Context) ([]model.AuthorPostCount, error) {
	var counts []model.AuthorPostCount
	err := c.do(ctx, http.MethodGet, "/api/blogposts/posts-by-author", nil, &counts)
	return counts, err
}

// do sends body as JSON and decodes a 2xx response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		header := c.TokenHeader
		if header == "" {
			header = DefaultTokenHeader
		}
		req.Header.Set(header, c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error string `json:"error"`
		}
		msg := string(raw)
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TestHelper creates logged-in clients against a running server.
type TestHelper struct {
	BaseURL  string
	Password string
}

func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL, Password: "password123"}
}

// RegisterAndLogin registers username with a derived email and returns a
// client holding its token.
func (h *TestHelper) RegisterAndLogin(ctx context.Context, username string) (*Client, error) {
	c := New(h.BaseURL)
	if err := c.Register(ctx, username, username+"@example.com", h.Password); err != nil {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	if _, err := c.Login(ctx, username, h.Password); err != nil {
		return nil, fmt.Errorf("login %s: %w", username, err)
	}
	return c, nil
}
