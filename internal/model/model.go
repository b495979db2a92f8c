package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation is wrapped by every Validate failure.
var ErrValidation = errors.New("validation failed")

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAuthor Role = "author"
	RoleReader Role = "reader"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAuthor, RoleReader:
		return true
	}
	return false
}

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
)

func (s PostStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the schema-level required fields. Role defaults to reader.
func (u *User) Validate() error {
	if u.Role == "" {
		u.Role = RoleReader
	}
	switch {
	case strings.TrimSpace(u.Username) == "":
		return required("username")
	case strings.TrimSpace(u.Email) == "":
		return required("email")
	case u.PasswordHash == "":
		return required("password")
	case !u.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", ErrValidation, u.Role)
	}
	return nil
}

type BlogPost struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Author         string     `json:"author"`
	AuthorUsername string     `json:"author_username,omitempty"`
	Status         PostStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// OwnerID makes posts an owned resource for the authorization policy.
func (p BlogPost) OwnerID() string {
	return p.Author
}

// Validate runs on creation only; updates overwrite fields as given.
func (p *BlogPost) Validate() error {
	if p.Status == "" {
		p.Status = StatusDraft
	}
	switch {
	case strings.TrimSpace(p.Title) == "":
		return required("title")
	case strings.TrimSpace(p.Content) == "":
		return required("content")
	case p.Author == "":
		return required("author")
	case !p.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrValidation, p.Status)
	}
	return nil
}

type Comment struct {
	ID             string    `json:"id"`
	Post           string    `json:"post"`
	Author         string    `json:"author"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Content        string    `json:"content"`
	Approved       bool      `json:"approved"`
	CreatedAt      time.Time `json:"created_at"`
}

func (c *Comment) Validate() error {
	switch {
	case c.Post == "":
		return required("post")
	case c.Author == "":
		return required("author")
	case strings.TrimSpace(c.Content) == "":
		return required("content")
	}
	return nil
}

// PostCommentCount is a post annotated with the number of comments on it,
// approved or not.
type PostCommentCount struct {
	BlogPost
	CommentCount int `json:"commentCount"`
}

type AuthorPostCount struct {
	Author    string `json:"author"`
	PostCount int    `json:"postCount"`
}

func required(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}
