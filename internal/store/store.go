package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/blogapi/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateUser = errors.New("duplicate username or email")
)

// TopCommentedLimit is the number of posts in the top-commented report.
const TopCommentedLimit = 5

// PostFilter narrows ListPosts. Empty fields are not applied.
type PostFilter struct {
	Title  string
	Author string
	Status string
}

// PostUpdate carries the fields an update overwrites.
type PostUpdate struct {
	Title     string
	Content   string
	Status    model.PostStatus
	UpdatedAt time.Time
}

type Store interface {
	UserStore
	PostStore
	CommentStore
	ReportStore
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (string, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	SetUserRole(ctx context.Context, username string, role model.Role) error
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.BlogPost) (string, error)
	GetPost(ctx context.Context, id string) (model.BlogPost, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]model.BlogPost, error)
	UpdatePost(ctx context.Context, id string, update PostUpdate) (model.BlogPost, error)
	DeletePost(ctx context.Context, id string) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (string, error)
	ApproveComment(ctx context.Context, id string) (model.Comment, error)
	ListApprovedComments(ctx context.Context, postID string) ([]model.Comment, error)
}

type ReportStore interface {
	TopCommentedPosts(ctx context.Context, limit int) ([]model.PostCommentCount, error)
	PostCountsByAuthor(ctx context.Context) ([]model.AuthorPostCount, error)
}
