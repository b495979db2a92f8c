// Package postgres implements store.Store on PostgreSQL with sqlx.
// Schema changes are applied with golang-migrate from the embedded
// migrations directory.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

func Open(ctx context.Context, url string) (*Store, error) {
	if err := migrateUp(url); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

func migrateUp(url string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "load migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return errors.Wrap(err, "init migrations")
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) model() model.User {
	return model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         model.Role(r.Role),
		CreatedAt:    r.CreatedAt,
	}
}

type postRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Content      string         `db:"content"`
	AuthorID     string         `db:"author_id"`
	Status       string         `db:"status"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	Username     sql.NullString `db:"username"`
	CommentCount int            `db:"comment_count"`
}

func (r postRow) model() model.BlogPost {
	return model.BlogPost{
		ID:             r.ID,
		Title:          r.Title,
		Content:        r.Content,
		Author:         r.AuthorID,
		AuthorUsername: r.Username.String,
		Status:         model.PostStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type commentRow struct {
	ID        string         `db:"id"`
	PostID    string         `db:"post_id"`
	AuthorID  string         `db:"author_id"`
	Content   string         `db:"content"`
	Approved  bool           `db:"approved"`
	CreatedAt time.Time      `db:"created_at"`
	Username  sql.NullString `db:"username"`
}

func (r commentRow) model() model.Comment {
	return model.Comment{
		ID:             r.ID,
		Post:           r.PostID,
		Author:         r.AuthorID,
		AuthorUsername: r.Username.String,
		Content:        r.Content,
		Approved:       r.Approved,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrDuplicateUser
		}
		return "", errors.Wrap(err, "insert user")
	}
	return user.ID, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, role, created_at FROM users WHERE username = $1`, username)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (model.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, errors.Wrap(err, "get user")
	}
	return row.model(), nil
}

func (s *Store) SetUserRole(ctx context.Context, username string, role model.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE username = $2`, string(role), username)
	if err != nil {
		return errors.Wrap(err, "update role")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePost(ctx context.Context, post *model.BlogPost) (string, error) {
	if err := post.Validate(); err != nil {
		return "", err
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO posts (id, title, content, author_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, post.ID, post.Title, post.Content, post.Author, string(post.Status), post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return "", errors.Wrap(err, "insert post")
	}
	return post.ID, nil
}

const selectPosts = `
SELECT p.id, p.title, p.content, p.author_id, p.status, p.created_at, p.updated_at, u.username
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
`

func (s *Store) GetPost(ctx context.Context, id string) (model.BlogPost, error) {
	var row postRow
	if err := s.db.GetContext(ctx, &row, selectPosts+`WHERE p.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BlogPost{}, store.ErrNotFound
		}
		return model.BlogPost{}, errors.Wrap(err, "get post")
	}
	return row.model(), nil
}

func (s *Store) ListPosts(ctx context.Context, filter store.PostFilter) ([]model.BlogPost, error) {
	var where []string
	var args []any
	if filter.Title != "" {
		where = append(where, "strpos(lower(p.title), lower(?)) > 0")
		args = append(args, filter.Title)
	}
	if filter.Author != "" {
		where = append(where, "p.author_id = ?")
		args = append(args, filter.Author)
	}
	if filter.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, filter.Status)
	}
	query := selectPosts
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	query += "ORDER BY p.created_at DESC, p.seq DESC"

	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	posts := make([]model.BlogPost, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.model())
	}
	return posts, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, update store.PostUpdate) (model.BlogPost, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET title = $1, content = $2, status = $3, updated_at = $4 WHERE id = $5
`, update.Title, update.Content, string(update.Status), update.UpdatedAt, id)
	if err != nil {
		return model.BlogPost{}, errors.Wrap(err, "update post")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return model.BlogPost{}, store.ErrNotFound
	}
	return s.GetPost(ctx, id)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete post")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) (string, error) {
	if err := comment.Validate(); err != nil {
		return "", err
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO comments (id, post_id, author_id, content, approved, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, comment.ID, comment.Post, comment.Author, comment.Content, comment.Approved, comment.CreatedAt)
	if err != nil {
		return "", errors.Wrap(err, "insert comment")
	}
	return comment.ID, nil
}

const selectComments = `
SELECT c.id, c.post_id, c.author_id, c.content, c.approved, c.created_at, u.username
FROM comments c
LEFT JOIN users u ON u.id = c.author_id
`

func (s *Store) ApproveComment(ctx context.Context, id string) (model.Comment, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET approved = TRUE WHERE id = $1`, id)
	if err != nil {
		return model.Comment{}, errors.Wrap(err, "approve comment")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return model.Comment{}, store.ErrNotFound
	}
	var row commentRow
	if err := s.db.GetContext(ctx, &row, selectComments+`WHERE c.id = $1`, id); err != nil {
		return model.Comment{}, errors.Wrap(err, "get comment")
	}
	return row.model(), nil
}

func (s *Store) ListApprovedComments(ctx context.Context, postID string) ([]model.Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows, selectComments+`
WHERE c.post_id = $1 AND c.approved
ORDER BY c.created_at ASC, c.seq ASC
`, postID)
	if err != nil {
		return nil, errors.Wrap(err, "list comments")
	}
	comments := make([]model.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, r.model())
	}
	return comments, nil
}

func (s *Store) TopCommentedPosts(ctx context.Context, limit int) ([]model.PostCommentCount, error) {
	var rows []postRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT p.id, p.title, p.content, p.author_id, p.status, p.created_at, p.updated_at, COUNT(c.id) AS comment_count
FROM posts p
LEFT JOIN comments c ON c.post_id = p.id
GROUP BY p.id
ORDER BY comment_count DESC, p.created_at DESC, p.seq DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "top commented")
	}
	result := make([]model.PostCommentCount, 0, len(rows))
	for _, r := range rows {
		result = append(result, model.PostCommentCount{BlogPost: r.model(), CommentCount: r.CommentCount})
	}
	return result, nil
}

func (s *Store) PostCountsByAuthor(ctx context.Context) ([]model.AuthorPostCount, error) {
	var rows []struct {
		Username  string `db:"username"`
		PostCount int    `db:"post_count"`
	}
	err := s.db.SelectContext(ctx, &rows, `
SELECT u.username, COUNT(p.id) AS post_count
FROM posts p
JOIN users u ON u.id = p.author_id
GROUP BY p.author_id, u.username
`)
	if err != nil {
		return nil, errors.Wrap(err, "posts by author")
	}
	result := make([]model.AuthorPostCount, 0, len(rows))
	for _, r := range rows {
		result = append(result, model.AuthorPostCount{Author: r.Username, PostCount: r.PostCount})
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
