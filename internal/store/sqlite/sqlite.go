package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"

	sqlitedriver "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// busyTimeout is how long a connection waits on a locked database before
// failing with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs unicode_lower, a lower() that folds non-ASCII
// letters too. SQLite's built-in lower() only handles ASCII.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlitedriver.RegisterDeterministicScalarFunction("unicode_lower", 1,
			func(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return strings.ToLower(v), nil
				case []byte:
					return strings.ToLower(string(v)), nil
				default:
					return v, nil
				}
			})
	})
	return registerErr
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", path, sep, busyTimeout.Milliseconds())
}

func Open(path string) (*Store, error) {
	if err := registerFunctions(); err != nil {
		return nil, errors.Wrap(err, "register sqlite functions")
	}
	db, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; a single connection queues writers
	// in the pool instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
// There are no foreign keys: references between collections are advisory
// and deleting a post leaves its comments in place.
var migrations = []string{
	// Migration 1: Initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'reader',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	author_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	content TEXT NOT NULL,
	approved INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
`,
	// Migration 2: timestamps move from unix seconds to unix nanoseconds
	`
UPDATE users SET created_at = created_at * 1000000000;
UPDATE posts SET created_at = created_at * 1000000000, updated_at = updated_at * 1000000000;
UPDATE comments SET created_at = created_at * 1000000000;
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, role, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrDuplicateUser
		}
		return "", errors.Wrap(err, "insert user")
	}
	return user.ID, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, role, created_at
FROM users
WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, role, created_at
FROM users
WHERE username = ?
`, username)
	return scanUser(row)
}

func (s *Store) SetUserRole(ctx context.Context, username string, role model.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE username = ?`, string(role), username)
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
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO posts (id, title, content, author_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, post.ID, post.Title, post.Content, post.Author, string(post.Status), post.CreatedAt.UnixNano(), post.UpdatedAt.UnixNano())
	if err != nil {
		return "", errors.Wrap(err, "insert post")
	}
	return post.ID, nil
}

const postColumns = `p.id, p.title, p.content, p.author_id, p.status, p.created_at, p.updated_at, u.username`

func (s *Store) GetPost(ctx context.Context, id string) (model.BlogPost, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+postColumns+`
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
WHERE p.id = ?
LIMIT 1
`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, filter store.PostFilter) ([]model.BlogPost, error) {
	var where []string
	var args []any
	if filter.Title != "" {
		where = append(where, "instr(unicode_lower(p.title), unicode_lower(?)) > 0")
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
	query := `
SELECT ` + postColumns + `
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
`
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	query += "ORDER BY p.created_at DESC, p.rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	defer rows.Close()

	posts := []model.BlogPost{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *Store) UpdatePost(ctx context.Context, id string, update store.PostUpdate) (model.BlogPost, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET title = ?, content = ?, status = ?, updated_at = ? WHERE id = ?
`, update.Title, update.Content, string(update.Status), update.UpdatedAt.UnixNano(), id)
	if err != nil {
		return model.BlogPost{}, errors.Wrap(err, "update post")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return model.BlogPost{}, store.ErrNotFound
	}
	return s.GetPost(ctx, id)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
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
		comment.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO comments (id, post_id, author_id, content, approved, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, comment.ID, comment.Post, comment.Author, comment.Content, boolToInt(comment.Approved), comment.CreatedAt.UnixNano())
	if err != nil {
		return "", errors.Wrap(err, "insert comment")
	}
	return comment.ID, nil
}

const commentColumns = `c.id, c.post_id, c.author_id, c.content, c.approved, c.created_at, u.username`

func (s *Store) ApproveComment(ctx context.Context, id string) (model.Comment, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return model.Comment{}, errors.Wrap(err, "approve comment")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return model.Comment{}, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+commentColumns+`
FROM comments c
LEFT JOIN users u ON u.id = c.author_id
WHERE c.id = ?
`, id)
	return scanComment(row)
}

func (s *Store) ListApprovedComments(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+commentColumns+`
FROM comments c
LEFT JOIN users u ON u.id = c.author_id
WHERE c.post_id = ? AND c.approved = 1
ORDER BY c.created_at ASC, c.rowid ASC
`, postID)
	if err != nil {
		return nil, errors.Wrap(err, "list comments")
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) TopCommentedPosts(ctx context.Context, limit int) ([]model.PostCommentCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.title, p.content, p.author_id, p.status, p.created_at, p.updated_at, COUNT(c.id) AS comment_count
FROM posts p
LEFT JOIN comments c ON c.post_id = p.id
GROUP BY p.id
ORDER BY comment_count DESC, p.created_at DESC, p.rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "top commented")
	}
	defer rows.Close()

	result := []model.PostCommentCount{}
	for rows.Next() {
		var pc model.PostCommentCount
		var status string
		var created, updated int64
		if err := rows.Scan(&pc.ID, &pc.Title, &pc.Content, &pc.Author, &status, &created, &updated, &pc.CommentCount); err != nil {
			return nil, err
		}
		pc.Status = model.PostStatus(status)
		pc.CreatedAt = time.Unix(0, created)
		pc.UpdatedAt = time.Unix(0, updated)
		result = append(result, pc)
	}
	return result, rows.Err()
}

func (s *Store) PostCountsByAuthor(ctx context.Context) ([]model.AuthorPostCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT u.username, COUNT(p.id)
FROM posts p
JOIN users u ON u.id = p.author_id
GROUP BY p.author_id, u.username
`)
	if err != nil {
		return nil, errors.Wrap(err, "posts by author")
	}
	defer rows.Close()

	result := []model.AuthorPostCount{}
	for rows.Next() {
		var ac model.AuthorPostCount
		if err := rows.Scan(&ac.Author, &ac.PostCount); err != nil {
			return nil, err
		}
		result = append(result, ac)
	}
	return result, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var role string
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = time.Unix(0, created)
	return u, nil
}

func scanPost(row scanner) (model.BlogPost, error) {
	var p model.BlogPost
	var status string
	var created, updated int64
	var username sql.NullString
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Author, &status, &created, &updated, &username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BlogPost{}, store.ErrNotFound
		}
		return model.BlogPost{}, err
	}
	p.Status = model.PostStatus(status)
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	if username.Valid {
		p.AuthorUsername = username.String
	}
	return p, nil
}

func scanComment(row scanner) (model.Comment, error) {
	var c model.Comment
	var approved int
	var created int64
	var username sql.NullString
	if err := row.Scan(&c.ID, &c.Post, &c.Author, &c.Content, &approved, &created, &username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, store.ErrNotFound
		}
		return model.Comment{}, err
	}
	c.Approved = approved == 1
	c.CreatedAt = time.Unix(0, created)
	if username.Valid {
		c.AuthorUsername = username.String
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
