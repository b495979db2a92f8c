// Package memory is an in-process store.Store used for tests and for
// running the API without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	seq      int64
	users    map[string]model.User
	posts    map[string]entry[model.BlogPost]
	comments map[string]entry[model.Comment]
}

// entry remembers insertion order so listings are stable.
type entry[T any] struct {
	seq int64
	doc T
}

func New() *Store {
	return &Store{
		users:    make(map[string]model.User),
		posts:    make(map[string]entry[model.BlogPost]),
		comments: make(map[string]entry[model.Comment]),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return "", store.ErrDuplicateUser
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[user.ID] = *user
	return user.ID, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (s *Store) SetUserRole(ctx context.Context, username string, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Username == username {
			u.Role = role
			s.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CreatePost(ctx context.Context, post *model.BlogPost) (string, error) {
	if err := post.Validate(); err != nil {
		return "", err
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	doc := *post
	doc.AuthorUsername = ""
	s.posts[post.ID] = entry[model.BlogPost]{seq: s.seq, doc: doc}
	return post.ID, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.BlogPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.posts[id]
	if !ok {
		return model.BlogPost{}, store.ErrNotFound
	}
	return s.withPostAuthor(e.doc), nil
}

func (s *Store) ListPosts(ctx context.Context, filter store.PostFilter) ([]model.BlogPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	title := strings.ToLower(filter.Title)
	matched := make([]entry[model.BlogPost], 0, len(s.posts))
	for _, e := range s.posts {
		p := e.doc
		if title != "" && !strings.Contains(strings.ToLower(p.Title), title) {
			continue
		}
		if filter.Author != "" && p.Author != filter.Author {
			continue
		}
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		matched = append(matched, e)
	}
	sortNewestFirst(matched)
	posts := make([]model.BlogPost, 0, len(matched))
	for _, e := range matched {
		posts = append(posts, s.withPostAuthor(e.doc))
	}
	return posts, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, update store.PostUpdate) (model.BlogPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.posts[id]
	if !ok {
		return model.BlogPost{}, store.ErrNotFound
	}
	e.doc.Title = update.Title
	e.doc.Content = update.Content
	e.doc.Status = update.Status
	e.doc.UpdatedAt = update.UpdatedAt
	s.posts[id] = e
	return s.withPostAuthor(e.doc), nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.posts, id)
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	doc := *comment
	doc.AuthorUsername = ""
	s.comments[comment.ID] = entry[model.Comment]{seq: s.seq, doc: doc}
	return comment.ID, nil
}

func (s *Store) ApproveComment(ctx context.Context, id string) (model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.comments[id]
	if !ok {
		return model.Comment{}, store.ErrNotFound
	}
	e.doc.Approved = true
	s.comments[id] = e
	return s.withCommentAuthor(e.doc), nil
}

func (s *Store) ListApprovedComments(ctx context.Context, postID string) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]entry[model.Comment], 0)
	for _, e := range s.comments {
		if e.doc.Post == postID && e.doc.Approved {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	comments := make([]model.Comment, 0, len(matched))
	for _, e := range matched {
		comments = append(comments, s.withCommentAuthor(e.doc))
	}
	return comments, nil
}

func (s *Store) TopCommentedPosts(ctx context.Context, limit int) ([]model.PostCommentCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.posts))
	for _, e := range s.comments {
		if _, ok := s.posts[e.doc.Post]; ok {
			counts[e.doc.Post]++
		}
	}
	ordered := make([]entry[model.BlogPost], 0, len(s.posts))
	for _, e := range s.posts {
		ordered = append(ordered, e)
	}
	sortNewestFirst(ordered)
	sort.SliceStable(ordered, func(i, j int) bool {
		return counts[ordered[i].doc.ID] > counts[ordered[j].doc.ID]
	})
	if limit >= 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	result := make([]model.PostCommentCount, 0, len(ordered))
	for _, e := range ordered {
		result = append(result, model.PostCommentCount{BlogPost: e.doc, CommentCount: counts[e.doc.ID]})
	}
	return result, nil
}

func (s *Store) PostCountsByAuthor(ctx context.Context) ([]model.AuthorPostCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range s.posts {
		counts[e.doc.Author]++
	}
	result := make([]model.AuthorPostCount, 0, len(counts))
	for authorID, n := range counts {
		u, ok := s.users[authorID]
		if !ok {
			continue
		}
		result = append(result, model.AuthorPostCount{Author: u.Username, PostCount: n})
	}
	return result, nil
}

// withPostAuthor joins the author's username. Callers hold s.mu.
func (s *Store) withPostAuthor(p model.BlogPost) model.BlogPost {
	if u, ok := s.users[p.Author]; ok {
		p.AuthorUsername = u.Username
	}
	return p
}

func (s *Store) withCommentAuthor(c model.Comment) model.Comment {
	if u, ok := s.users[c.Author]; ok {
		c.AuthorUsername = u.Username
	}
	return c
}

func sortNewestFirst(posts []entry[model.BlogPost]) {
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.doc.CreatedAt.Equal(b.doc.CreatedAt) {
			return a.doc.CreatedAt.After(b.doc.CreatedAt)
		}
		return a.seq > b.seq
	})
}
