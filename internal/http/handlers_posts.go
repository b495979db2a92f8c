package httpapp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
)

type postInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	const msg = "Failed to create post"
	var req postInput
	if err := readJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	post := model.BlogPost{
		Title:   req.Title,
		Content: req.Content,
		Status:  model.PostStatus(req.Status),
		Author:  identity(r).UserID,
	}
	if _, err := s.store.CreatePost(r.Context(), &post); err != nil {
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := s.store.ListPosts(r.Context(), store.PostFilter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Status: q.Get("status"),
	})
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Failed to fetch posts", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		fail(w, r, http.StatusInternalServerError, "Failed to fetch post", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// loadOwnedPost fetches the post named in the path and checks that the
// caller may change it. It writes the response itself when ok is false.
func (s *Server) loadOwnedPost(w http.ResponseWriter, r *http.Request, failMsg string) (model.BlogPost, bool) {
	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return model.BlogPost{}, false
		}
		fail(w, r, http.StatusInternalServerError, failMsg, err)
		return model.BlogPost{}, false
	}
	if !auth.CanModify(identity(r), post) {
		writeError(w, http.StatusForbidden, "Not authorized")
		return model.BlogPost{}, false
	}
	return post, true
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	const msg = "Failed to update post"
	post, ok := s.loadOwnedPost(w, r, msg)
	if !ok {
		return
	}
	var req postInput
	if err := readJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	updated, err := s.store.UpdatePost(r.Context(), post.ID, store.PostUpdate{
		Title:     req.Title,
		Content:   req.Content,
		Status:    model.PostStatus(req.Status),
		UpdatedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	const msg = "Failed to delete post"
	post, ok := s.loadOwnedPost(w, r, msg)
	if !ok {
		return
	}
	if err := s.store.DeletePost(r.Context(), post.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}

func (s *Server) handleTopCommented(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.TopCommentedPosts(r.Context(), store.TopCommentedLimit)
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Failed to fetch top commented posts", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handlePostsByAuthor(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.PostCountsByAuthor(r.Context())
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Failed to fetch posts by author", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
