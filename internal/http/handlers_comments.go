package httpapp

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
)

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	const msg = "Failed to add comment"
	var req struct {
		Post    string `json:"post"`
		Content string `json:"content"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	comment := model.Comment{
		Post:    req.Post,
		Content: req.Content,
		Author:  identity(r).UserID,
	}
	if _, err := s.store.CreateComment(r.Context(), &comment); err != nil {
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleApproveComment(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if !auth.CanModify(id, auth.Moderation) {
		writeError(w, http.StatusForbidden, "Not authorized")
		return
	}
	comment, err := s.store.ApproveComment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Comment not found")
			return
		}
		fail(w, r, http.StatusInternalServerError, "Failed to approve comment", err)
		return
	}
	hlog.FromRequest(r).Info().Str("comment_id", comment.ID).Str("admin_id", id.UserID).Msg("comment approved")
	writeJSON(w, http.StatusOK, comment)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListApprovedComments(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "Failed to fetch comments", err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}
