package httpapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/config"
	"github.com/alphabot-ai/blogapi/internal/store"
)

type Server struct {
	store  store.Store
	auth   *auth.Service
	cfg    config.Config
	log    zerolog.Logger
	router chi.Router
}

func NewServer(st store.Store, authSvc *auth.Service, cfg config.Config, log zerolog.Logger) *Server {
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "x-auth-token"
	}
	s := &Server{store: st, auth: authSvc, cfg: cfg, log: log, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	for _, mw := range s.requestLogging() {
		r.Use(mw)
	}
	r.Use(recoverer)
	r.Use(s.cors())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Blog API is running"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Route("/blogposts", func(r chi.Router) {
			r.Get("/", s.handleListPosts)
			r.With(s.requireAuth).Post("/", s.handleCreatePost)
			// Literal paths go before /{id}.
			r.Get("/top-commented", s.handleTopCommented)
			r.Get("/posts-by-author", s.handlePostsByAuthor)
			r.Get("/{id}", s.handleGetPost)
			r.With(s.requireAuth).Put("/{id}", s.handleUpdatePost)
			r.With(s.requireAuth).Delete("/{id}", s.handleDeletePost)
		})

		r.Route("/comments", func(r chi.Router) {
			r.With(s.requireAuth).Post("/", s.handleCreateComment)
			r.With(s.requireAuth).Put("/{id}/approve", s.handleApproveComment)
			r.Get("/post/{postId}", s.handleListComments)
		})
	})
}
