// Package server exposes a mirrored session over HTTP for inspection
// and simple control. It is a debug surface around the session core,
// not part of the mirroring contract.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wilcooo/fx-cast/internal/session"
)

type Server struct {
	router     chi.Router
	session    *session.Session
	corsOrigin string
}

type Option func(*Server)

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func NewServer(sess *session.Session, opts ...Option) *Server {
	srv := &Server{
		router:  chi.NewRouter(),
		session: sess,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(corsMiddleware(s.corsOrigin))

		r.Get("/session", s.handleGetSession)
		r.Get("/media", s.handleListMedia)
		r.Get("/media/sse", s.handleMediaSSE)
		r.Get("/media/{id}", s.handleGetMedia)
		r.Post("/media/{id}/command", s.handleMediaCommand)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			next.ServeHTTP(w, r)
		})
	}
}
