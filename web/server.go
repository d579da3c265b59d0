// Package web exposes the content service over HTTP: JSON endpoints for
// posts, neighbours and tags, the revalidation webhook and the sitemap.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/robertmeta/blog-cli/content"
	"github.com/robertmeta/blog-cli/render"
	"github.com/robertmeta/blog-cli/sitemap"
)

// Options configures a Server.
type Options struct {
	// Secret authorizes revalidation requests. An empty secret rejects
	// every request except the verification handshake.
	Secret   string
	BaseURL  string
	Pages    []sitemap.Page
	Renderer *render.Renderer
	Logger   *log.Logger
	Now      func() time.Time
}

// Server serves the blog API.
type Server struct {
	content  *content.Service
	renderer *render.Renderer
	secret   string
	baseURL  string
	pages    []sitemap.Page
	logger   *log.Logger
	now      func() time.Time
}

// New creates a Server for svc.
func New(svc *content.Service, opts Options) *Server {
	s := &Server{
		content:  svc,
		renderer: opts.Renderer,
		secret:   opts.Secret,
		baseURL:  opts.BaseURL,
		pages:    opts.Pages,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.renderer == nil {
		s.renderer = render.New()
	}
	if s.pages == nil {
		s.pages = sitemap.DefaultPages
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/posts", s.handleListPosts)
	mux.HandleFunc("GET /api/posts/{slug}", s.handleGetPost)
	mux.HandleFunc("GET /api/posts/{slug}/adjacent", s.handleAdjacent)
	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("POST /api/revalidate", s.handleRevalidate)
	mux.HandleFunc("GET /sitemap.xml", s.handleSitemap)
	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
