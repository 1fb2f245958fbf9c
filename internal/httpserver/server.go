// Package httpserver exposes thread resolution and the article archive
// over HTTP for the content pipeline.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ibeckermayer/threadpress/internal/app"
	"github.com/ibeckermayer/threadpress/internal/resolver"
	"github.com/ibeckermayer/threadpress/internal/store"
	"github.com/ibeckermayer/threadpress/internal/types"
	"github.com/ibeckermayer/threadpress/internal/xapi"
)

// Service is what the server needs from the app. *app.App implements it.
type Service interface {
	Resolve(ctx context.Context, rawURL string) (*types.Article, error)
	Article(ctx context.Context, id string) (*types.Article, error)
	ListArticles(ctx context.Context, limit int) ([]store.ArticleSummary, error)
}

// Server is the HTTP server for resolve and archive endpoints.
type Server struct {
	service    Service
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server listening on addr.
func NewServer(addr string, service Service, logger *slog.Logger) *Server {
	s := &Server{
		service: service,
		logger:  logger.With(slog.String("component", "http")),
	}

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     withLogging(s.logger, s.Routes()),
		ReadTimeout: 10 * time.Second,
		// Stale threads render a live page with fixed dwells.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Routes returns the request router.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/resolve", s.handleResolve).Methods(http.MethodGet)
	r.HandleFunc("/articles", s.handleListArticles).Methods(http.MethodGet)
	r.HandleFunc("/articles/{id:[0-9]+}", s.handleArticle).Methods(http.MethodGet)
	return r
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveResponse struct {
	Title          string `json:"title"`
	URL            string `json:"url"`
	Content        string `json:"content"`
	PostID         string `json:"post_id"`
	ConversationID string `json:"conversation_id"`
	PostCount      int    `json:"post_count"`
	Route          string `json:"route"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "url parameter is required")
		return
	}

	article, err := s.service.Resolve(r.Context(), rawURL)
	if err != nil {
		status, errType, message := classify(err)
		s.logger.Error("resolve failed", "url", rawURL, "status", status, "error", err)
		writeError(w, status, errType, message)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Title:          article.Title,
		URL:            article.URL,
		Content:        article.Content,
		PostID:         article.PostID,
		ConversationID: article.ConversationID,
		PostCount:      article.PostCount,
		Route:          article.Route,
	})
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	article, err := s.service.Article(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "no archived article for "+id)
		return
	case errors.Is(err, app.ErrArchiveDisabled):
		writeError(w, http.StatusNotFound, "ArchiveDisabled", err.Error())
		return
	case err != nil:
		s.logger.Error("failed to load article", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load article")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(article.Content))
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	articles, err := s.service.ListArticles(r.Context(), limit)
	if errors.Is(err, app.ErrArchiveDisabled) {
		writeError(w, http.StatusNotFound, "ArchiveDisabled", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to list articles", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list articles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

// classify maps a resolution error to an HTTP status and a message safe to
// return to callers. Upstream API and transport failures are 502; their
// detail stays in the log.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, resolver.ErrNoPostID):
		return http.StatusBadRequest, "InvalidURL", err.Error()
	case errors.Is(err, xapi.ErrMissingCredential):
		return http.StatusServiceUnavailable, "MissingCredential", "no API credential configured"
	case errors.Is(err, xapi.ErrPostNotFound):
		return http.StatusNotFound, "NotFound", "post not found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout", "resolution timed out"
	default:
		return http.StatusBadGateway, "UpstreamError", "upstream request failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
