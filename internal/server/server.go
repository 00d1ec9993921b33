package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/manash/pixshop/internal/cost"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/session"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	mgr    *session.Manager
	editor provider.Editor
	ledger *cost.Ledger
	router *chi.Mux

	// editMu serializes mutations so an AI call and the append that
	// follows it see the same current entry.
	editMu sync.Mutex
}

// New builds the router. editor may be nil, in which case AI routes answer
// 503 and the rest of the API still works.
func New(mgr *session.Manager, editor provider.Editor, ledger *cost.Ledger) *Server {
	if ledger == nil {
		ledger = cost.NewLedger(nil, cost.Models{})
	}
	s := &Server{
		mgr:    mgr,
		editor: editor,
		ledger: ledger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/cost", s.handleCost)

		api.Route("/session", func(sr chi.Router) {
			sr.Get("/", s.handleGetSession)
			sr.Delete("/", s.handleClear)
			sr.Get("/current", s.handleCurrent)
			sr.Get("/original", s.handleOriginal)
			sr.Post("/upload", s.handleUpload)
			sr.Post("/undo", s.handleUndo)
			sr.Post("/redo", s.handleRedo)
			sr.Post("/reset", s.handleReset)
			sr.Post("/edit", s.handleEdit)
			sr.Post("/crop", s.handleCrop)
			sr.Post("/rotate", s.handleRotate)
			sr.Post("/model3d", s.handleModel3D)
		})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
