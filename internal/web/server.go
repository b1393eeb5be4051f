package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server wraps the HTTP server and the console handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a bench console server for the given address and
// dependencies.
func NewServer(addr string, ctrl Controller, events *Broadcaster, params Params) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(ctrl, events, params, subFS),
	}
}

// Router returns the chi router with all console routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/status", s.handlers.handleStatus)
	r.Get("/api/config", s.handlers.handleConfig)
	r.Post("/api/demand", s.handlers.handleDemand)
	r.Post("/api/rotor", s.handlers.handleRotor)
	r.Post("/api/arm", s.handlers.handleArm)
	r.Post("/api/motortest", s.handlers.handleMotorTest)
	r.Post("/api/estop", s.handlers.handleEstop)
	r.Post("/api/gyrogain", s.handlers.handleGyroGain)
	r.Get("/api/events", s.handlers.handleEvents)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	r.Get("/", s.handlers.serveIndex)

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("bench console listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
