package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/config"
	httphandler "github.com/windfall/shadowing/internal/handler/http"
	"github.com/windfall/shadowing/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by the server.
type Handlers struct {
	Health   *httphandler.HealthHandler
	Library  *httphandler.LibraryHandler
	Imports  *httphandler.ImportHandler
	Sessions *httphandler.SessionHandler
	Segments *httphandler.SegmentHandler
}

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewRouter builds the route tree of the front-end server.
func NewRouter(cfg *config.Config, log zerolog.Logger, h Handlers, hub *WebSocketHub) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Get("/live", h.Health.Live)

	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Audio is streamed as is; the rest is JSON and compressible.
		r.Get("/segments/{segmentID}/audio", h.Segments.Audio)

		// Large uploads followed by slow backend calls outlast the server timeouts.
		r.Group(func(r chi.Router) {
			r.Use(middleware.ExtendDeadlines(cfg.SubmissionTimeout(), log))
			r.Post("/imports/pdf", h.Imports.PDF)
			r.Post("/sessions/{sessionID}/recording", h.Sessions.Recording)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5))

			// Library
			r.Get("/library", h.Library.List)
			r.Delete("/library/{materialID}", h.Library.Delete)

			// Imports
			r.Post("/imports/youtube", h.Imports.YouTube)

			// Practice sessions
			r.Post("/sessions", h.Sessions.Create)
			r.Get("/sessions/{sessionID}", h.Sessions.Get)
			r.Delete("/sessions/{sessionID}", h.Sessions.Delete)
			r.Post("/sessions/{sessionID}/next", h.Sessions.Next)
			r.Post("/sessions/{sessionID}/prev", h.Sessions.Prev)
			r.Post("/sessions/{sessionID}/segments/{index}", h.Sessions.Jump)
			r.Put("/sessions/{sessionID}/speed", h.Sessions.Speed)

			// Practice history
			r.Get("/segments/{segmentID}/practices", h.Segments.Practices)
			r.Get("/practices/{practiceID}", h.Segments.Practice)
		})
	})

	return r
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(cfg *config.Config, log zerolog.Logger, handler http.Handler) *HTTPServer {
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
