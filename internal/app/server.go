package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Studya/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Studya/internal/api/middlewares"
	"github.com/markdave123-py/Studya/internal/config"
	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
	"github.com/markdave123-py/Studya/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, dispatcher *jobs.Dispatcher, bus progress.Bus,
	users *services.UserService, docs *services.DocumentService, gen *services.GenerationService,
	chat *services.ChatService, log *logger.Logger) *Server {

	authHandler := handlers.NewAuthHandler(users)
	notebookHandler := handlers.NewNotebookHandler(users)
	docHandler := handlers.NewDocumentHandler(docs)
	jobHandler := handlers.NewJobHandler(db, dispatcher, gen, bus)
	chatHandler := handlers.NewChatHandler(chat)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/notebooks", notebookHandler.Create)
			protected.Get("/notebooks/{notebookID}", notebookHandler.Get)

			protected.Post("/notebooks/{notebookID}/documents/upload", docHandler.Upload)
			protected.Post("/notebooks/{notebookID}/documents/video", docHandler.AddVideo)
			protected.Get("/notebooks/{notebookID}/documents", docHandler.List)
			protected.Get("/documents/{documentID}", docHandler.Get)
			protected.Post("/documents/{documentID}/approve", docHandler.Approve)
			protected.Post("/documents/{documentID}/reject", docHandler.Reject)
			protected.Post("/documents/{documentID}/retry", docHandler.Retry)
			protected.Delete("/documents/{documentID}", docHandler.Delete)

			protected.Post("/notebooks/{notebookID}/jobs", jobHandler.Submit)
			protected.Get("/notebooks/{notebookID}/jobs", jobHandler.History)
			protected.Get("/jobs/{jobID}", jobHandler.Get)
			protected.Get("/jobs/{jobID}/events", jobHandler.Events)

			protected.Post("/notebooks/{notebookID}/chat", chatHandler.Ask)
			protected.Get("/notebooks/{notebookID}/chat", chatHandler.History)
			protected.Get("/chat/turns/{turnID}/sources", chatHandler.Sources)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start(log *logger.Logger) {
	log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", "error", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
