package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Server represents the REST API server
type Server struct {
	port    string
	server  *http.Server
	handler *Handler
}

// NewServer creates a new REST API server over the workbook at
// workbookPath. archive may be nil.
func NewServer(port, workbookPath string, archive ObservationArchive, logger *logrus.Logger) *Server {
	handler := NewHandler(workbookPath, archive, logger)

	return &Server{
		port:    port,
		handler: handler,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", port),
			Handler:      NewRouter(handler, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// NewRouter wires every route and middleware around handler
func NewRouter(handler *Handler, logger *logrus.Logger) http.Handler {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Workbook
	api.HandleFunc("/sheets", handler.GetSheets).Methods("GET")
	api.HandleFunc("/sheets/{date}/games", handler.GetSheetGames).Methods("GET")
	api.HandleFunc("/sheets/{date}/games/{gameID}", handler.GetSheetGame).Methods("GET")

	// Archive
	api.HandleFunc("/games/{gameID}/observations", handler.GetGameObservations).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
