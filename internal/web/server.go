// Package web is the JSON HTTP API in front of the study services.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studyloop/internal/auth"
	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/dashboard"
	"github.com/conorfennell/studyloop/internal/documents"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/quiz"
	"github.com/conorfennell/studyloop/internal/study"
)

// PipelineStore is the row access used by the processing pipeline callbacks
// and the health check.
type PipelineStore interface {
	FindDocument(ctx context.Context, id string) (*domain.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status domain.ProcessingStatus, errorMessage string) (bool, error)
	ReplaceOutline(ctx context.Context, documentID string, topics []domain.Topic) error
	InsertQuiz(ctx context.Context, q *domain.Quiz) error
	UpdateQuizStatus(ctx context.Context, id string, status domain.GenerationStatus) (bool, error)
	Ping(ctx context.Context) error
}

// Deps are the services the API is built on.
type Deps struct {
	Auth      *auth.Service
	Documents *documents.Service
	Quizzes   *quiz.Service
	Study     *study.Service
	Dashboard *dashboard.Service
	Pipeline  PipelineStore
	Hub       cache.Subscriber
	Cache     cache.Cache
	Log       *logger.Logger

	// PipelineToken guards the pipeline callbacks. Empty disables them.
	PipelineToken string
	CORSOrigins   []string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router   *gin.Engine
	validate *validator.Validate
	log      *logger.Logger
}

// NewServer creates and configures a new server.
func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	s := &Server{
		Deps:     d,
		router:   gin.New(),
		validate: auth.NewValidator(),
		log:      d.Log.With("component", "http"),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(gin.Recovery(), s.requestLogger())
	if len(s.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s.router.GET("/health", s.handleHealth())

	api := s.router.Group("/api/v1")
	{
		api.POST("/auth/signup", s.handleSignUp())
		api.POST("/auth/signin", s.handleSignIn())
		api.POST("/auth/verify", s.handleVerify())
		api.POST("/auth/resend", s.handleResend())
	}

	pipeline := api.Group("/pipeline", s.requirePipelineToken())
	{
		pipeline.POST("/documents/:id/status", s.handlePipelineDocumentStatus())
		pipeline.POST("/documents/:id/outline", s.handlePipelineOutline())
		pipeline.POST("/quizzes", s.handlePipelineCreateQuiz())
		pipeline.POST("/quizzes/:id/status", s.handlePipelineQuizStatus())
	}

	protected := api.Group("/", s.requireAuth())
	{
		protected.GET("/auth/session", s.handleSession())
		protected.GET("/dashboard", s.handleDashboard())

		protected.GET("/documents", s.handleListDocuments())
		protected.POST("/documents", s.handleUploadDocuments())
		protected.GET("/documents/stats", s.handleStorageStats())
		protected.POST("/documents/:id/retry", s.handleRetryDocument())
		protected.DELETE("/documents/:id", s.handleDeleteDocument())
		protected.GET("/documents/:id/quiz", s.handleDocumentQuiz())
		protected.POST("/documents/:id/quiz", s.handleGenerateQuiz())
		protected.GET("/documents/:id/progress", s.handleDocumentProgress())
		protected.GET("/documents/:id/next-concept", s.handleNextConcept())

		protected.GET("/quizzes", s.handleListQuizzes())
		protected.GET("/quizzes/:id", s.handleGetQuiz())
		protected.POST("/quizzes/:id/attempts", s.handleSubmitQuiz())
		protected.GET("/quizzes/:id/attempts", s.handleQuizAttempts())

		protected.POST("/study/sessions", s.handleStartSession())
		protected.POST("/study/sessions/:id/attempts", s.handleRecordAttempt())
		protected.DELETE("/study/sessions/:id", s.handleEndSession())

		protected.GET("/realtime", s.handleRealtime())
	}
}

// Run serves on addr until ctx ends, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", "address", addr)
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
	s.log.Info("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Pipeline.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
