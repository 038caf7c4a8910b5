// Package chi serves the askdex HTTP API: question and answer CRUD on the
// system of record, search over the projected index, health and metrics.
package chi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	domq "github.com/kailas-cloud/askdex/internal/domain/question"
	"github.com/kailas-cloud/askdex/internal/metrics"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
)

// QuestionService is the question usecase as seen by the handlers.
type QuestionService interface {
	Create(ctx context.Context, draft domq.Draft) (*domq.Question, error)
	Get(ctx context.Context, id string) (*domq.Question, error)
	List(ctx context.Context, tag string) ([]domq.Question, error)
	Update(ctx context.Context, id string, draft domq.Draft) error
	Delete(ctx context.Context, id string) error
	AddAnswer(ctx context.Context, questionID, content string) (*domq.Answer, error)
	UpdateAnswer(ctx context.Context, questionID, answerID, content string) error
	DeleteAnswer(ctx context.Context, questionID, answerID string) error
	AcceptAnswer(ctx context.Context, questionID, answerID string) error
}

// SearchService runs queries against the search index.
type SearchService interface {
	Search(ctx context.Context, raw string, limit int) ([]domdoc.Hit, error)
	SimilarTitles(ctx context.Context, raw string, limit int) ([]domdoc.Hit, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	questions     QuestionService
	search        SearchService
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(questions QuestionService, search SearchService, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		questions: questions,
		search:    search,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = defaultErrorHandlers()
	return s
}

// Options configure the router built by Handler.
type Options struct {
	// Verifier authenticates bearer tokens. Nil leaves every request anonymous,
	// so mutating routes answer 401.
	Verifier TokenVerifier
	CORS     cors.Options
}

// Handler builds the router with the full middleware chain.
// Order: CORS -> recoverer -> request id -> wide event -> metrics -> auth -> routes.
func (s *Server) Handler(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(Authenticate(opts.Verifier))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/search", s.Search)
	r.Get("/search/similar-titles", s.SimilarTitles)

	r.Get("/questions", s.ListQuestions)
	r.Get("/questions/{id}", s.GetQuestion)

	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity)

		r.Post("/questions", s.CreateQuestion)
		r.Put("/questions/{id}", s.UpdateQuestion)
		r.Delete("/questions/{id}", s.DeleteQuestion)

		r.Post("/questions/{id}/answers", s.AddAnswer)
		r.Put("/questions/{id}/answers/{answerId}", s.UpdateAnswer)
		r.Delete("/questions/{id}/answers/{answerId}", s.DeleteAnswer)
		r.Post("/questions/{id}/answers/{answerId}/accept", s.AcceptAnswer)
	})

	return cors.New(opts.CORS).Handler(r)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: string(report.Status), Checks: report.Checks})
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}
