package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/usecase"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

// maxImageSize bounds uploaded image payloads
const maxImageSize = 10 << 20 // 10 MiB

// UseCase is the query engine surface the HTTP layer depends on
type UseCase interface {
	Ask(ctx context.Context, input usecase.AskInput) (*model.Answer, error)
	SimilarChunks(ctx context.Context, text string, topK int) ([]*model.RetrievedChunk, error)
	Refresh(ctx context.Context) (int, error)
	AnalyzeImage(ctx context.Context, data []byte, mimeType string) (string, error)
	SubmitFeedback(ctx context.Context, rec *model.Feedback) error
	Index() *index.Index
}

type Server struct {
	router     *chi.Mux
	uc         UseCase
	llmTimeout time.Duration
}

type Options func(*Server)

// WithLLMTimeout bounds the model-facing endpoints with a per-request
// timeout. Zero disables the bound.
func WithLLMTimeout(d time.Duration) Options {
	return func(s *Server) {
		s.llmTimeout = d
	}
}

func New(uc UseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:     r,
		uc:         uc,
		llmTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/query", s.withLLMTimeout(s.handleQuery))
	r.Post("/similar-documents", s.withLLMTimeout(s.handleSimilarDocuments))
	r.Post("/analyze-image", s.withLLMTimeout(s.handleAnalyzeImage))
	r.Post("/submit-feedback", s.handleSubmitFeedback)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// withLLMTimeout bounds the request context for endpoints that call out to
// the embedding or generative models. A client disconnect still cancels the
// request through the base context.
func (s *Server) withLLMTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.llmTimeout <= 0 {
			next(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.llmTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
