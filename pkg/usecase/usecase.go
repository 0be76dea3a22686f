package usecase

import (
	"time"

	"github.com/m-mizutani/gollem"

	"github.com/esg-lab/pythia/pkg/domain/interfaces"
	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/feedback"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/service/snapshot"
	"github.com/esg-lab/pythia/pkg/service/vision"
)

// UseCases wires the retrieval-augmented query engine to its collaborators.
// The engine itself is stateless across queries; the vector index is the
// only shared mutable state and handles its own consistency.
type UseCases struct {
	repo    interfaces.Repository
	index   *index.Index
	profile *model.Profile

	llms         map[string]gollem.LLMClient
	defaultModel string

	snapshots   snapshot.Store
	feedbackLog *feedback.Log
	visionSvc   vision.Service

	retryWait        time.Duration
	embedBatchSize   int
	embedConcurrency int
	embedTimeout     time.Duration
}

type Option func(*UseCases)

// WithModels registers the available generative model clients. The default
// model serves requests that do not name one.
func WithModels(llms map[string]gollem.LLMClient, defaultModel string) Option {
	return func(uc *UseCases) {
		uc.llms = llms
		uc.defaultModel = defaultModel
	}
}

// WithSnapshotStore enables index snapshot persistence
func WithSnapshotStore(store snapshot.Store) Option {
	return func(uc *UseCases) {
		uc.snapshots = store
	}
}

// WithFeedbackLog enables feedback submission
func WithFeedbackLog(log *feedback.Log) Option {
	return func(uc *UseCases) {
		uc.feedbackLog = log
	}
}

// WithVision enables the image analysis path
func WithVision(svc vision.Service) Option {
	return func(uc *UseCases) {
		uc.visionSvc = svc
	}
}

// WithProfile overrides the default assistant profile
func WithProfile(profile *model.Profile) Option {
	return func(uc *UseCases) {
		uc.profile = profile
	}
}

// WithRetryWait overrides the wait before the single generation retry
func WithRetryWait(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.retryWait = d
	}
}

// WithEmbedTimeout bounds each embedding batch call during refresh and
// ingestion. The request-facing paths are bounded by the HTTP layer instead.
func WithEmbedTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		if d > 0 {
			uc.embedTimeout = d
		}
	}
}

// WithEmbedBatch tunes refresh embedding batch size and concurrency
func WithEmbedBatch(size, concurrency int) Option {
	return func(uc *UseCases) {
		if size > 0 {
			uc.embedBatchSize = size
		}
		if concurrency > 0 {
			uc.embedConcurrency = concurrency
		}
	}
}

func New(repo interfaces.Repository, idx *index.Index, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:             repo,
		index:            idx,
		profile:          model.DefaultProfile(),
		retryWait:        2 * time.Second,
		embedBatchSize:   16,
		embedConcurrency: 4,
		embedTimeout:     60 * time.Second,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Index exposes the vector index for health reporting
func (uc *UseCases) Index() *index.Index {
	return uc.index
}
