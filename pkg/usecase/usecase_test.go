package usecase_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/esg-lab/pythia/pkg/domain/interfaces"
	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/repository/memory"
	"github.com/esg-lab/pythia/pkg/service/feedback"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/usecase"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{
		Texts: []string{"This is a test answer."},
	}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	embedFn      func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.embedFn != nil {
		return c.embedFn(ctx, dimension, input)
	}
	out := make([][]float64, len(input))
	for i := range input {
		out[i] = unitVec64(0)
	}
	return out, nil
}

// mockRepository lets tests inject store failures
type mockRepository struct {
	chunk *mockChunkRepository
}

func (r *mockRepository) Chunk() interfaces.ChunkRepository {
	return r.chunk
}

func (r *mockRepository) Close() error { return nil }

type mockChunkRepository struct {
	listFn func(ctx context.Context) ([]*model.Chunk, error)
}

func (r *mockChunkRepository) Create(ctx context.Context, chunk *model.Chunk) (*model.Chunk, error) {
	return chunk, nil
}

func (r *mockChunkRepository) CreateMany(ctx context.Context, chunks []*model.Chunk) error {
	return nil
}

func (r *mockChunkRepository) Get(ctx context.Context, id model.ChunkID) (*model.Chunk, error) {
	return nil, errors.New("not implemented")
}

func (r *mockChunkRepository) List(ctx context.Context) ([]*model.Chunk, error) {
	if r.listFn != nil {
		return r.listFn(ctx)
	}
	return nil, nil
}

func (r *mockChunkRepository) Count(ctx context.Context) (int, error) {
	return 0, nil
}

func unitVec64(hot int) []float64 {
	v := make([]float64, model.EmbeddingDimension)
	v[hot] = 1.0
	return v
}

func unitVec32(hot int) []float32 {
	v := make([]float32, model.EmbeddingDimension)
	v[hot] = 1.0
	return v
}

func newTestChunk(source, text string) *model.Chunk {
	return &model.Chunk{
		ID:         model.NewChunkID(),
		SourceName: source,
		Text:       text,
	}
}

func TestAsk(t *testing.T) {
	t.Run("answers with retrieved sources in similarity order", func(t *testing.T) {
		idx := index.New(model.EmbeddingDimension)
		climate := newTestChunk("climate-report.pdf", "Scope 1 emissions fell 12% year over year.")
		social := newTestChunk("social-report.pdf", "Employee turnover decreased to 8%.")
		gt.NoError(t, idx.Insert(climate, unitVec32(0))).Required()
		gt.NoError(t, idx.Insert(social, unitVec32(1))).Required()

		var gotUserPrompt string
		llm := &mockLLMClient{
			embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				gt.Value(t, dimension).Equal(model.EmbeddingDimension)
				// Query vector sits between the two chunks, closer to the first
				v := unitVec64(0)
				v[1] = 0.5
				return [][]float64{v}, nil
			},
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						gt.Array(t, input).Length(1)
						text, ok := input[0].(gollem.Text)
						gt.Value(t, ok).Equal(true)
						gotUserPrompt = string(text)
						return &gollem.Response{Texts: []string{"Emissions fell 12%."}}, nil
					},
				}, nil
			},
		}

		uc := usecase.New(memory.New(), idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
		)

		answer, err := uc.Ask(context.Background(), usecase.AskInput{Text: "How did emissions change?"})
		gt.NoError(t, err).Required()
		gt.Value(t, answer.Text).Equal("Emissions fell 12%.")
		gt.Array(t, answer.Sources).Length(2).Required()
		gt.Value(t, answer.Sources[0].Chunk.ID).Equal(climate.ID)
		gt.Value(t, answer.Sources[1].Chunk.ID).Equal(social.ID)
		gt.Value(t, answer.Sources[0].Score > answer.Sources[1].Score).Equal(true)

		gt.Value(t, strings.Contains(gotUserPrompt, "How did emissions change?")).Equal(true)
		gt.Value(t, strings.Contains(gotUserPrompt, "climate-report.pdf")).Equal(true)
		gt.Value(t, strings.Contains(gotUserPrompt, "Scope 1 emissions fell 12%")).Equal(true)
	})

	t.Run("answers without knowledge when index is empty", func(t *testing.T) {
		generated := false
		llm := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				generated = true
				return &mockLLMSession{}, nil
			},
		}
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
		)

		answer, err := uc.Ask(context.Background(), usecase.AskInput{Text: "Anything?"})
		gt.NoError(t, err).Required()
		gt.Value(t, answer.Text).Equal(model.NoKnowledgeAnswer)
		gt.Array(t, answer.Sources).Length(0)
		gt.Value(t, generated).Equal(false)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": &mockLLMClient{}}, "gemini-2.0-flash"),
		)

		cases := map[string]usecase.AskInput{
			"empty text":       {Text: "   "},
			"negative top_k":   {Text: "q", TopK: -1},
			"unknown language": {Text: "q", Language: "klingon"},
			"unknown model":    {Text: "q", Model: "gpt-99"},
		}
		for name, input := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := uc.Ask(context.Background(), input)
				gt.Error(t, err)
				gt.Value(t, errors.Is(err, usecase.ErrValidation)).Equal(true)
			})
		}
	})

	t.Run("wraps embedding failures", func(t *testing.T) {
		idx := index.New(model.EmbeddingDimension)
		gt.NoError(t, idx.Insert(newTestChunk("a.pdf", "text"), unitVec32(0))).Required()

		llm := &mockLLMClient{
			embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return nil, goerr.New("quota exceeded")
			},
		}
		uc := usecase.New(memory.New(), idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
		)

		_, err := uc.Ask(context.Background(), usecase.AskInput{Text: "q"})
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrEmbedding)).Equal(true)
	})

	t.Run("retries generation once before failing", func(t *testing.T) {
		idx := index.New(model.EmbeddingDimension)
		gt.NoError(t, idx.Insert(newTestChunk("a.pdf", "text"), unitVec32(0))).Required()

		attempts := 0
		llm := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						attempts++
						return nil, goerr.New("model overloaded")
					},
				}, nil
			},
		}
		uc := usecase.New(memory.New(), idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
			usecase.WithRetryWait(0),
		)

		_, err := uc.Ask(context.Background(), usecase.AskInput{Text: "q"})
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrGeneration)).Equal(true)
		gt.Value(t, attempts).Equal(2)
	})

	t.Run("recovers when the retry succeeds", func(t *testing.T) {
		idx := index.New(model.EmbeddingDimension)
		gt.NoError(t, idx.Insert(newTestChunk("a.pdf", "text"), unitVec32(0))).Required()

		attempts := 0
		llm := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						attempts++
						if attempts == 1 {
							return nil, goerr.New("transient failure")
						}
						return &gollem.Response{Texts: []string{"recovered"}}, nil
					},
				}, nil
			},
		}
		uc := usecase.New(memory.New(), idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
			usecase.WithRetryWait(0),
		)

		answer, err := uc.Ask(context.Background(), usecase.AskInput{Text: "q"})
		gt.NoError(t, err).Required()
		gt.Value(t, answer.Text).Equal("recovered")
		gt.Value(t, attempts).Equal(2)
	})

	t.Run("selects a named model", func(t *testing.T) {
		idx := index.New(model.EmbeddingDimension)
		gt.NoError(t, idx.Insert(newTestChunk("a.pdf", "text"), unitVec32(0))).Required()

		proCalled := false
		pro := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				proCalled = true
				return &mockLLMSession{}, nil
			},
		}
		uc := usecase.New(memory.New(), idx,
			usecase.WithModels(map[string]gollem.LLMClient{
				"gemini-2.0-flash": &mockLLMClient{},
				"gemini-2.5-pro":   pro,
			}, "gemini-2.0-flash"),
		)

		_, err := uc.Ask(context.Background(), usecase.AskInput{Text: "q", Model: "gemini-2.5-pro"})
		gt.NoError(t, err).Required()
		gt.Value(t, proCalled).Equal(true)
	})
}

func TestSimilarChunks(t *testing.T) {
	t.Run("returns empty result on empty index", func(t *testing.T) {
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": &mockLLMClient{}}, "gemini-2.0-flash"),
		)

		results, err := uc.SimilarChunks(context.Background(), "anything", 3)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(0)
	})

	t.Run("caps results at index size", func(t *testing.T) {
		idx := index.New(model.EmbeddingDimension)
		gt.NoError(t, idx.Insert(newTestChunk("a.pdf", "alpha"), unitVec32(0))).Required()
		gt.NoError(t, idx.Insert(newTestChunk("b.pdf", "beta"), unitVec32(1))).Required()

		uc := usecase.New(memory.New(), idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": &mockLLMClient{}}, "gemini-2.0-flash"),
		)

		results, err := uc.SimilarChunks(context.Background(), "q", 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(2)
	})
}

func TestRefresh(t *testing.T) {
	t.Run("rebuilds index from stored chunks", func(t *testing.T) {
		ctx := context.Background()
		repo := memory.New()
		for i := 0; i < 5; i++ {
			_, err := repo.Chunk().Create(ctx, newTestChunk("report.pdf", strings.Repeat("x", i+1)))
			gt.NoError(t, err).Required()
		}

		llm := &mockLLMClient{
			embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				out := make([][]float64, len(input))
				for i, text := range input {
					out[i] = unitVec64(len(text) % model.EmbeddingDimension)
				}
				return out, nil
			},
		}
		idx := index.New(model.EmbeddingDimension)
		uc := usecase.New(repo, idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
			usecase.WithEmbedBatch(2, 2),
		)

		count, err := uc.Refresh(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(5)
		gt.Value(t, idx.Size()).Equal(5)
	})

	t.Run("maps store failures to store unavailable", func(t *testing.T) {
		repo := &mockRepository{chunk: &mockChunkRepository{
			listFn: func(ctx context.Context) ([]*model.Chunk, error) {
				return nil, goerr.New("connection refused")
			},
		}}
		uc := usecase.New(repo, index.New(model.EmbeddingDimension),
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": &mockLLMClient{}}, "gemini-2.0-flash"),
		)

		_, err := uc.Refresh(context.Background())
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrStoreUnavailable)).Equal(true)
	})

	t.Run("bounds a hung embedding call with a timeout", func(t *testing.T) {
		ctx := context.Background()
		repo := memory.New()
		_, err := repo.Chunk().Create(ctx, newTestChunk("report.pdf", "some text"))
		gt.NoError(t, err).Required()

		idx := index.New(model.EmbeddingDimension)
		old := newTestChunk("old.pdf", "old text")
		gt.NoError(t, idx.Insert(old, unitVec32(0))).Required()

		// Embedder that never returns until its context is cancelled
		llm := &mockLLMClient{
			embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		uc := usecase.New(repo, idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
			usecase.WithEmbedTimeout(10*time.Millisecond),
		)

		_, err = uc.Refresh(ctx)
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrEmbedding)).Equal(true)
		gt.Value(t, idx.Size()).Equal(1)
	})

	t.Run("keeps the previous index when embedding fails", func(t *testing.T) {
		ctx := context.Background()
		repo := memory.New()
		_, err := repo.Chunk().Create(ctx, newTestChunk("report.pdf", "new text"))
		gt.NoError(t, err).Required()

		idx := index.New(model.EmbeddingDimension)
		old := newTestChunk("old.pdf", "old text")
		gt.NoError(t, idx.Insert(old, unitVec32(0))).Required()

		llm := &mockLLMClient{
			embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return nil, goerr.New("quota exceeded")
			},
		}
		uc := usecase.New(repo, idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
		)

		_, err = uc.Refresh(ctx)
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrEmbedding)).Equal(true)

		results, err := idx.Search(unitVec32(0), 1)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1).Required()
		gt.Value(t, results[0].Chunk.ID).Equal(old.ID)
	})
}

func TestIngestChunks(t *testing.T) {
	t.Run("stores and indexes new chunks without a rebuild", func(t *testing.T) {
		ctx := context.Background()
		repo := memory.New()
		idx := index.New(model.EmbeddingDimension)

		hot := 0
		llm := &mockLLMClient{
			embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				out := make([][]float64, len(input))
				for i := range input {
					out[i] = unitVec64(hot)
					hot++
				}
				return out, nil
			},
		}
		uc := usecase.New(repo, idx,
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": llm}, "gemini-2.0-flash"),
		)

		chunks := []*model.Chunk{
			{SourceName: "governance.pdf", Text: "governance framework overview"},
			{SourceName: "governance.pdf", Text: "supplier code of conduct"},
		}
		gt.NoError(t, uc.IngestChunks(ctx, chunks)).Required()

		count, err := repo.Chunk().Count(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, count).Equal(2)
		gt.Value(t, idx.Size()).Equal(2)

		// Indexed entries carry the same identity as the stored chunks
		results, err := idx.Search(unitVec32(0), 1)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1).Required()
		gt.Value(t, string(results[0].Chunk.ID) != "").Equal(true)

		stored, err := repo.Chunk().Get(ctx, results[0].Chunk.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Text).Equal(results[0].Chunk.Text)
	})

	t.Run("rejects an empty chunk list", func(t *testing.T) {
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithModels(map[string]gollem.LLMClient{"gemini-2.0-flash": &mockLLMClient{}}, "gemini-2.0-flash"),
		)

		err := uc.IngestChunks(context.Background(), nil)
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrValidation)).Equal(true)
	})
}

func TestSubmitFeedback(t *testing.T) {
	t.Run("appends valid feedback to the log", func(t *testing.T) {
		ctx := context.Background()
		log, err := feedback.New(filepath.Join(t.TempDir(), "feedback.csv"))
		gt.NoError(t, err).Required()

		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithFeedbackLog(log),
		)

		err = uc.SubmitFeedback(ctx, &model.Feedback{
			Question:    "How did emissions change?",
			ModelAnswer: "They fell 12%.",
			Rating:      4,
			Comments:    "helpful",
		})
		gt.NoError(t, err).Required()

		count := 0
		for rec, err := range log.ReadAll(ctx) {
			gt.NoError(t, err).Required()
			gt.Value(t, rec.Rating).Equal(4)
			count++
		}
		gt.Value(t, count).Equal(1)
	})

	t.Run("rejects out-of-range rating before writing", func(t *testing.T) {
		ctx := context.Background()
		log, err := feedback.New(filepath.Join(t.TempDir(), "feedback.csv"))
		gt.NoError(t, err).Required()

		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithFeedbackLog(log),
		)

		err = uc.SubmitFeedback(ctx, &model.Feedback{
			Question:    "q",
			ModelAnswer: "a",
			Rating:      6,
		})
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrValidation)).Equal(true)

		for range log.ReadAll(ctx) {
			t.Fatal("rejected feedback must not be written")
		}
	})
}

func TestAnalyzeImage(t *testing.T) {
	t.Run("rejects empty image data", func(t *testing.T) {
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension))

		_, err := uc.AnalyzeImage(context.Background(), nil, "image/png")
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrValidation)).Equal(true)
	})

	t.Run("rejects non-image content types", func(t *testing.T) {
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension))

		_, err := uc.AnalyzeImage(context.Background(), []byte{0x1}, "application/pdf")
		gt.Error(t, err)
		gt.Value(t, errors.Is(err, usecase.ErrValidation)).Equal(true)
	})

	t.Run("delegates to the vision service", func(t *testing.T) {
		uc := usecase.New(memory.New(), index.New(model.EmbeddingDimension),
			usecase.WithVision(&mockVision{result: "a bar chart of emissions"}),
		)

		analysis, err := uc.AnalyzeImage(context.Background(), []byte{0x89, 0x50}, "image/png")
		gt.NoError(t, err).Required()
		gt.Value(t, analysis).Equal("a bar chart of emissions")
	})
}

type mockVision struct {
	result string
}

func (m *mockVision) Analyze(ctx context.Context, data []byte, mimeType string) (string, error) {
	return m.result, nil
}
