package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

//go:embed prompt/answer_user.md
var answerUserPromptTmpl string

var answerUserPrompt = template.Must(template.New("answer_user").Parse(answerUserPromptTmpl))

const (
	defaultTopK = 3
	maxTopK     = 20
)

// queryState tracks where a query is in its lifecycle, for logging
type queryState string

const (
	stateEmbedding  queryState = "embedding"
	stateRetrieving queryState = "retrieving"
	stateGenerating queryState = "generating"
	stateCompleted  queryState = "completed"
)

// AskInput is a validated retrieval-augmented query request
type AskInput struct {
	Text     string
	TopK     int
	Model    string
	Language string
}

func (in *AskInput) normalize(profile *model.Profile) (*model.LanguageSpec, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, goerr.Wrap(ErrValidation, "query text is required")
	}
	if in.TopK == 0 {
		in.TopK = defaultTopK
	}
	if in.TopK < 0 {
		return nil, goerr.Wrap(ErrValidation, "top_k must not be negative", goerr.V("top_k", in.TopK))
	}
	if in.TopK > maxTopK {
		in.TopK = maxTopK
	}

	lang, ok := profile.Language(in.Language)
	if !ok {
		return nil, goerr.Wrap(ErrValidation, "unknown language", goerr.V("language", in.Language))
	}
	return lang, nil
}

// Ask answers a question with retrieval-augmented generation: embed the
// query, retrieve the nearest chunks, assemble a prompt and delegate to the
// generative model. The engine holds no per-query state; a failure in any
// stage surfaces as a typed error with no partial answer.
func (uc *UseCases) Ask(ctx context.Context, input AskInput) (*model.Answer, error) {
	logger := logging.From(ctx)

	lang, err := input.normalize(uc.profile)
	if err != nil {
		return nil, err
	}

	llm, err := uc.llmForModel(input.Model)
	if err != nil {
		return nil, err
	}

	logger.Debug("query state", "state", stateEmbedding)
	vectors, err := uc.embed(ctx, []string{input.Text})
	if err != nil {
		return nil, goerr.Wrap(ErrEmbedding, "failed to embed query", goerr.V("cause", err.Error()))
	}

	logger.Debug("query state", "state", stateRetrieving)
	sources, err := uc.index.Search(vectors[0], input.TopK)
	if err != nil {
		if errors.Is(err, index.ErrEmptyIndex) {
			// An empty index is a well-defined state: answer without knowledge
			logger.Info("query served without knowledge", "index_size", 0)
			return &model.Answer{Text: model.NoKnowledgeAnswer, Sources: []*model.RetrievedChunk{}}, nil
		}
		return nil, err
	}

	systemPrompt := uc.buildSystemPrompt(lang)
	userPrompt, err := buildUserPrompt(input.Text, sources)
	if err != nil {
		return nil, err
	}

	logger.Debug("query state", "state", stateGenerating, "sources", len(sources))
	answerText, err := uc.generate(ctx, llm, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	logger.Debug("query state", "state", stateCompleted)
	return &model.Answer{Text: answerText, Sources: sources}, nil
}

// SimilarChunks retrieves the most similar chunks without generating an
// answer. An empty index yields an empty result, not an error.
func (uc *UseCases) SimilarChunks(ctx context.Context, text string, topK int) ([]*model.RetrievedChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(ErrValidation, "query text is required")
	}
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 0 {
		return nil, goerr.Wrap(ErrValidation, "top_k must not be negative", goerr.V("top_k", topK))
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	vectors, err := uc.embed(ctx, []string{text})
	if err != nil {
		return nil, goerr.Wrap(ErrEmbedding, "failed to embed query", goerr.V("cause", err.Error()))
	}

	results, err := uc.index.Search(vectors[0], topK)
	if err != nil {
		if errors.Is(err, index.ErrEmptyIndex) {
			return []*model.RetrievedChunk{}, nil
		}
		return nil, err
	}
	return results, nil
}

// llmForModel resolves a generative model client by name. An empty name
// selects the default model.
func (uc *UseCases) llmForModel(name string) (gollem.LLMClient, error) {
	if len(uc.llms) == 0 {
		return nil, goerr.New("no generative model is configured")
	}
	if name == "" {
		name = uc.defaultModel
	}
	llm, ok := uc.llms[name]
	if !ok {
		return nil, goerr.Wrap(ErrValidation, "unknown model", goerr.V("model", name))
	}
	return llm, nil
}

// embed converts texts to fixed-dimension vectors via the default model's
// embedding endpoint
func (uc *UseCases) embed(ctx context.Context, texts []string) ([][]float32, error) {
	llm, err := uc.llmForModel("")
	if err != nil {
		return nil, err
	}

	embeddings, err := llm.GenerateEmbedding(ctx, model.EmbeddingDimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(embeddings) != len(texts) {
		return nil, goerr.New("unexpected embedding count",
			goerr.V("expected", len(texts)),
			goerr.V("actual", len(embeddings)))
	}

	vectors := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func (uc *UseCases) buildSystemPrompt(lang *model.LanguageSpec) string {
	var sb strings.Builder
	sb.WriteString(uc.profile.Preamble)
	if lang.Instruction != "" {
		sb.WriteString("\n\n")
		sb.WriteString(lang.Instruction)
	}
	return sb.String()
}

func buildUserPrompt(question string, sources []*model.RetrievedChunk) (string, error) {
	var buf bytes.Buffer
	err := answerUserPrompt.Execute(&buf, map[string]any{
		"Question": question,
		"Sources":  sources,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render user prompt")
	}
	return buf.String(), nil
}

// generate calls the generative model, retrying once after a short wait.
// Both attempts failing surfaces as ErrGeneration.
func (uc *UseCases) generate(ctx context.Context, llm gollem.LLMClient, systemPrompt, userPrompt string) (string, error) {
	text, firstErr := uc.generateOnce(ctx, llm, systemPrompt, userPrompt)
	if firstErr == nil {
		return text, nil
	}

	logging.From(ctx).Warn("generation failed, retrying once",
		"error", firstErr.Error(),
		"wait", uc.retryWait.String())

	select {
	case <-time.After(uc.retryWait):
	case <-ctx.Done():
		return "", goerr.Wrap(ErrGeneration, "request cancelled before retry", goerr.V("cause", firstErr.Error()))
	}

	text, retryErr := uc.generateOnce(ctx, llm, systemPrompt, userPrompt)
	if retryErr != nil {
		return "", goerr.Wrap(ErrGeneration, "generation failed after retry",
			goerr.V("first", firstErr.Error()),
			goerr.V("retry", retryErr.Error()))
	}
	return text, nil
}

func (uc *UseCases) generateOnce(ctx context.Context, llm gollem.LLMClient, systemPrompt, userPrompt string) (string, error) {
	session, err := llm.NewSession(ctx, gollem.WithSessionSystemPrompt(systemPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(userPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content")
	}
	if resp == nil || len(resp.Texts) == 0 || resp.Texts[0] == "" {
		return "", goerr.New("model returned no text")
	}

	return resp.Texts[0], nil
}
