package vision

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

const analysisPrompt = "Analyze this image in the context of ESG (Environmental, Social, Governance) topics. " +
	"Describe the key figures, trends and claims it presents, and note anything that looks inconsistent or misleading."

// Service analyzes images with a multimodal model. It is a stateless
// pass-through: image in, free-text analysis out, no index interaction.
type Service interface {
	Analyze(ctx context.Context, data []byte, mimeType string) (string, error)
}

// client implements Service on top of the Gemini API.
// gollem does not expose image inputs, so this service talks to the same
// SDK gollem wraps.
type client struct {
	gc        *genai.Client
	modelName string
}

// Option is a functional option for client configuration
type Option func(*client)

// WithModel overrides the vision model name
func WithModel(name string) Option {
	return func(c *client) {
		c.modelName = name
	}
}

// New creates a vision service backed by Vertex AI in the given project
func New(ctx context.Context, projectID, location string, opts ...Option) (Service, error) {
	if projectID == "" {
		return nil, goerr.New("project ID is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("projectID", projectID))
	}

	c := &client{
		gc:        gc,
		modelName: defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *client) Analyze(ctx context.Context, data []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(analysisPrompt),
		genai.NewPartFromBytes(data, mimeType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := c.gc.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to analyze image", goerr.V("model", c.modelName))
	}

	text := resp.Text()
	if text == "" {
		return "", goerr.New("model returned no analysis", goerr.V("model", c.modelName))
	}

	return text, nil
}
