package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/urfave/cli/v3"
)

// Gemini holds configuration for the Gemini LLM clients
type Gemini struct {
	projectID string
	location  string
	models    []string
}

// Flags returns CLI flags for Gemini configuration
func (g *Gemini) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("PYTHIA_GEMINI_PROJECT"),
			Destination: &g.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("PYTHIA_GEMINI_LOCATION"),
			Destination: &g.location,
		},
		&cli.StringSliceFlag{
			Name:        "gemini-model",
			Usage:       "Selectable generative model names; the first one is the default",
			Value:       []string{"gemini-2.0-flash"},
			Sources:     cli.EnvVars("PYTHIA_GEMINI_MODEL"),
			Destination: &g.models,
		},
	}
}

// ProjectID returns the configured Google Cloud project ID
func (g *Gemini) ProjectID() string {
	return g.projectID
}

// Location returns the configured Google Cloud location
func (g *Gemini) Location() string {
	return g.location
}

// LogAttrs returns log attributes for the Gemini configuration
func (g *Gemini) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("project_id", g.projectID),
		slog.String("location", g.location),
		slog.Any("models", g.models),
	}
}

// Configure creates one Gemini client per configured model name. The first
// name is the default model serving requests that do not pick one.
func (g *Gemini) Configure(ctx context.Context) (map[string]gollem.LLMClient, string, error) {
	if g.projectID == "" {
		return nil, "", goerr.New("gemini-project is required")
	}
	if len(g.models) == 0 {
		return nil, "", goerr.New("at least one gemini-model is required")
	}

	llms := make(map[string]gollem.LLMClient, len(g.models))
	for _, name := range g.models {
		client, err := gemini.New(ctx, g.projectID, g.location, gemini.WithModel(name))
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to create Gemini client", goerr.V("model", name))
		}
		llms[name] = client
	}

	return llms, g.models[0], nil
}
