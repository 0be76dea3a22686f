package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

// Profile holds the CLI flag for the assistant profile file
type Profile struct {
	path string
}

// profileFile is the TOML shape of a profile file
type profileFile struct {
	Preamble  string            `toml:"preamble"`
	Languages []profileLanguage `toml:"language"`
}

type profileLanguage struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Instruction string `toml:"instruction"`
}

// Flags returns CLI flags for profile configuration
func (p *Profile) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "Assistant profile TOML file (empty for built-in defaults)",
			Sources:     cli.EnvVars("PYTHIA_PROFILE"),
			Destination: &p.path,
		},
	}
}

// Configure loads and validates the assistant profile. Without a path the
// built-in defaults are used.
func (p *Profile) Configure() (*model.Profile, error) {
	if p.path == "" {
		return model.DefaultProfile(), nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read profile file", goerr.V("path", p.path))
	}

	var file profileFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse profile file", goerr.V("path", p.path))
	}

	profile := &model.Profile{
		Preamble: file.Preamble,
	}
	if profile.Preamble == "" {
		profile.Preamble = model.DefaultProfile().Preamble
	}
	for _, lang := range file.Languages {
		profile.Languages = append(profile.Languages, model.LanguageSpec{
			ID:          lang.ID,
			Name:        lang.Name,
			Instruction: lang.Instruction,
		})
	}
	if len(profile.Languages) == 0 {
		profile.Languages = model.DefaultProfile().Languages
	}

	if err := profile.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid profile", goerr.V("path", p.path))
	}

	logging.Default().Info("Loaded assistant profile", "path", p.path, "languages", len(profile.Languages))
	return profile, nil
}
