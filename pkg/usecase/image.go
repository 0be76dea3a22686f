package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// AnalyzeImage forwards image bytes to the vision model and returns its
// free-text analysis. The path never touches the vector index.
func (uc *UseCases) AnalyzeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", goerr.Wrap(ErrValidation, "image data is empty")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", goerr.Wrap(ErrValidation, "unsupported content type", goerr.V("mime_type", mimeType))
	}
	if uc.visionSvc == nil {
		return "", goerr.Wrap(ErrGeneration, "vision service is not configured")
	}

	analysis, err := uc.visionSvc.Analyze(ctx, data, mimeType)
	if err != nil {
		return "", goerr.Wrap(ErrGeneration, "image analysis failed", goerr.V("cause", err.Error()))
	}

	return analysis, nil
}
