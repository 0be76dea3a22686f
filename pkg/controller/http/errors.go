package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/esg-lab/pythia/pkg/domain/types"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/usecase"
	"github.com/esg-lab/pythia/pkg/utils/errutil"
)

// handleError maps a use case error to its stable code and HTTP status.
// Upstream model failures surface as 502, store outages as 503; anything
// without a more specific code falls through to 500 internal.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := classify(err)
	errutil.HandleHTTP(ctx, w, err, status, code)
}

func classify(err error) (int, types.ErrCode) {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return http.StatusBadRequest, types.ErrCodeValidation
	case errors.Is(err, usecase.ErrEmbedding):
		return http.StatusBadGateway, types.ErrCodeEmbedding
	case errors.Is(err, usecase.ErrGeneration):
		return http.StatusBadGateway, types.ErrCodeGeneration
	case errors.Is(err, usecase.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, types.ErrCodeStoreUnavailable
	case errors.Is(err, index.ErrDimensionMismatch):
		return http.StatusInternalServerError, types.ErrCodeDimensionMismatch
	case errors.Is(err, index.ErrEmptyIndex):
		return http.StatusInternalServerError, types.ErrCodeEmptyIndex
	default:
		return http.StatusInternalServerError, types.ErrCodeInternal
	}
}
