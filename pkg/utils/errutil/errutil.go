package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/types"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    types.ErrCode `json:"code"`
	Message string        `json:"message"`
}

// HandleHTTP logs the error and writes a structured JSON error response.
// Raw error chains are never exposed to the client; only the stable code
// and the outermost message are. 5xx errors are reported to Sentry when
// the Sentry client is configured.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int, code types.ErrCode) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("HTTP error",
			"status", statusCode,
			"code", code,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error("HTTP error",
			"status", statusCode,
			"code", code,
			"error", err.Error(),
		)
	}

	if statusCode >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := errorBody{Error: errorDetail{Code: code, Message: err.Error()}}
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		logger.Error("failed to write error response", "error", encodeErr.Error())
	}
}
