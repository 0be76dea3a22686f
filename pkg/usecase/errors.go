package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for the query engine boundary. Downstream failures are
// wrapped into one of these so the HTTP layer can map them to stable codes.
var (
	ErrValidation       = goerr.New("invalid request")
	ErrEmbedding        = goerr.New("embedding generation failed")
	ErrGeneration       = goerr.New("content generation failed")
	ErrStoreUnavailable = goerr.New("document store unavailable")
)
