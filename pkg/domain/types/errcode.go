package types

// ErrCode is a stable, machine-readable error code surfaced in API error
// responses. Codes never change once released; clients switch on them.
type ErrCode string

const (
	// ErrCodeDimensionMismatch: an embedding's length differs from the index dimension
	ErrCodeDimensionMismatch ErrCode = "dimension_mismatch"
	// ErrCodeEmptyIndex: a search was attempted against an index with no entries
	ErrCodeEmptyIndex ErrCode = "empty_index"
	// ErrCodeEmbedding: the embedding service call failed
	ErrCodeEmbedding ErrCode = "embedding_error"
	// ErrCodeGeneration: the generative model call failed after retry
	ErrCodeGeneration ErrCode = "generation_error"
	// ErrCodeStoreUnavailable: the document store could not be reached
	ErrCodeStoreUnavailable ErrCode = "store_unavailable"
	// ErrCodeValidation: the request payload is malformed or out of range
	ErrCodeValidation ErrCode = "validation"
	// ErrCodeInternal: any failure not covered by a more specific code
	ErrCodeInternal ErrCode = "internal"
)

// String returns the code as a plain string
func (c ErrCode) String() string {
	return string(c)
}
