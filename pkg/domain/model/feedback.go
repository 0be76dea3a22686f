package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// MinRating and MaxRating bound the feedback rating scale
	MinRating = 1
	MaxRating = 5
)

// Feedback is a user's assessment of a model answer. Records are an
// append-only audit trail; they are never updated or deleted.
type Feedback struct {
	Timestamp   time.Time
	Question    string
	ModelAnswer string
	Rating      int
	Comments    string
}

// Validate checks the feedback record before it is written anywhere.
// An out-of-range rating must be rejected before any append happens.
func (f *Feedback) Validate() error {
	if f.Question == "" {
		return goerr.New("question is required")
	}
	if f.ModelAnswer == "" {
		return goerr.New("model answer is required")
	}
	if f.Rating < MinRating || f.Rating > MaxRating {
		return goerr.New("rating must be between 1 and 5", goerr.V("rating", f.Rating))
	}
	return nil
}
