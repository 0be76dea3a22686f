package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/model"
)

// SubmitFeedback validates and durably appends one feedback record.
// Validation failures reject the record before anything is written.
func (uc *UseCases) SubmitFeedback(ctx context.Context, rec *model.Feedback) error {
	if err := rec.Validate(); err != nil {
		return goerr.Wrap(ErrValidation, "invalid feedback", goerr.V("cause", err.Error()))
	}

	if uc.feedbackLog == nil {
		return goerr.New("feedback log is not configured")
	}

	if err := uc.feedbackLog.Append(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to append feedback")
	}

	return nil
}
