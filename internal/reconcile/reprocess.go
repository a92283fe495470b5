package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/model"
	"github.com/doclab/labrepair-cli/internal/store"
)

// ExtractionRunner re-extracts structured records from a user's stored
// documents. Satisfied by extractor.Pipeline.
type ExtractionRunner interface {
	Run(ctx context.Context, userID string) (*model.ReprocessSummary, error)
}

// Reprocessor performs the destructive delete-then-reextract operation.
// Every phase transition is written to the store before the next phase
// starts, so a crash leaves a resumable intent rather than silent data
// loss.
type Reprocessor struct {
	store    store.Store
	pipeline ExtractionRunner
}

// NewReprocessor builds a reprocessor over the given store and pipeline.
func NewReprocessor(st store.Store, pipeline ExtractionRunner) *Reprocessor {
	return &Reprocessor{store: st, pipeline: pipeline}
}

// Run deletes the user's structured records and rebuilds them from the
// stored documents. The returned summary reflects the rebuild.
func (r *Reprocessor) Run(ctx context.Context, userID string) (*model.ReprocessSummary, error) {
	intent, err := r.store.CreateReprocessIntent(ctx, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "reprocess: create intent for user %s", userID)
	}
	return r.execute(ctx, intent)
}

// Resume picks up intents a previous run left unfinished. Intents still
// pending delete restart from the beginning; intents that already
// deleted records go straight to extraction.
func (r *Reprocessor) Resume(ctx context.Context, userID string) (*model.ReprocessSummary, error) {
	intents, err := r.store.ListPendingReprocess(ctx, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "reprocess: list pending for user %s", userID)
	}
	if len(intents) == 0 {
		return nil, nil
	}

	var last *model.ReprocessSummary
	for i := range intents {
		intent := &intents[i]
		zap.L().Info("resuming reprocess",
			zap.String("intent_id", intent.ID),
			zap.String("phase", string(intent.Phase)),
		)

		var summary *model.ReprocessSummary
		if intent.Phase == model.ReprocessDeleted {
			summary, err = r.extract(ctx, intent)
		} else {
			summary, err = r.execute(ctx, intent)
		}
		if err != nil {
			return nil, err
		}
		last = summary
	}
	return last, nil
}

func (r *Reprocessor) execute(ctx context.Context, intent *model.ReprocessIntent) (*model.ReprocessSummary, error) {
	deleted, err := r.store.DeleteUserTests(ctx, intent.UserID)
	if err != nil {
		r.fail(ctx, intent, err)
		return nil, eris.Wrapf(err, "reprocess: delete tests for user %s", intent.UserID)
	}

	intent.Phase = model.ReprocessDeleted
	intent.DeletedCount = deleted
	if err := r.store.UpdateReprocessIntent(ctx, intent); err != nil {
		return nil, eris.Wrap(err, "reprocess: record delete phase")
	}
	zap.L().Info("structured records deleted",
		zap.String("user_id", intent.UserID),
		zap.Int("deleted", deleted),
	)

	return r.extract(ctx, intent)
}

func (r *Reprocessor) extract(ctx context.Context, intent *model.ReprocessIntent) (*model.ReprocessSummary, error) {
	summary, err := r.pipeline.Run(ctx, intent.UserID)
	if err != nil {
		// Records are already gone; keep the intent in the deleted phase
		// with the error recorded so Resume can retry the rebuild.
		intent.Error = err.Error()
		if uerr := r.store.UpdateReprocessIntent(ctx, intent); uerr != nil {
			zap.L().Error("failed to record extraction error",
				zap.String("intent_id", intent.ID),
				zap.Error(uerr),
			)
		}
		return nil, eris.Wrapf(err, "reprocess: extract for user %s", intent.UserID)
	}

	intent.Phase = model.ReprocessComplete
	intent.ExtractedCount = summary.TestsCount
	intent.Error = ""
	if err := r.store.UpdateReprocessIntent(ctx, intent); err != nil {
		return nil, eris.Wrap(err, "reprocess: record completion")
	}

	zap.L().Info("reprocess complete",
		zap.String("user_id", intent.UserID),
		zap.Int("deleted", intent.DeletedCount),
		zap.Int("extracted", intent.ExtractedCount),
	)
	return summary, nil
}

// fail marks the intent failed, keeping the original error as the one
// reported to the caller.
func (r *Reprocessor) fail(ctx context.Context, intent *model.ReprocessIntent, cause error) {
	intent.Phase = model.ReprocessFailed
	intent.Error = cause.Error()
	if err := r.store.UpdateReprocessIntent(ctx, intent); err != nil {
		zap.L().Error("failed to record reprocess failure",
			zap.String("intent_id", intent.ID),
			zap.Error(err),
		)
	}
}
