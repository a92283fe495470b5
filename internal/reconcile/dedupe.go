package reconcile

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/model"
)

// DedupeUser removes duplicate test records for the user, keeping the
// newest record of each (name, result, date) group. Returns the number
// of records deleted.
func (e *Engine) DedupeUser(ctx context.Context, userID string) (int, error) {
	recs, err := e.store.ListTestRecords(ctx, userID)
	if err != nil {
		return 0, eris.Wrapf(err, "reconcile: list tests for user %s", userID)
	}

	seen := make(map[string]bool)
	deleted := 0

	// Store order is oldest first; walk backwards so the newest copy of
	// each group is the one kept.
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		key := e.dedupeKey(rec.TestName, rec.Result, rec.TestDate)
		if !seen[key] {
			seen[key] = true
			continue
		}

		if err := e.store.DeleteTestRecord(ctx, rec.ID); err != nil {
			zap.L().Warn("duplicate delete failed",
				zap.String("test_id", rec.ID),
				zap.String("test_name", rec.TestName),
				zap.Error(err),
			)
			continue
		}
		deleted++
		zap.L().Debug("duplicate removed",
			zap.String("test_id", rec.ID),
			zap.String("test_name", rec.TestName),
		)
	}

	zap.L().Info("deduplication complete",
		zap.String("user_id", userID),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

func (e *Engine) dedupeKey(name, result, date string) string {
	return e.fold.String(strings.TrimSpace(name)) + "|" +
		e.fold.String(strings.TrimSpace(result)) + "|" +
		strings.TrimSpace(date)
}

// CleanupUser runs field repair followed by deduplication, the combined
// maintenance pass behind the cleanup command.
func (e *Engine) CleanupUser(ctx context.Context, userID string) (*model.CleanupSummary, error) {
	report, err := e.ReconcileUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	deleted, err := e.DedupeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.CleanupSummary{
		CleanedCount:      report.CleanedCount,
		DeletedDuplicates: deleted,
		UpdatedTests:      report.UpdatedTests,
	}, nil
}
