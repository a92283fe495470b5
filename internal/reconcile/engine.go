// Package reconcile repairs stored test records against the documents
// they were extracted from and removes the duplicates that accumulate
// over repeated extractions.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/doclab/labrepair-cli/internal/model"
	"github.com/doclab/labrepair-cli/internal/repair"
	"github.com/doclab/labrepair-cli/internal/store"
)

// Engine walks a user's test records and repairs the marker-prone fields
// in place. Only result, test system, and equipment are ever written;
// record identity and the remaining columns stay untouched.
type Engine struct {
	store store.Store
	coord *repair.Coordinator
	fold  cases.Caser
}

// NewEngine builds a reconciliation engine over the given store.
func NewEngine(st store.Store, coord *repair.Coordinator) *Engine {
	return &Engine{
		store: st,
		coord: coord,
		fold:  cases.Fold(),
	}
}

// ReconcileUser repairs every test record of the user. Records are
// processed in stable store order, so repeated runs over the same data
// produce the same report. A record whose source document cannot be
// loaded, or whose update fails, is logged and skipped without aborting
// the batch.
func (e *Engine) ReconcileUser(ctx context.Context, userID string) (*model.RepairReport, error) {
	recs, err := e.store.ListTestRecords(ctx, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: list tests for user %s", userID)
	}

	report := &model.RepairReport{}
	corpora := make(map[string][]string)

	for i := range recs {
		rec := &recs[i]

		lines, err := e.corpusFor(ctx, corpora, rec.SourceRecordID)
		if err != nil {
			zap.L().Warn("source document unavailable",
				zap.String("test_id", rec.ID),
				zap.String("record_id", rec.SourceRecordID),
				zap.Error(err),
			)
			lines = nil
		}

		updated, changed := e.repairRecord(rec, lines)
		if !changed {
			continue
		}

		upd := diffUpdate(rec, updated)
		upd.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateTestFields(ctx, rec.ID, upd); err != nil {
			zap.L().Warn("field update failed",
				zap.String("test_id", rec.ID),
				zap.String("test_name", rec.TestName),
				zap.Error(err),
			)
			continue
		}

		report.CleanedCount++
		report.UpdatedTests = append(report.UpdatedTests, model.UpdatedTest{
			ID:            rec.ID,
			TestName:      rec.TestName,
			OldResult:     rec.Result,
			NewResult:     updated.Result,
			OldTestSystem: rec.TestSystem,
			NewTestSystem: updated.TestSystem,
			OldEquipment:  rec.Equipment,
			NewEquipment:  updated.Equipment,
		})
	}

	zap.L().Info("reconciliation complete",
		zap.String("user_id", userID),
		zap.Int("records", len(recs)),
		zap.Int("cleaned", report.CleanedCount),
	)
	return report, nil
}

// repairRecord resolves the three repairable fields of rec against its
// source document. It returns the resolved values and whether any of
// them differ from what is stored.
func (e *Engine) repairRecord(rec *model.TestRecord, lines []string) (resolved model.TestRecord, changed bool) {
	idx := e.locate(lines, rec.TestName)
	if idx < 0 {
		lines = nil
	}

	resolved = *rec
	resolved.Result = e.coord.RepairField(rec.Result, lines, idx, model.FieldResult).Value
	resolved.TestSystem = e.coord.RepairField(rec.TestSystem, lines, idx, model.FieldTestSystem).Value
	resolved.Equipment = e.coord.RepairField(rec.Equipment, lines, idx, model.FieldEquipment).Value

	changed = resolved.Result != rec.Result ||
		resolved.TestSystem != rec.TestSystem ||
		resolved.Equipment != rec.Equipment
	return resolved, changed
}

// locate finds the line the record was extracted from: the first line
// containing the test name, compared case-insensitively. Returns -1 when
// the name cannot be found.
func (e *Engine) locate(lines []string, testName string) int {
	name := e.fold.String(strings.TrimSpace(testName))
	if name == "" {
		return -1
	}
	for i, line := range lines {
		if strings.Contains(e.fold.String(line), name) {
			return i
		}
	}
	return -1
}

// corpusFor loads and caches the line-split content of a source document.
// An empty source id yields no corpus without hitting the store.
func (e *Engine) corpusFor(ctx context.Context, cache map[string][]string, recordID string) ([]string, error) {
	if recordID == "" {
		return nil, nil
	}
	if lines, ok := cache[recordID]; ok {
		return lines, nil
	}

	doc, err := e.store.GetMedicalRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		cache[recordID] = nil
		return nil, nil
	}

	lines := strings.Split(doc.Content, "\n")
	cache[recordID] = lines
	return lines, nil
}

// diffUpdate builds the partial update from old to resolved, setting only
// the fields that actually change.
func diffUpdate(old *model.TestRecord, resolved model.TestRecord) model.FieldUpdate {
	var upd model.FieldUpdate
	if resolved.Result != old.Result {
		v := resolved.Result
		upd.Result = &v
	}
	if resolved.TestSystem != old.TestSystem {
		v := resolved.TestSystem
		upd.TestSystem = &v
	}
	if resolved.Equipment != old.Equipment {
		v := resolved.Equipment
		upd.Equipment = &v
	}
	return upd
}
