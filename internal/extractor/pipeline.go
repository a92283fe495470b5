package extractor

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/model"
	"github.com/doclab/labrepair-cli/internal/repair"
)

// Structurer turns raw document text into test records.
type Structurer interface {
	Structure(ctx context.Context, content string) ([]model.TestRecord, error)
}

// ParserStructurer adapts the deterministic Parser to the Structurer
// interface for runs without a model.
type ParserStructurer struct {
	parser *Parser
}

func NewParserStructurer(p *Parser) *ParserStructurer {
	return &ParserStructurer{parser: p}
}

func (s *ParserStructurer) Structure(_ context.Context, content string) ([]model.TestRecord, error) {
	return s.parser.Structure(content), nil
}

// recordSource is the slice of the store the pipeline reads from and
// writes to.
type recordSource interface {
	ListMedicalRecords(ctx context.Context, userID string, limit int) ([]model.MedicalRecord, error)
	InsertTestRecord(ctx context.Context, rec *model.TestRecord) (bool, error)
}

// Pipeline re-extracts structured test records from a user's stored
// documents.
type Pipeline struct {
	source     recordSource
	structurer Structurer
	cleaner    *repair.Cleaner
}

// NewPipeline builds an extraction pipeline over the given source.
func NewPipeline(source recordSource, structurer Structurer, cleaner *repair.Cleaner) *Pipeline {
	return &Pipeline{source: source, structurer: structurer, cleaner: cleaner}
}

// Run structures every stored document for the user and inserts the
// resulting records. Duplicate (test name, date) pairs are dropped by
// the store's uniqueness constraint. A document that fails to structure
// is logged and skipped; it does not abort the run.
func (p *Pipeline) Run(ctx context.Context, userID string) (*model.ReprocessSummary, error) {
	docs, err := p.source.ListMedicalRecords(ctx, userID, 1000)
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: list documents for user %s", userID)
	}

	summary := &model.ReprocessSummary{}
	for _, doc := range docs {
		recs, err := p.structurer.Structure(ctx, doc.Content)
		if err != nil {
			if ctx.Err() != nil {
				return summary, err
			}
			zap.L().Warn("document structuring failed",
				zap.String("user_id", userID),
				zap.String("record_id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		summary.RecordsProcessed++

		for i := range recs {
			rec := &recs[i]
			p.sanitize(rec)
			if !p.valid(rec) {
				continue
			}
			rec.UserID = userID
			rec.SourceRecordID = doc.ID

			inserted, err := p.source.InsertTestRecord(ctx, rec)
			if err != nil {
				zap.L().Warn("insert failed",
					zap.String("test_name", rec.TestName),
					zap.Error(err),
				)
				continue
			}
			if inserted {
				summary.TestsCount++
			}
		}
	}

	zap.L().Info("extraction complete",
		zap.String("user_id", userID),
		zap.Int("documents", summary.RecordsProcessed),
		zap.Int("tests", summary.TestsCount),
	)
	return summary, nil
}

// sanitize strips corruption markers from every free-text field. Fields
// the model left empty stay empty rather than becoming the placeholder.
func (p *Pipeline) sanitize(rec *model.TestRecord) {
	rec.TestName = p.cleanKeepEmpty(rec.TestName)
	rec.Result = p.cleanKeepEmpty(rec.Result)
	rec.ReferenceValues = p.cleanKeepEmpty(rec.ReferenceValues)
	rec.Units = p.cleanKeepEmpty(rec.Units)
	rec.TestSystem = p.cleanKeepEmpty(rec.TestSystem)
	rec.Equipment = p.cleanKeepEmpty(rec.Equipment)
	rec.TestDate = p.cleanKeepEmpty(rec.TestDate)
}

func (p *Pipeline) cleanKeepEmpty(v string) string {
	if v == "" {
		return ""
	}
	cleaned := p.cleaner.Clean(v)
	if p.cleaner.IsSentinel(cleaned) {
		return ""
	}
	return cleaned
}

// valid requires at least a name and a usable result.
func (p *Pipeline) valid(rec *model.TestRecord) bool {
	return rec.TestName != "" && rec.Result != ""
}
