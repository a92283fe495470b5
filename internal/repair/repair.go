package repair

import "github.com/doclab/labrepair-cli/internal/model"

// Coordinator drives the per-field resolution order: direct clean, then
// context extraction, then keyword search, stopping at the first success.
// It is a pure function over its inputs; logging the chosen method is the
// caller's concern.
type Coordinator struct {
	cfg       Config
	cleaner   *Cleaner
	extractor *Extractor
	searcher  *Searcher
}

// New builds a Coordinator and its component heuristics from cfg.
func New(cfg Config) *Coordinator {
	cleaner := NewCleaner(cfg)
	return &Coordinator{
		cfg:       cfg,
		cleaner:   cleaner,
		extractor: NewExtractor(cfg, cleaner),
		searcher:  NewSearcher(cfg, cleaner),
	}
}

// Cleaner exposes the coordinator's value cleaner.
func (c *Coordinator) Cleaner() *Cleaner {
	return c.cleaner
}

// Extractor exposes the coordinator's context extractor.
func (c *Coordinator) Extractor() *Extractor {
	return c.extractor
}

// RepairField resolves one raw field value against its line corpus.
//
// Order: a usable direct clean wins outright. Context heuristics run only
// when the raw text carried a formatting marker; absent data written
// without markers stays unspecified rather than being fabricated. The
// keyword search applies to the result field only.
func (c *Coordinator) RepairField(raw string, lines []string, idx int, kind model.FieldKind) model.CleanedValue {
	if v := c.cleaner.Clean(raw); !c.cleaner.IsSentinel(v) {
		return model.CleanedValue{Value: v, Method: model.MethodDirectClean}
	}

	if HasMarker(raw) {
		if found, ok := c.extractor.Extract(lines, idx, kind); ok {
			if v := c.cleaner.Clean(found); !c.cleaner.IsSentinel(v) {
				return model.CleanedValue{Value: v, Method: model.MethodContextExtract}
			}
		}

		if kind == model.FieldResult {
			if found, ok := c.searcher.Search(lines, idx); ok {
				return model.CleanedValue{Value: found, Method: model.MethodKeywordSearch}
			}
		}
	}

	return model.CleanedValue{Value: c.cfg.Sentinel, IsUnspecified: true}
}
