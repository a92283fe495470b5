package repair

import (
	"strings"

	"github.com/doclab/labrepair-cli/internal/model"
)

// Extractor recovers a field value from the lines around the record's
// position when the direct value was marker-corrupted.
type Extractor struct {
	cfg     Config
	cleaner *Cleaner
}

// NewExtractor creates an Extractor sharing the Cleaner's heuristics.
func NewExtractor(cfg Config, cleaner *Cleaner) *Extractor {
	return &Extractor{cfg: cfg, cleaner: cleaner}
}

// Extract scans a fixed-radius window around idx for a line carrying a
// labelled value consistent with kind. Scanning moves outward from idx so
// the nearest qualifying line wins; at equal distance the earlier line is
// preferred. Out-of-range positions are clipped; an empty corpus finds
// nothing.
func (e *Extractor) Extract(lines []string, idx int, kind model.FieldKind) (string, bool) {
	if len(lines) == 0 {
		return "", false
	}

	anchors := e.anchorsFor(kind)
	if len(anchors) == 0 {
		return "", false
	}

	if idx >= 0 && idx < len(lines) {
		if v, ok := e.valueFrom(lines[idx], anchors); ok {
			return v, true
		}
	}
	for d := 1; d <= e.cfg.ExtractRadius; d++ {
		for _, i := range []int{idx - d, idx + d} {
			if i < 0 || i >= len(lines) {
				continue
			}
			if v, ok := e.valueFrom(lines[i], anchors); ok {
				return v, true
			}
		}
	}
	return "", false
}

// valueFrom extracts the labelled value from one line: the line must
// contain an anchor keyword and a colon; the after-colon part must clean
// to a real value.
func (e *Extractor) valueFrom(line string, anchors []string) (string, bool) {
	folded := fold.String(line)

	matched := false
	for _, a := range anchors {
		if strings.Contains(folded, fold.String(a)) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	_, rest, found := strings.Cut(line, ":")
	if !found {
		return "", false
	}

	v := e.cleaner.Clean(rest)
	if e.cleaner.IsSentinel(v) {
		return "", false
	}
	return v, true
}

func (e *Extractor) anchorsFor(kind model.FieldKind) []string {
	switch kind {
	case model.FieldResult:
		return e.cfg.ResultAnchors
	case model.FieldTestSystem:
		return e.cfg.SystemAnchors
	case model.FieldEquipment:
		return e.cfg.EquipmentAnchors
	default:
		return nil
	}
}
