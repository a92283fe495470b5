package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doclab/labrepair-cli/internal/model"
)

func newExtractor() *Extractor {
	cfg := DefaultConfig()
	return NewExtractor(cfg, NewCleaner(cfg))
}

func TestExtract_FindsLabelledValue(t *testing.T) {
	e := newExtractor()
	lines := []string{
		"Anti-HB core total: **",
		"Тест-система: Anti-HBc, Abbott",
		"Оборудование: Abbott, Alinity i",
	}

	v, ok := e.Extract(lines, 0, model.FieldTestSystem)
	assert.True(t, ok)
	assert.Equal(t, "Anti-HBc, Abbott", v)

	v, ok = e.Extract(lines, 0, model.FieldEquipment)
	assert.True(t, ok)
	assert.Equal(t, "Abbott, Alinity i", v)
}

func TestExtract_NearestLineWins(t *testing.T) {
	e := newExtractor()
	lines := []string{
		"Оборудование: Roche, cobas e 411",
		"HBsAg: **",
		"Оборудование: Abbott, Alinity i",
	}

	// Both neighbors qualify at distance 1; the earlier line is preferred.
	v, ok := e.Extract(lines, 1, model.FieldEquipment)
	assert.True(t, ok)
	assert.Equal(t, "Roche, cobas e 411", v)
}

func TestExtract_WindowBounded(t *testing.T) {
	e := newExtractor()
	lines := []string{
		"Тест-система: Anti-HBc, Abbott",
		"",
		"",
		"HBsAg: **",
	}

	// The labelled line is 3 away; radius is 2.
	_, ok := e.Extract(lines, 3, model.FieldTestSystem)
	assert.False(t, ok)
}

func TestExtract_SkipsCorruptedAnchors(t *testing.T) {
	e := newExtractor()
	lines := []string{
		"Тест-система: **",
		"HBsAg: **",
		"Тест-система: Anti-HBc, Abbott",
	}

	v, ok := e.Extract(lines, 1, model.FieldTestSystem)
	assert.True(t, ok)
	assert.Equal(t, "Anti-HBc, Abbott", v)
}

func TestExtract_RequiresColon(t *testing.T) {
	e := newExtractor()
	lines := []string{
		"оборудование Abbott Alinity i",
		"HBsAg: **",
	}

	_, ok := e.Extract(lines, 1, model.FieldEquipment)
	assert.False(t, ok)
}

func TestExtract_DegradesOnBadInput(t *testing.T) {
	e := newExtractor()

	_, ok := e.Extract(nil, 0, model.FieldEquipment)
	assert.False(t, ok)

	_, ok = e.Extract([]string{}, 5, model.FieldResult)
	assert.False(t, ok)

	// Index far out of range: window clips to nothing.
	_, ok = e.Extract([]string{"Оборудование: Abbott"}, 40, model.FieldEquipment)
	assert.False(t, ok)

	// Negative index still reaches line 0 through clipping.
	v, ok := e.Extract([]string{"Оборудование: Abbott"}, -1, model.FieldEquipment)
	assert.True(t, ok)
	assert.Equal(t, "Abbott", v)
}

func TestExtract_CaseFolding(t *testing.T) {
	e := newExtractor()
	lines := []string{
		"ТЕСТ-СИСТЕМА: Vitros Anti-HBc",
		"Anti-HBc: **",
	}

	v, ok := e.Extract(lines, 1, model.FieldTestSystem)
	assert.True(t, ok)
	assert.Equal(t, "Vitros Anti-HBc", v)
}
