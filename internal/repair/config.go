// Package repair implements the field-repair and contextual-value-recovery
// core: cleaning marker-corrupted field values and recovering real values
// from the surrounding document lines.
package repair

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds the repair heuristics. Keyword lists are open sets of
// domain vocabulary; new clinical terms are added here (or in the YAML
// overlay), never in the resolution logic.
type Config struct {
	// Sentinel is the canonical "unspecified" value. Downstream display
	// logic matches on this exact string.
	Sentinel string `yaml:"sentinel"`

	// ExtractRadius bounds the context-extraction window (lines in each
	// direction around the record's line).
	ExtractRadius int `yaml:"extract_radius"`

	// SearchRadius bounds the last-resort keyword search window.
	SearchRadius int `yaml:"search_radius"`

	// Anchor keywords identify lines that carry a labelled value for a
	// given field kind ("Тест-система: ...", "Equipment: ...").
	ResultAnchors    []string `yaml:"result_anchors"`
	SystemAnchors    []string `yaml:"system_anchors"`
	EquipmentAnchors []string `yaml:"equipment_anchors"`

	// ResultKeywords are the clinical-result terms the wide search looks
	// for: polarity and magnitude vocabulary in both locales.
	ResultKeywords []string `yaml:"result_keywords"`

	// NullWords are values equivalent to "nothing here" after cleaning.
	NullWords []string `yaml:"null_words"`
}

// DefaultConfig returns the built-in heuristic configuration.
func DefaultConfig() Config {
	return Config{
		Sentinel:      "Не указан",
		ExtractRadius: 2,
		SearchRadius:  10,
		ResultAnchors: []string{"результат", "result"},
		SystemAnchors: []string{"тест-система", "тест система", "test-system", "test system"},
		EquipmentAnchors: []string{
			"оборудование", "анализатор", "equipment", "analyzer", "analyser",
		},
		ResultKeywords: []string{
			// polarity
			"отрицательно", "положительно", "negative", "positive",
			"не обнаружено", "обнаружено", "not detected", "detected",
			// magnitude
			"повышен", "понижен", "elevated", "decreased", "high", "low",
			"норма", "в норме", "within normal range",
		},
		NullWords: []string{
			"не указан", "не указано", "не указана", "not specified",
			"null", "none", "n/a",
		},
	}
}

// LoadConfig reads a heuristic overlay from a YAML file and merges it over
// the defaults. Empty fields in the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "repair: read config %s", path)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, eris.Wrapf(err, "repair: parse config %s", path)
	}

	if overlay.Sentinel != "" {
		cfg.Sentinel = overlay.Sentinel
	}
	if overlay.ExtractRadius > 0 {
		cfg.ExtractRadius = overlay.ExtractRadius
	}
	if overlay.SearchRadius > 0 {
		cfg.SearchRadius = overlay.SearchRadius
	}
	if len(overlay.ResultAnchors) > 0 {
		cfg.ResultAnchors = overlay.ResultAnchors
	}
	if len(overlay.SystemAnchors) > 0 {
		cfg.SystemAnchors = overlay.SystemAnchors
	}
	if len(overlay.EquipmentAnchors) > 0 {
		cfg.EquipmentAnchors = overlay.EquipmentAnchors
	}
	if len(overlay.ResultKeywords) > 0 {
		cfg.ResultKeywords = overlay.ResultKeywords
	}
	if len(overlay.NullWords) > 0 {
		cfg.NullWords = overlay.NullWords
	}

	return cfg, cfg.Validate()
}

// Validate checks that a Config is internally consistent.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Sentinel) == "" {
		errs = append(errs, "sentinel must not be empty")
	}
	if c.ExtractRadius <= 0 {
		errs = append(errs, "extract_radius must be > 0")
	}
	if c.SearchRadius <= 0 {
		errs = append(errs, "search_radius must be > 0")
	}
	if c.SearchRadius < c.ExtractRadius {
		errs = append(errs, "search_radius must be >= extract_radius")
	}
	if len(c.ResultKeywords) == 0 {
		errs = append(errs, "result_keywords must not be empty")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("repair config invalid: %s", strings.Join(errs, "; ")))
	}
	return nil
}
