package extractor

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/doclab/labrepair-cli/internal/model"
	"github.com/doclab/labrepair-cli/internal/repair"
)

// testPatterns groups the test names the deterministic parser recognizes.
// Matching is case-insensitive substring on the line.
var testPatterns = map[string][]string{
	"hepatitis": {
		"anti-hbs", "hbsag", "anti-hcv", "anti-hbc", "anti-hev", "hbeag",
		"anti-hb core total", "гепатит", "hepatitis",
	},
	"parasites": {
		"anti-opisthorchis", "anti-toxocara", "anti-lamblia", "anti-ascaris",
		"описторхоз", "токсокароз", "лямблиоз", "аскаридоз",
	},
	"allergy": {
		"ige", "общий ige", "аллергия", "allergy", "эозинофилы",
	},
	"biochemistry": {
		"билирубин", "алат", "асат", "ггт", "щф", "холестерин", "глюкоза",
		"креатинин", "мочевина", "мочевая кислота", "белок", "альбумин",
	},
	"hormones": {
		"ттг", "т3 свободный", "т4 свободный", "tsh",
	},
	"blood": {
		"гемоглобин", "эритроциты", "лейкоциты", "тромбоциты", "соэ",
		"гематокрит", "mcv", "mch", "mchc", "rdw",
	},
}

var (
	numberedPrefix = regexp.MustCompile(`^\d+\.\s*`)
	unitValue      = regexp.MustCompile(`\d+[.,]?\d*\s*(ме/мл|мг/л|г/л|ммоль/л|мкмоль/л|ед/л|%)`)

	dateDots  = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
	dateSlash = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)
	dateISO   = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
)

var resultWords = []string{
	"отрицательно", "положительно", "норма", "negative", "positive",
	"не обнаружено", "обнаружено",
}

// Parser extracts test records from free-form lab report text without
// calling a model. It is the fallback path when the LLM is unavailable
// and the primary path when no API key is configured.
type Parser struct {
	cleaner   *repair.Cleaner
	extractor *repair.Extractor
	fold      cases.Caser
}

// NewParser builds a Parser sharing the repair configuration so that
// cleaned values and context lookups behave identically in both paths.
func NewParser(coord *repair.Coordinator) *Parser {
	return &Parser{
		cleaner:   coord.Cleaner(),
		extractor: coord.Extractor(),
		fold:      cases.Fold(),
	}
}

// Structure scans the document line by line and returns the test records
// it can recognize. Context lookups around each matched line fill in the
// test system and equipment when labelled neighbors carry them.
func (p *Parser) Structure(content string) []model.TestRecord {
	lines := strings.Split(content, "\n")
	docDate := p.findDate(lines)

	var recs []model.TestRecord
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		rec, ok := p.parseLine(line)
		if !ok {
			continue
		}

		if v, found := p.extractor.Extract(lines, i, model.FieldTestSystem); found {
			rec.TestSystem = v
		}
		if v, found := p.extractor.Extract(lines, i, model.FieldEquipment); found {
			rec.Equipment = v
		}
		if rec.TestDate == "" {
			rec.TestDate = docDate
		}
		recs = append(recs, rec)
	}
	return recs
}

// parseLine recognizes "Name: result" lines that look like a lab test.
func (p *Parser) parseLine(line string) (model.TestRecord, bool) {
	name, rest, found := strings.Cut(line, ":")
	if !found {
		return model.TestRecord{}, false
	}

	name = numberedPrefix.ReplaceAllString(strings.TrimSpace(name), "")
	cleanName := p.cleaner.Clean(name)
	cleanResult := p.cleaner.Clean(rest)
	if p.cleaner.IsSentinel(cleanName) || p.cleaner.IsSentinel(cleanResult) {
		return model.TestRecord{}, false
	}
	if !p.looksLikeTest(cleanName, cleanResult) {
		return model.TestRecord{}, false
	}

	return model.TestRecord{
		TestName: cleanName,
		Result:   normalizeResult(cleanResult),
		TestDate: normalizeDate(rest),
	}, true
}

// looksLikeTest filters out administrative lines (patient name, doctor,
// addresses) that also use the "label: value" shape.
func (p *Parser) looksLikeTest(name, result string) bool {
	nameFolded := p.fold.String(name)
	for _, keywords := range testPatterns {
		for _, kw := range keywords {
			if strings.Contains(nameFolded, kw) {
				return true
			}
		}
	}

	resultFolded := p.fold.String(result)
	for _, w := range resultWords {
		if strings.Contains(resultFolded, w) {
			return true
		}
	}

	return unitValue.MatchString(resultFolded)
}

// normalizeResult maps the common verdict spellings to canonical forms.
func normalizeResult(result string) string {
	lower := strings.ToLower(result)
	switch {
	case strings.Contains(lower, "отриц"):
		return "отрицательно"
	case strings.Contains(lower, "полож"):
		return "положительно"
	case strings.Contains(lower, "норм"):
		return "в норме"
	}
	return result
}

// normalizeDate extracts the first recognizable date from s and returns
// it in ISO form, or "" when no date is present.
func normalizeDate(s string) string {
	if m := dateDots.FindStringSubmatch(s); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	if m := dateSlash.FindStringSubmatch(s); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1]
	}
	if m := dateISO.FindStringSubmatch(s); m != nil {
		return m[0]
	}
	return ""
}

// findDate scans the document for a report-level date used for records
// whose line carries none.
func (p *Parser) findDate(lines []string) string {
	for _, line := range lines {
		if d := normalizeDate(line); d != "" {
			return d
		}
	}
	return ""
}
