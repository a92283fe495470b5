package repair

import "strings"

// Searcher is the last-resort heuristic for the result field: a wide
// bounded scan for lines mentioning clinical-result vocabulary. It is
// intentionally the widest and least precise stage.
type Searcher struct {
	cfg     Config
	cleaner *Cleaner
}

// NewSearcher creates a Searcher sharing the Cleaner's heuristics.
func NewSearcher(cfg Config, cleaner *Cleaner) *Searcher {
	return &Searcher{cfg: cfg, cleaner: cleaner}
}

// Search scans SearchRadius lines each direction around idx, clipped to
// the corpus, in corpus order. The first line containing a result keyword
// is cleaned (the after-colon part when the line is labelled, otherwise
// the whole line); a non-sentinel value is returned as found.
func (s *Searcher) Search(lines []string, idx int) (string, bool) {
	if len(lines) == 0 {
		return "", false
	}

	lo := idx - s.cfg.SearchRadius
	if lo < 0 {
		lo = 0
	}
	hi := idx + s.cfg.SearchRadius
	if hi > len(lines)-1 {
		hi = len(lines) - 1
	}

	for i := lo; i <= hi; i++ {
		folded := fold.String(lines[i])

		matched := false
		for _, kw := range s.cfg.ResultKeywords {
			if strings.Contains(folded, fold.String(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		candidate := lines[i]
		if _, rest, found := strings.Cut(candidate, ":"); found {
			candidate = rest
		}

		v := s.cleaner.Clean(candidate)
		if !s.cleaner.IsSentinel(v) {
			return v, true
		}
	}
	return "", false
}
