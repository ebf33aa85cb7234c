package resolver

import "sync"

// ColumnCandidates defines possible header names for auto-detecting CSV/TSV columns.
type ColumnCandidates struct {
	Code   []string `json:"code"`
	Phrase []string `json:"phrase"`
	Query  []string `json:"query"`
	ID     []string `json:"id"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Code:   []string{"code", "pid", "command", "obd_code"},
		Phrase: []string{"phrase", "sentence", "example", "utterance"},
		Query:  []string{"query", "text", "question", "prompt", "message"},
		ID:     []string{"id", "index", "no"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// SetColumnCandidates updates the column detection candidates used during auto-detection.
// Fields left nil fall back to the built-in defaults.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Code:   pickStrings(c.Code, defaults.Code),
		Phrase: pickStrings(c.Phrase, defaults.Phrase),
		Query:  pickStrings(c.Query, defaults.Query),
		ID:     pickStrings(c.ID, defaults.ID),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Code:   cloneStrings(c.Code),
		Phrase: cloneStrings(c.Phrase),
		Query:  cloneStrings(c.Query),
		ID:     cloneStrings(c.ID),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
