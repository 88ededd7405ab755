package models

import "time"

// Query is the structured form of a user question, immutable after parsing.
type Query struct {
	RawText    string
	Domain     string
	TargetDate time.Time
	Intent     string
}

// Snapshot identifies a single archived capture of a page.
type Snapshot struct {
	Timestamp   string // 14-digit Wayback timestamp, YYYYMMDDhhmmss
	OriginalURL string
	Captured    time.Time
}

// ExtractedContent is the deterministic output of the content extractor.
type ExtractedContent struct {
	NormalizedText string
	Signals        map[string][]string
}

// Empty reports whether extraction produced nothing usable.
func (e ExtractedContent) Empty() bool {
	if e.NormalizedText != "" {
		return false
	}
	for _, vals := range e.Signals {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

// AnalysisRequest carries everything the analyzer needs for one LLM call.
type AnalysisRequest struct {
	Domain       string
	SnapshotDate time.Time
	Content      string
	Intent       string
	Question     string
}

// Analysis is the parsed output of an LLM call. When the response did not
// match the expected sectioned shape, Findings is empty and Raw carries the
// verbatim text.
type Analysis struct {
	Summary  string
	Findings map[string]string
	Raw      string
}

// Result is the rendered answer to a single question.
type Result struct {
	Response     string    `json:"response"`
	Domain       string    `json:"domain"`
	TargetDate   time.Time `json:"target_date"`
	SnapshotDate time.Time `json:"snapshot_date"`
	WaybackURL   string    `json:"wayback_url"`
	FromCache    bool      `json:"from_cache"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// CacheEntry is one whole-unit cache record keyed by fingerprint.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Result      Result    `json:"result"`
	Timestamp   time.Time `json:"timestamp"`
}
