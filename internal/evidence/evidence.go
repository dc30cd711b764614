// Package evidence defines the atomic retrieved-record and output types
// threaded through a research execution (spec §3: Evidence, Citation,
// Section).
package evidence

import "time"

// Evidence is one atomic retrieved fact-bearing record. Every Evidence
// produced by a step carries a non-empty SourceTool (spec §3 invariant).
type Evidence struct {
	URL         string
	Title       string
	Snippet     string
	PublishedAt *time.Time
	SourceTool  string
	Relevance   *float64
	// Raw is the adapter's opaque payload, carried through to Finalize for
	// richer synthesis than the normalized fields allow.
	Raw any
}

// Identity returns the (normalized URL, normalized title) key the Research
// Phase Controller dedups on (spec §4.5).
func (e Evidence) Identity() (string, string) {
	return NormalizeURL(e.URL), NormalizeTitle(e.Title)
}

// Citation is an Evidence promoted into the final briefing. It carries the
// originating Evidence's URL/Title when available (spec §3 invariant).
type Citation struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt *time.Time
}

// Section is one heading+body block of the synthesized briefing, plus the
// indices (into the evidence slice given to Finalize) the writer cited.
type Section struct {
	Heading      string
	Body         string
	CitedIndices []int
}

// Usage is an optional cost/token record an adapter call reports for
// observability (spec §4.1).
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
