package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	FoundMarker    = "FOUND"
	NotFoundMarker = "NOT_FOUND"

	NothingFoundText = "No results found."
)

// IsRelevant reports whether a per-chunk response carries the positive marker.
// The marker must open a line as a whole word; NOT_FOUND never matches.
func IsRelevant(response string) bool {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "*`#> ")
		rest, ok := strings.CutPrefix(line, FoundMarker)
		if !ok {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(rest); rest == "" || !isWordRune(next) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type CompletionRequest struct {
	System string
	Prompt string
	Model  string
}

type SearchRequest struct {
	Root        string
	Question    string
	Model       string
	Concurrency int
	MaxTokens   int
}

type QueryResult struct {
	ChunkIndex  int         `json:"chunk"`
	Files       []string    `json:"files"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Response    string      `json:"response,omitempty"`
	Relevant    bool        `json:"relevant"`
	Cached      bool        `json:"cached"`
	Err         error       `json:"-"`
}

// Error returns the failure text of the chunk query, empty on success.
func (r QueryResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type FinalAnswer struct {
	Text         string `json:"text"`
	NothingFound bool   `json:"nothing_found"`
}

type SearchStats struct {
	Chunks       int           `json:"chunks"`
	Relevant     int           `json:"relevant"`
	CacheHits    int           `json:"cache_hits"`
	BackendCalls int           `json:"backend_calls"`
	Failures     int           `json:"failures"`
	Duration     time.Duration `json:"duration_ns"`
}

type SearchReport struct {
	Question string        `json:"question"`
	Model    string        `json:"model"`
	Answer   FinalAnswer   `json:"answer"`
	Results  []QueryResult `json:"results"`
	Stats    SearchStats   `json:"stats"`
}

// SearchSummary is the outward view of a report shared by the CLI and the API.
type SearchSummary struct {
	Answer       string      `json:"answer"`
	NothingFound bool        `json:"nothing_found"`
	Matches      []string    `json:"matches"`
	Stats        SearchStats `json:"stats"`
}

type SearchJobStatus string

const (
	JobQueued  SearchJobStatus = "queued"
	JobRunning SearchJobStatus = "running"
	JobDone    SearchJobStatus = "done"
	JobFailed  SearchJobStatus = "failed"
)

type SearchJob struct {
	ID           string          `json:"id"`
	Repository   string          `json:"repository"`
	Question     string          `json:"question"`
	Model        string          `json:"model,omitempty"`
	Status       SearchJobStatus `json:"status"`
	Answer       string          `json:"answer,omitempty"`
	NothingFound bool            `json:"nothing_found"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
