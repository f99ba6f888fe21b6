// Package memoryservice implements the specification's MemoryService
// component: store_qa, query_qa, merge_knowledge, and the
// knowledge://{topic}/{query} resource lookup. Grounded on the
// teacher's internal/memory.MemoryService — same shape (a struct
// holding the store + embedder + config, orchestrating multiple calls
// per public method) generalized from episodic/semantic/procedural
// stores to the single Store used here.
package memoryservice

// QAPair is one (question, answer) exchange passed to the sampling
// prompt during merge_knowledge.
type QAPair struct {
	Question string
	Answer   string
}

// MergeCandidate is a non-binding suggestion returned by store_qa that
// the caller may act on by invoking merge_knowledge.
type MergeCandidate struct {
	Question string  `json:"question"`
	Distance float64 `json:"distance"`
}

// StoreQAResult is the response shape of store_qa.
type StoreQAResult struct {
	Stored          bool             `json:"stored"`
	Topic           string           `json:"topic"`
	MergeCandidates []MergeCandidate `json:"merge_candidates"`
}

// QAResultItem is one row of query_qa's results array.
type QAResultItem struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// QueryQAResult is the response shape of query_qa. Topic is nil on a
// cold-start miss.
type QueryQAResult struct {
	Topic   *string        `json:"topic,omitempty"`
	Results []QAResultItem `json:"results"`
}

// MergedEntry describes one Knowledge entry created by merge_knowledge.
type MergedEntry struct {
	Text            string   `json:"text"`
	Topic           string   `json:"topic"`
	SourceQuestions []string `json:"source_questions"`
}

// MergeResult is the response shape of merge_knowledge. Skipped counts
// components whose sampling request failed (denied, timed out,
// malformed reply) or whose distilled text could not be embedded or
// stored as a Knowledge entry.
type MergeResult struct {
	Merged  []MergedEntry `json:"merged"`
	Skipped int           `json:"skipped"`
}
