package store

import "context"

// Store is the contract MemoryService, RecallEndpoint, and the
// persistence reconciler all program against. The sole implementation
// (Badger) owns the on-disk database files exclusively; no component
// above this interface may open a second writer.
type Store interface {
	// UpsertTopic returns the name of the topic vec should be filed
	// under: the nearest existing topic if its distance is within
	// TOPIC_DEDUP_THRESHOLD, otherwise name itself after inserting it.
	UpsertTopic(ctx context.Context, name string, vec []float32) (string, error)

	// NearestTopic returns the single closest topic, or nil if no
	// topics exist yet.
	NearestTopic(ctx context.Context, vec []float32) (*TopicMatch, error)

	// InsertQA appends a QaRecord, assigning an ID if rec.ID is empty.
	// Never checks for duplicates.
	InsertQA(ctx context.Context, rec QaRecord) (QaRecord, error)

	// SearchQA returns unmerged records in topic ordered by ascending
	// distance from vec, truncated to limit.
	SearchQA(ctx context.Context, topic string, vec []float32, limit int) ([]QaResult, error)

	// SimilarQAWithinTopic returns every unmerged record in topic
	// whose distance from vec is <= threshold.
	SimilarQAWithinTopic(ctx context.Context, topic string, vec []float32, threshold float64) ([]QaResult, error)

	// InsertKnowledge appends a Knowledge entry, assigning an ID if
	// k.ID is empty.
	InsertKnowledge(ctx context.Context, k Knowledge) (Knowledge, error)

	// SearchKnowledge returns Knowledge entries in topic ordered by
	// ascending distance from vec, truncated to limit.
	SearchKnowledge(ctx context.Context, topic string, vec []float32, limit int) ([]KnowledgeResult, error)

	// MarkQAMerged flips merged=true for every id given. Partial
	// failure leaves unmentioned ids untouched.
	MarkQAMerged(ctx context.Context, ids []string) error

	// AllTopics, AllQA, and AllKnowledge enumerate whole tables for
	// snapshotting.
	AllTopics(ctx context.Context) ([]Topic, error)
	AllQA(ctx context.Context) ([]QaRecord, error)
	AllKnowledge(ctx context.Context) ([]Knowledge, error)

	// InsertTopicRaw inserts a Topic without running the dedup search,
	// used only by snapshot reconciliation restoring a previously
	// deduplicated topic set verbatim.
	InsertTopicRaw(ctx context.Context, t Topic) error

	// Close releases the underlying database files.
	Close() error
}
