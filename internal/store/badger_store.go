package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/memorize-mcp/memorize/internal/config"
	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/vectormath"
)

// Key-prefix layout. Two families of keys exist per filtered table: a
// primary record keyed by id, and a secondary index keyed by the scalar
// filter columns so a filtered scan never touches records outside the
// filter — this is the embedded-KV-store's stand-in for a query planner
// pushing a WHERE clause into an index.
const (
	prefixTopic         = "topic/"
	prefixQA            = "qa/"
	prefixQAUnmergedIdx = "qa_unmerged/" // qa_unmerged/<topic>/<id>
	prefixKnowledge     = "knowledge/"
	prefixKnowledgeIdx  = "knowledge_idx/" // knowledge_idx/<topic>/<id>
)

// BadgerStore implements Store using BadgerDB, the embedded, pure-Go,
// single-process key-value engine. Grounded directly on the teacher's
// internal/memory.BadgerProceduralStore: same badger.DefaultOptions +
// WithLoggingLevel(badger.WARNING) construction, same prefix-iterator
// scan idiom, generalized from a single workflow-pattern table to the
// three tables of the memory engine plus vector-distance ranking.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if necessary) the embedded database
// rooted at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "mkdir", err)
	}

	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "open badger", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return memerr.Wrap(memerr.KindStorage, "close badger", err)
	}
	return nil
}

// ── Topics ──────────────────────────────────────────────────────────────────

// UpsertTopic resolves name to the nearest existing topic if it lies
// within config.TopicDedupThreshold cosine distance, else inserts
// (name, vec) as a new topic. Ties among equidistant topics are broken
// by NearestTopic's own lexicographic rule.
func (s *BadgerStore) UpsertTopic(ctx context.Context, name string, vec []float32) (string, error) {
	match, err := s.NearestTopic(ctx, vec)
	if err != nil {
		return "", err
	}
	if match != nil && match.Distance <= config.TopicDedupThreshold {
		return match.Name, nil
	}

	t := Topic{Name: name, Vector: vec}
	if err := s.InsertTopicRaw(ctx, t); err != nil {
		return "", err
	}
	return name, nil
}

func (s *BadgerStore) InsertTopicRaw(ctx context.Context, t Topic) error {
	if len(t.Vector) != vectormath.Dim {
		return memerr.Wrap(memerr.KindStorage, "insert_topic", fmt.Errorf("vector has %d dims, want %d", len(t.Vector), vectormath.Dim))
	}
	data, err := json.Marshal(t)
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, "insert_topic", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixTopic+t.Name), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, "insert_topic", err)
	}
	return nil
}

func (s *BadgerStore) NearestTopic(ctx context.Context, vec []float32) (*TopicMatch, error) {
	topics, err := s.AllTopics(ctx)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, nil
	}

	best := TopicMatch{Name: topics[0].Name, Distance: vectormath.CosineDistance(vec, topics[0].Vector)}
	for _, t := range topics[1:] {
		d := vectormath.CosineDistance(vec, t.Vector)
		if d < best.Distance || (d == best.Distance && t.Name < best.Name) {
			best = TopicMatch{Name: t.Name, Distance: d}
		}
	}
	return &best, nil
}

func (s *BadgerStore) AllTopics(ctx context.Context) ([]Topic, error) {
	var topics []Topic
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixTopic)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var t Topic
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				continue
			}
			topics = append(topics, t)
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "all_topics", err)
	}
	return topics, nil
}

// ── QA records ──────────────────────────────────────────────────────────────

func (s *BadgerStore) InsertQA(ctx context.Context, rec QaRecord) (QaRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if len(rec.Vector) != vectormath.Dim {
		return rec, memerr.Wrap(memerr.KindStorage, "insert_qa", fmt.Errorf("vector has %d dims, want %d", len(rec.Vector), vectormath.Dim))
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return rec, memerr.Wrap(memerr.KindStorage, "insert_qa", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixQA+rec.ID), data); err != nil {
			return err
		}
		if !rec.Merged {
			if err := txn.Set([]byte(prefixQAUnmergedIdx+rec.Topic+"/"+rec.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return rec, memerr.Wrap(memerr.KindStorage, "insert_qa", err)
	}
	return rec, nil
}

func (s *BadgerStore) SearchQA(ctx context.Context, topic string, vec []float32, limit int) ([]QaResult, error) {
	results, err := s.unmergedQA(topic)
	if err != nil {
		return nil, err
	}
	scored := scoreQA(results, vec)
	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *BadgerStore) SimilarQAWithinTopic(ctx context.Context, topic string, vec []float32, threshold float64) ([]QaResult, error) {
	results, err := s.unmergedQA(topic)
	if err != nil {
		return nil, err
	}
	scored := scoreQA(results, vec)
	out := scored[:0]
	for _, r := range scored {
		if r.Distance <= threshold {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

func scoreQA(records []QaRecord, vec []float32) []QaResult {
	out := make([]QaResult, len(records))
	for i, r := range records {
		out[i] = QaResult{Record: r, Distance: vectormath.CosineDistance(vec, r.Vector)}
	}
	return out
}

// unmergedQA loads every QaRecord indexed as unmerged under topic. The
// index prefix scan means merged records are never read at all — the
// "pushed into the query engine" filter semantics required by §4.2.
func (s *BadgerStore) unmergedQA(topic string) ([]QaRecord, error) {
	var ids []string
	idxPrefix := []byte(prefixQAUnmergedIdx + topic + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = idxPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, string(idxPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "search_qa", err)
	}

	records := make([]QaRecord, 0, len(ids))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get([]byte(prefixQA + id))
			if err == badger.ErrKeyNotFound {
				continue // index/record briefly out of sync; skip
			}
			if err != nil {
				return err
			}
			var rec QaRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "search_qa", err)
	}
	return records, nil
}

func (s *BadgerStore) MarkQAMerged(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(prefixQA + id))
			if err != nil {
				return err
			}
			var rec QaRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}

			rec.Merged = true
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(prefixQA+id), data); err != nil {
				return err
			}
			return txn.Delete([]byte(prefixQAUnmergedIdx + rec.Topic + "/" + id))
		})
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, "mark_qa_merged", fmt.Errorf("id %s: %w", id, err))
		}
	}
	return nil
}

func (s *BadgerStore) AllQA(ctx context.Context) ([]QaRecord, error) {
	var records []QaRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixQA)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec QaRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "all_qa", err)
	}
	return records, nil
}

// ── Knowledge ────────────────────────────────────────────────────────────────

func (s *BadgerStore) InsertKnowledge(ctx context.Context, k Knowledge) (Knowledge, error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if len(k.Vector) != vectormath.Dim {
		return k, memerr.Wrap(memerr.KindStorage, "insert_knowledge", fmt.Errorf("vector has %d dims, want %d", len(k.Vector), vectormath.Dim))
	}
	if len(k.SourceQuestions) == 0 {
		return k, memerr.Wrap(memerr.KindInvalidInput, "insert_knowledge", fmt.Errorf("source_questions must be non-empty"))
	}

	data, err := json.Marshal(k)
	if err != nil {
		return k, memerr.Wrap(memerr.KindStorage, "insert_knowledge", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixKnowledge+k.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixKnowledgeIdx+k.Topic+"/"+k.ID), nil)
	})
	if err != nil {
		return k, memerr.Wrap(memerr.KindStorage, "insert_knowledge", err)
	}
	return k, nil
}

func (s *BadgerStore) SearchKnowledge(ctx context.Context, topic string, vec []float32, limit int) ([]KnowledgeResult, error) {
	var ids []string
	idxPrefix := []byte(prefixKnowledgeIdx + topic + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = idxPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, string(idxPrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "search_knowledge", err)
	}

	results := make([]KnowledgeResult, 0, len(ids))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get([]byte(prefixKnowledge + id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var k Knowledge
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &k)
			}); err != nil {
				continue
			}
			results = append(results, KnowledgeResult{Record: k, Distance: vectormath.CosineDistance(vec, k.Vector)})
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "search_knowledge", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *BadgerStore) AllKnowledge(ctx context.Context) ([]Knowledge, error) {
	var entries []Knowledge
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixKnowledge)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var k Knowledge
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &k)
			}); err != nil {
				continue
			}
			entries = append(entries, k)
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "all_knowledge", err)
	}
	return entries, nil
}

// DefaultDir returns the conventional Badger data directory under a
// --db-path root.
func DefaultDir(dbPath string) string {
	return filepath.Join(dbPath, "badger")
}
