// Package persistence implements the JSON snapshot described in §4.3:
// a human-readable mirror of the three Store tables used for startup
// reconciliation and best-effort shutdown export.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/store"
	"github.com/memorize-mcp/memorize/internal/vectormath"
)

// SnapshotFile is the name of the snapshot under --db-path, per §6's
// persisted-layout clause.
const SnapshotFile = "memorize_data.json"

// Snapshot is the on-disk shape: three arrays, one per table.
type Snapshot struct {
	Topics    []store.Topic    `json:"topics"`
	QaRecords []store.QaRecord `json:"qa_records"`
	Knowledge []store.Knowledge `json:"knowledge"`
}

// Path returns the snapshot path under dbPath.
func Path(dbPath string) string {
	return filepath.Join(dbPath, SnapshotFile)
}

// Load reads and parses the snapshot at path. A missing file is not an
// error: it returns a zero-value Snapshot and ok=false. A malformed file
// logs a warning and is treated the same as missing, per §4.3 step 6.
func Load(path string) (snap Snapshot, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, false
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("persistence: snapshot is malformed, starting from store contents only", "path", path, "err", err)
		return Snapshot{}, false
	}
	return snap, true
}

// Save re-serializes the given snapshot in full. Best-effort: callers
// should log but not fail startup/shutdown on a write error.
func Save(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persistence: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persistence: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persistence: rename snapshot: %w", err)
	}
	return nil
}

// Dump reads every table out of s into a Snapshot, for Save.
func Dump(ctx context.Context, s store.Store) (Snapshot, error) {
	topics, err := s.AllTopics(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	qa, err := s.AllQA(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	knowledge, err := s.AllKnowledge(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Topics: topics, QaRecords: qa, Knowledge: knowledge}, nil
}

// topicKey, qaKey, and knowledgeKey implement the "stable content key"
// used to compute the symmetric difference in step 3 of §4.3.
func topicKey(name string) string { return name }
func qaKey(question, answer, topic string) string {
	return question + "\x00" + answer + "\x00" + topic
}
func knowledgeKey(topic, text string) string { return topic + "\x00" + text }

// Reconcile performs the startup bidirectional reconciliation described
// in §4.3: snapshot records absent from the store are inserted (using
// the snapshot's own vector when it has the right dimensionality,
// re-embedding otherwise); store records absent from the snapshot are
// left as-is, since the in-memory view is simply the store itself and
// the next Save call will pick them up.
func Reconcile(ctx context.Context, s store.Store, enc embedding.Embedder, snap Snapshot) error {
	existingTopics, err := s.AllTopics(ctx)
	if err != nil {
		return err
	}
	haveTopic := make(map[string]bool, len(existingTopics))
	for _, t := range existingTopics {
		haveTopic[topicKey(t.Name)] = true
	}
	for _, t := range snap.Topics {
		if haveTopic[topicKey(t.Name)] {
			continue
		}
		vec := t.Vector
		if len(vec) != vectormath.Dim {
			vec, err = enc.Embed(ctx, t.Name)
			if err != nil {
				return fmt.Errorf("persistence: re-embed topic %q: %w", t.Name, err)
			}
		}
		if err := s.InsertTopicRaw(ctx, store.Topic{Name: t.Name, Vector: vec}); err != nil {
			return fmt.Errorf("persistence: restore topic %q: %w", t.Name, err)
		}
	}

	existingQA, err := s.AllQA(ctx)
	if err != nil {
		return err
	}
	haveQA := make(map[string]bool, len(existingQA))
	for _, r := range existingQA {
		haveQA[qaKey(r.Question, r.Answer, r.Topic)] = true
	}
	for _, r := range snap.QaRecords {
		if haveQA[qaKey(r.Question, r.Answer, r.Topic)] {
			continue
		}
		vec := r.Vector
		if len(vec) != vectormath.Dim {
			vec, err = enc.Embed(ctx, r.Question)
			if err != nil {
				return fmt.Errorf("persistence: re-embed qa %q: %w", r.Question, err)
			}
		}
		restored := r
		restored.ID = "" // let the store assign a fresh id; content key is what matters
		restored.Vector = vec
		if _, err := s.InsertQA(ctx, restored); err != nil {
			return fmt.Errorf("persistence: restore qa %q: %w", r.Question, err)
		}
	}

	existingKnowledge, err := s.AllKnowledge(ctx)
	if err != nil {
		return err
	}
	haveKnowledge := make(map[string]bool, len(existingKnowledge))
	for _, k := range existingKnowledge {
		haveKnowledge[knowledgeKey(k.Topic, k.Text)] = true
	}
	for _, k := range snap.Knowledge {
		if haveKnowledge[knowledgeKey(k.Topic, k.Text)] {
			continue
		}
		vec := k.Vector
		if len(vec) != vectormath.Dim {
			vec, err = enc.Embed(ctx, k.Text)
			if err != nil {
				return fmt.Errorf("persistence: re-embed knowledge %q: %w", k.Text, err)
			}
		}
		restored := k
		restored.ID = ""
		restored.Vector = vec
		if _, err := s.InsertKnowledge(ctx, restored); err != nil {
			return fmt.Errorf("persistence: restore knowledge %q: %w", k.Text, err)
		}
	}

	return nil
}
