package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/store"
)

// TestLoadMissingFile checks the "absent snapshot" path is silent.
func TestLoadMissingFile(t *testing.T) {
	_, ok := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if ok {
		t.Fatal("expected ok=false for a missing file")
	}
}

// TestLoadMalformedFile checks a malformed snapshot is treated as
// absent rather than fatal, per §4.3 step 6.
func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), SnapshotFile)
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, ok := Load(path)
	if ok {
		t.Fatal("expected ok=false for malformed json")
	}
}

// TestSaveThenLoadRoundTrip checks the snapshot writer/reader round-trip.
func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), SnapshotFile)
	snap := Snapshot{
		Topics: []store.Topic{{Name: "t", Vector: []float32{1, 2, 3}}},
	}
	if err := Save(path, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok := Load(path)
	if !ok {
		t.Fatal("expected ok=true after a successful save")
	}
	if len(got.Topics) != 1 || got.Topics[0].Name != "t" {
		t.Errorf("unexpected round-tripped snapshot: %+v", got)
	}
}

// TestReconcileInsertsMissingSnapshotRecords checks that a snapshot
// topic absent from an empty store gets re-embedded and inserted.
func TestReconcileInsertsMissingSnapshotRecords(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	enc, err := embedding.NewEncoder("")
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	snap := Snapshot{
		Topics: []store.Topic{{Name: "recovered-topic"}}, // no vector: forces re-embed
	}
	if err := Reconcile(ctx, s, enc, snap); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	topics, err := s.AllTopics(ctx)
	if err != nil {
		t.Fatalf("all topics: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "recovered-topic" {
		t.Errorf("expected the snapshot topic to be restored, got %+v", topics)
	}
}

// TestReconcileSkipsAlreadyPresentRecords checks that reconciliation is
// idempotent: a topic already in the live store is not duplicated.
func TestReconcileSkipsAlreadyPresentRecords(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	enc, err := embedding.NewEncoder("")
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}

	vec, err := enc.Embed(ctx, "existing-topic")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := s.InsertTopicRaw(ctx, store.Topic{Name: "existing-topic", Vector: vec}); err != nil {
		t.Fatalf("insert topic: %v", err)
	}

	snap := Snapshot{Topics: []store.Topic{{Name: "existing-topic", Vector: vec}}}
	if err := Reconcile(ctx, s, enc, snap); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	topics, err := s.AllTopics(ctx)
	if err != nil {
		t.Fatalf("all topics: %v", err)
	}
	if len(topics) != 1 {
		t.Errorf("expected reconciliation to be idempotent, got %d topics", len(topics))
	}
}

// TestDumpReflectsStoreContents checks that Dump mirrors AllTopics /
// AllQA / AllKnowledge.
func TestDumpReflectsStoreContents(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.InsertTopicRaw(ctx, store.Topic{Name: "t", Vector: make([]float32, 384)}); err != nil {
		t.Fatalf("insert topic: %v", err)
	}

	snap, err := Dump(ctx, s)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(snap.Topics) != 1 {
		t.Errorf("expected 1 topic in dump, got %d", len(snap.Topics))
	}
}
