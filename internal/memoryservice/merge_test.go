package memoryservice

import (
	"context"
	"errors"
	"testing"
)

// TestMergeKnowledgeDistillsSimilarPairs checks the end-to-end happy
// path: two near-duplicate questions under one topic are distilled into
// one Knowledge entry and both source records are marked merged.
func TestMergeKnowledgeDistillsSimilarPairs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StoreQA(ctx, "how do I reset my password", "use the /reset endpoint", "accounts"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}
	if _, err := svc.StoreQA(ctx, "how do I reset my password", "use the /reset endpoint", "accounts"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}

	sampler := &FixedSampler{Reply: "To reset a password, call the /reset endpoint."}
	res, err := svc.MergeKnowledge(ctx, sampler, "accounts", nil)
	if err != nil {
		t.Fatalf("merge_knowledge: %v", err)
	}
	if len(res.Merged) != 1 {
		t.Fatalf("expected 1 merged entry, got %d", len(res.Merged))
	}
	if res.Merged[0].Text != sampler.Reply {
		t.Errorf("expected distilled text %q, got %q", sampler.Reply, res.Merged[0].Text)
	}
	if len(res.Merged[0].SourceQuestions) != 2 {
		t.Errorf("expected 2 source questions, got %d", len(res.Merged[0].SourceQuestions))
	}

	// Merging again should find nothing left to merge: both records
	// are now marked merged.
	res2, err := svc.MergeKnowledge(ctx, sampler, "accounts", nil)
	if err != nil {
		t.Fatalf("merge_knowledge (second pass): %v", err)
	}
	if len(res2.Merged) != 0 {
		t.Errorf("expected nothing left to merge, got %d entries", len(res2.Merged))
	}
}

// TestMergeKnowledgeSkipsSingletons checks that a topic with only one
// unmerged record produces no merged entry and no skip.
func TestMergeKnowledgeSkipsSingletons(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StoreQA(ctx, "what is the meaning of life", "42", "philosophy"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}

	sampler := &FixedSampler{Reply: "should never be called"}
	res, err := svc.MergeKnowledge(ctx, sampler, "philosophy", nil)
	if err != nil {
		t.Fatalf("merge_knowledge: %v", err)
	}
	if len(res.Merged) != 0 {
		t.Errorf("expected no merge for a singleton component, got %d", len(res.Merged))
	}
	if len(sampler.Calls) != 0 {
		t.Errorf("expected sampler not to be called for a singleton, got %d calls", len(sampler.Calls))
	}
}

// TestMergeKnowledgeSamplingFailureSkipsComponent checks §7's policy:
// a sampling failure skips only the affected component and marks
// nothing merged, rather than failing the whole operation.
func TestMergeKnowledgeSamplingFailureSkipsComponent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StoreQA(ctx, "why is the sky blue", "rayleigh scattering", "science"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}
	if _, err := svc.StoreQA(ctx, "why is the sky blue", "rayleigh scattering", "science"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}

	sampler := &FixedSampler{Err: errors.New("peer declined sampling request")}
	res, err := svc.MergeKnowledge(ctx, sampler, "science", nil)
	if err != nil {
		t.Fatalf("merge_knowledge should not fail the whole operation: %v", err)
	}
	if len(res.Merged) != 0 {
		t.Errorf("expected no merged entries on sampling failure, got %d", len(res.Merged))
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped component, got %d", res.Skipped)
	}

	// The source records must remain unmerged so a later retry can
	// still find them.
	retry, err := svc.MergeKnowledge(ctx, &FixedSampler{Reply: "rayleigh scattering explains the sky's color"}, "science", nil)
	if err != nil {
		t.Fatalf("merge_knowledge (retry): %v", err)
	}
	if len(retry.Merged) != 1 {
		t.Errorf("expected the retry to find the still-unmerged pair, got %d merged entries", len(retry.Merged))
	}
}

// TestMergeKnowledgeExplicitZeroThresholdIsExactMatchOnly checks that an
// explicitly supplied threshold of 0 is honored as "exact match only"
// rather than silently coerced to the config.MergeThreshold default —
// two distinct (non-identical) paraphrases that would merge at the
// default threshold must not merge at threshold=0.
func TestMergeKnowledgeExplicitZeroThresholdIsExactMatchOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StoreQA(ctx, "how do I reset my password", "use the /reset endpoint", "accounts"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}
	if _, err := svc.StoreQA(ctx, "how can I reset my password please", "use the /reset endpoint", "accounts"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}

	sampler := &FixedSampler{Reply: "should never be called"}
	zero := 0.0
	res, err := svc.MergeKnowledge(ctx, sampler, "accounts", &zero)
	if err != nil {
		t.Fatalf("merge_knowledge: %v", err)
	}
	if len(res.Merged) != 0 {
		t.Errorf("expected no merge at an explicit threshold of 0, got %d", len(res.Merged))
	}
	if len(sampler.Calls) != 0 {
		t.Errorf("expected sampler not to be called at threshold 0, got %d calls", len(sampler.Calls))
	}
}

// TestMergeKnowledgeUnknownTopicRejected checks that naming a
// nonexistent topic is an invalid-input error, not a silent no-op.
func TestMergeKnowledgeUnknownTopicRejected(t *testing.T) {
	svc := newTestService(t)
	sampler := &FixedSampler{Reply: "x"}
	_, err := svc.MergeKnowledge(context.Background(), sampler, "does-not-exist", nil)
	if err == nil {
		t.Fatal("expected error for unknown topic")
	}
}
