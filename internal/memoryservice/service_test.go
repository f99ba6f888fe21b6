package memoryservice

import (
	"context"
	"testing"

	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	enc, err := embedding.NewEncoder("")
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	return New(s, enc, nil)
}

// TestStoreQARejectsEmptyFields checks the input-validation boundary.
func TestStoreQARejectsEmptyFields(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.StoreQA(context.Background(), "", "answer", "topic")
	if err == nil {
		t.Fatal("expected error for empty question")
	}
}

// TestStoreQAThenQueryQARoundTrip checks that a question stored under a
// topic can be found again by query_qa once the topic exists.
func TestStoreQAThenQueryQARoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.StoreQA(ctx, "how do I configure retries", "set max_retries=3", "networking")
	if err != nil {
		t.Fatalf("store_qa: %v", err)
	}
	if !res.Stored {
		t.Fatal("expected Stored=true")
	}

	q, err := svc.QueryQA(ctx, "how do I configure retries", "networking")
	if err != nil {
		t.Fatalf("query_qa: %v", err)
	}
	if q.Topic == nil || *q.Topic != res.Topic {
		t.Fatalf("expected resolved topic %q, got %v", res.Topic, q.Topic)
	}
	if len(q.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	if q.Results[0].Answer != "set max_retries=3" {
		t.Errorf("unexpected top result: %+v", q.Results[0])
	}
}

// TestQueryQAColdStartReturnsEmpty checks the §4.4/§9 cold-start refusal:
// querying before any topic exists must not guess.
func TestQueryQAColdStartReturnsEmpty(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.QueryQA(context.Background(), "anything", "anything")
	if err != nil {
		t.Fatalf("query_qa: %v", err)
	}
	if q.Topic != nil {
		t.Errorf("expected nil topic on cold start, got %v", *q.Topic)
	}
	if len(q.Results) != 0 {
		t.Errorf("expected no results on cold start, got %d", len(q.Results))
	}
}

// TestStoreQASurfacesMergeCandidates checks that a second, highly
// similar question under the same topic is surfaced as a non-binding
// merge candidate rather than being auto-merged.
func TestStoreQASurfacesMergeCandidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StoreQA(ctx, "what port does the server listen on", "8080", "server config"); err != nil {
		t.Fatalf("store_qa: %v", err)
	}
	res, err := svc.StoreQA(ctx, "what port does the server listen on", "8080", "server config")
	if err != nil {
		t.Fatalf("store_qa: %v", err)
	}
	if len(res.MergeCandidates) == 0 {
		t.Error("expected an identical repeated question to surface as a merge candidate")
	}
}
