package recall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
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
	return NewHandler(s, enc, nil, nil)
}

// TestRecallMissingContextParam checks the 400 path.
func TestRecallMissingContextParam(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/recall", nil)
	rw := httptest.NewRecorder()
	h.Mux().ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rw.Code)
	}
}

// TestRecallColdStartReturnsEmptyArray checks that an empty store yields
// 200 with an empty JSON array, never a 500, per §4.5.
func TestRecallColdStartReturnsEmptyArray(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/recall?context=anything", nil)
	rw := httptest.NewRecorder()
	h.Mux().ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var items []Item
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty array on cold start, got %d items", len(items))
	}
}

// TestRecallReturnsStoredKnowledge checks the happy path once a
// knowledge entry exists in a matching topic.
func TestRecallReturnsStoredKnowledge(t *testing.T) {
	s, err := store.NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	enc, err := embedding.NewEncoder("")
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	ctx := context.Background()

	topicVec, err := enc.Embed(ctx, "deployment")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := s.InsertTopicRaw(ctx, store.Topic{Name: "deployment", Vector: topicVec}); err != nil {
		t.Fatalf("insert topic: %v", err)
	}

	textVec, err := enc.Embed(ctx, "deploy with the rolling strategy")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := s.InsertKnowledge(ctx, store.Knowledge{
		Text:            "deploy with the rolling strategy",
		Topic:           "deployment",
		SourceQuestions: []string{"how do I deploy"},
		Vector:          textVec,
	}); err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}

	h := NewHandler(s, enc, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/recall?context=deployment", nil)
	rw := httptest.NewRecorder()
	h.Mux().ServeHTTP(rw, req)

	var items []Item
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Topic != "deployment" {
		t.Errorf("unexpected topic: %s", items[0].Topic)
	}
}
