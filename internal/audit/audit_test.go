package audit

import (
	"context"
	"testing"
	"time"
)

// TestLogThenCount checks the round trip of writing and counting
// entries by operation name.
func TestLogThenCount(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	entry := Entry{
		Timestamp: time.Now(),
		Operation: "store_qa",
		Success:   true,
		Duration:  5 * time.Millisecond,
	}
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("log: %v", err)
	}

	n, err := l.CountByOperation(ctx, "store_qa")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 logged operations, got %d", n)
	}

	n, err = l.CountByOperation(ctx, "query_qa")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 for an unlogged operation, got %d", n)
	}
}
