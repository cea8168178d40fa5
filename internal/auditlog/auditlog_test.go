package auditlog

import (
	"context"
	"path/filepath"
	"testing"
)

func TestLog_RecordAndRecent(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	log.Record(ctx, Entry{Account: "a@x", Model: "gemini-3-flash", Endpoint: "daily", Outcome: "success", LatencyMs: 120})
	log.Record(ctx, Entry{Account: "a@x", Model: "gemini-3-flash", Endpoint: "daily", Outcome: "rate_limit", LatencyMs: 80})

	entries, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 recorded entries, got %d", len(entries))
	}
}

func TestLog_Recent_RespectsLimit(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		log.Record(ctx, Entry{Account: "a@x", Model: "m", Endpoint: "e", Outcome: "success", LatencyMs: int64(i)})
	}

	entries, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected Recent(2) to cap at 2 entries, got %d", len(entries))
	}
}

func TestNilLog_IsANoOp(t *testing.T) {
	var log *Log
	log.Record(context.Background(), Entry{Account: "a@x"})

	entries, err := log.Recent(context.Background(), 10)
	if err != nil || entries != nil {
		t.Errorf("expected a nil *Log's Recent to return (nil, nil), got (%v, %v)", entries, err)
	}
	if err := log.Close(); err != nil {
		t.Errorf("expected a nil *Log's Close to be a no-op, got %v", err)
	}
}
