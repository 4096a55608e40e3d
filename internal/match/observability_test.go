package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "allocate", true, 20*time.Millisecond)
	rec.Observe(ctx, "allocate", true, 30*time.Millisecond)
	rec.Observe(ctx, "allocate", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if got := snap.DurationsMS["allocate"]; got != 55 {
		t.Fatalf("durations = %v, want 55", got)
	}
	if got := snap.Results["allocate"]["success"]; got != 2 {
		t.Fatalf("success count = %d, want 2", got)
	}
	if got := snap.Results["allocate"]["error"]; got != 1 {
		t.Fatalf("error count = %d, want 1", got)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatal("empty operation must be ignored")
	}
}

func TestJSONTracerEmitsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ctx := context.Background()

	_, span := tracer.Start(ctx, "allocate")
	span.End(nil)
	_, span = tracer.Start(ctx, "allocate")
	span.End(fmt.Errorf("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d spans, want 2", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" {
		t.Fatalf("span statuses = [%s %s]", entries[0].Status, entries[1].Status)
	}
	if entries[1].Error != "boom" {
		t.Fatalf("span error = %q, want boom", entries[1].Error)
	}

	dec := json.NewDecoder(&buf)
	var decoded []JSONTraceEntry
	for dec.More() {
		var entry JSONTraceEntry
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode span line: %v", err)
		}
		decoded = append(decoded, entry)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d lines, want 2", len(decoded))
	}
}

func TestEngineFeedsObservabilitySinks(t *testing.T) {
	ctx := context.Background()
	metrics := NewExpvarMetricsRecorder("")
	var traceBuf bytes.Buffer
	tracer := NewJSONTracer(&traceBuf)
	audit := &MemoryAuditLog{}

	fix := newEngineFixture(t,
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithAuditLogger(audit),
	)
	fix.seedHeartScenario(t)

	if _, err := fix.engine.FindCompatibleRecipients(ctx, "organ-1"); err != nil {
		t.Fatalf("FindCompatibleRecipients: %v", err)
	}
	if _, err := fix.engine.FindCompatibleRecipients(ctx, "organ-missing"); err == nil {
		t.Fatal("expected lookup failure")
	}

	snap := metrics.Snapshot()
	if snap.Results[opFindCompatible]["success"] != 1 || snap.Results[opFindCompatible]["error"] != 1 {
		t.Fatalf("unexpected metric counts: %v", snap.Results[opFindCompatible])
	}

	spans := tracer.Entries()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}

	entries := audit.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(entries))
	}
	if entries[0].Status != "success" || entries[0].Operation != opFindCompatible {
		t.Fatalf("unexpected first audit entry: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("unexpected second audit entry: %+v", entries[1])
	}
	if entries[1].OrganID != "organ-missing" {
		t.Fatalf("audit organ id = %s, want organ-missing", entries[1].OrganID)
	}
}
