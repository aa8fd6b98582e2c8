package tracing

import (
	"context"
	"strings"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestNewRunID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if !strings.HasPrefix(id, "run_") {
			t.Fatalf("NewRunID missing prefix: %s", id)
		}
		if len(id) != len("run_")+16 {
			t.Fatalf("unexpected run ID length: %s", id)
		}
		if seen[id] {
			t.Fatalf("NewRunID returned duplicate ID %s", id)
		}
		seen[id] = true
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSessionKey(ctx, "acme:s1")
	ctx = WithTenantID(ctx, "acme")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.RunID != "run-1" || tc.SessionKey != "acme:s1" || tc.TenantID != "acme" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetRunID(ctx) != "" || GetSessionKey(ctx) != "" || GetTenantID(ctx) != "" {
		t.Error("expected empty values from empty context")
	}
}

func TestNewContextSkipsEmptyFields(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{TraceID: "t"})
	if GetTraceID(ctx) != "t" {
		t.Error("trace ID not set")
	}
	if GetRunID(ctx) != "" {
		t.Error("run ID should stay empty")
	}
}

func TestNewTurnContext(t *testing.T) {
	parent := WithTraceID(context.Background(), "trace-keep")
	ctx := NewTurnContext(parent, "acme", "acme:s1")

	if GetTraceID(ctx) != "trace-keep" {
		t.Error("existing trace ID should be kept")
	}
	if GetRunID(ctx) == "" {
		t.Error("run ID not generated")
	}
	if GetTenantID(ctx) != "acme" || GetSessionKey(ctx) != "acme:s1" {
		t.Error("session identity not set")
	}

	fresh := NewTurnContext(context.Background(), "acme", "acme:s2")
	if GetTraceID(fresh) == "" {
		t.Error("trace ID not generated when missing")
	}
}
