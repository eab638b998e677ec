package services_test

import (
	"context"
	"testing"

	"hashsync/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSourceID(ctx, 42)
	ctx = services.WithOperation(ctx, "scrape")
	ctx = services.WithRequestID(ctx, "req-123")
	ctx = services.WithActor(ctx, "gm@example.com")

	if id, ok := services.SourceIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected source id: %v %v", id, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "scrape" {
		t.Fatalf("unexpected operation: %v %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
	if actor := services.ActorFromContext(ctx); actor != "gm@example.com" {
		t.Fatalf("unexpected actor: %v", actor)
	}
}

func TestActorDefaultsToSystem(t *testing.T) {
	ctx := services.WithActor(context.Background(), "")
	if actor := services.ActorFromContext(ctx); actor != services.SystemActor {
		t.Fatalf("expected system actor, got %q", actor)
	}
}
