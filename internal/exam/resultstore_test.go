package exam

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	summary := ResultSummary{ExamID: "etest1", TotalScore: 905}
	if err := store.Put(ctx, 1, ResultKey("etest1"), summary); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, 1, ResultKey("etest1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalScore != 905 {
		t.Fatalf("total = %d, want 905", got.TotalScore)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := ResultKey("etest1")

	_ = store.Put(ctx, 1, key, ResultSummary{ExamID: "etest1", TotalScore: 700})
	_ = store.Put(ctx, 1, key, ResultSummary{ExamID: "etest1", TotalScore: 905})

	got, err := store.Get(ctx, 1, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalScore != 905 {
		t.Fatalf("latest result should win, got %d", got.TotalScore)
	}
}

func TestMemoryStoreScopedByUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := ResultKey("etest1")

	_ = store.Put(ctx, 1, key, ResultSummary{ExamID: "etest1", TotalScore: 905})

	if _, err := store.Get(ctx, 2, key); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("other user should not see the result, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := ResultKey("etest1")

	_ = store.Put(ctx, 1, key, ResultSummary{ExamID: "etest1"})
	if err := store.Delete(ctx, 1, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, 1, key); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound after delete, got %v", err)
	}
	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, 1, key); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

// MemoryStore and SQLiteStore must stay interchangeable behind ResultStore.
func TestMemoryStoreSatisfiesResultStore(t *testing.T) {
	var store ResultStore = NewMemoryStore()
	if _, err := store.Get(context.Background(), 1, ResultKey("missing")); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}
