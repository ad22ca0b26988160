package resultstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"toeicprep/internal/exam"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	key := exam.ResultKey("etest1")

	summary := exam.ResultSummary{
		ExamID:         "etest1",
		ListeningScore: 450,
		ReadingScore:   455,
		TotalScore:     905,
	}
	if err := store.Put(ctx, 7, key, summary); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, 7, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalScore != 905 || got.ListeningScore != 450 || got.ReadingScore != 455 {
		t.Fatalf("unexpected summary after round trip: %+v", got)
	}
}

func TestSQLiteStoreOverwriteAndScope(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	key := exam.ResultKey("etest1")

	_ = store.Put(ctx, 7, key, exam.ResultSummary{ExamID: "etest1", TotalScore: 700})
	if err := store.Put(ctx, 7, key, exam.ResultSummary{ExamID: "etest1", TotalScore: 905}); err != nil {
		t.Fatalf("overwrite put: %v", err)
	}

	got, err := store.Get(ctx, 7, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalScore != 905 {
		t.Fatalf("latest result should win, got %d", got.TotalScore)
	}

	if _, err := store.Get(ctx, 8, key); !errors.Is(err, exam.ErrResultNotFound) {
		t.Fatalf("other user should not see the result, got %v", err)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	key := exam.ResultKey("etest1")

	_ = store.Put(ctx, 7, key, exam.ResultSummary{ExamID: "etest1"})
	if err := store.Delete(ctx, 7, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, 7, key); !errors.Is(err, exam.ErrResultNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, 7, key); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}
