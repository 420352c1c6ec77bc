package ledger_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/courseops/mimeo/adapters/ledger"
	"github.com/courseops/mimeo/ports"
)

func setupTestLedger(t *testing.T) *ledger.Store {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "mimeo-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func TestBeginAndFinishRun(t *testing.T) {
	store := setupTestLedger(t)
	ctx := context.Background()

	started := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	run := ports.Run{ID: "run-1", StartedAt: started}

	if err := store.BeginRun(ctx, run); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	run.FinishedAt = started.Add(42 * time.Second)
	run.Succeeded = true
	run.Collections = 2
	run.Publications = 5
	run.Artifacts = 11

	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len = %d, want 1", len(runs))
	}

	got := runs[0]
	if got.ID != "run-1" {
		t.Errorf("ID = %s, want run-1", got.ID)
	}
	if !got.Succeeded {
		t.Error("Succeeded should be true")
	}
	if got.Publications != 5 {
		t.Errorf("Publications = %d, want 5", got.Publications)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if !got.FinishedAt.Equal(run.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, run.FinishedAt)
	}
}

func TestFinishRun_NeverBegun(t *testing.T) {
	store := setupTestLedger(t)
	ctx := context.Background()

	err := store.FinishRun(ctx, ports.Run{ID: "ghost", FinishedAt: time.Now()})
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestRuns_NewestFirst(t *testing.T) {
	store := setupTestLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := ports.Run{ID: "run-" + string(rune('a'+i)), StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.BeginRun(ctx, run); err != nil {
			t.Fatalf("begin run %d: %v", i, err)
		}
	}

	runs, err := store.Runs(ctx, 3)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}

	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
	if runs[0].ID != "run-e" {
		t.Errorf("first run = %s, want run-e", runs[0].ID)
	}
	if runs[2].ID != "run-c" {
		t.Errorf("third run = %s, want run-c", runs[2].ID)
	}
}

func TestRuns_UnfinishedRun(t *testing.T) {
	store := setupTestLedger(t)
	ctx := context.Background()

	run := ports.Run{ID: "run-1", StartedAt: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)}
	if err := store.BeginRun(ctx, run); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	runs, err := store.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}

	if !runs[0].FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero", runs[0].FinishedAt)
	}
	if runs[0].Succeeded {
		t.Error("Succeeded should be false for an unfinished run")
	}
}

func TestRecordArtifactAndLastDigest(t *testing.T) {
	store := setupTestLedger(t)
	ctx := context.Background()

	began := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	for _, id := range []string{"run-1", "run-2"} {
		if err := store.BeginRun(ctx, ports.Run{ID: id, StartedAt: began}); err != nil {
			t.Fatalf("begin %s: %v", id, err)
		}
		began = began.Add(time.Hour)
	}

	records := []ports.ArtifactRecord{
		{
			RunID:       "run-1",
			Collection:  "homeworks",
			Publication: "01-intro",
			Artifact:    "homework.pdf",
			Path:        "homeworks/01-intro/homework.pdf",
			Digest:      "aaa",
			Bytes:       100,
			PublishedAt: time.Date(2024, 9, 1, 8, 1, 0, 0, time.UTC),
		},
		{
			RunID:       "run-2",
			Collection:  "homeworks",
			Publication: "01-intro",
			Artifact:    "homework.pdf",
			Path:        "homeworks/01-intro/homework.pdf",
			Digest:      "bbb",
			Bytes:       120,
			PublishedAt: time.Date(2024, 9, 1, 9, 1, 0, 0, time.UTC),
		},
	}
	for i, rec := range records {
		if err := store.RecordArtifact(ctx, rec); err != nil {
			t.Fatalf("record artifact %d: %v", i, err)
		}
	}

	digest, err := store.LastDigest(ctx, "homeworks", "01-intro", "homework.pdf")
	if err != nil {
		t.Fatalf("last digest: %v", err)
	}
	if digest != "bbb" {
		t.Errorf("digest = %s, want bbb", digest)
	}
}

func TestLastDigest_NeverPublished(t *testing.T) {
	store := setupTestLedger(t)
	ctx := context.Background()

	digest, err := store.LastDigest(ctx, "homeworks", "01-intro", "solution.pdf")
	if err != nil {
		t.Fatalf("last digest: %v", err)
	}
	if digest != "" {
		t.Errorf("digest = %q, want empty", digest)
	}
}

func TestMigration_Idempotent(t *testing.T) {
	store := setupTestLedger(t)

	// Run migrations again - should be idempotent
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migration: %v", err)
	}
}
