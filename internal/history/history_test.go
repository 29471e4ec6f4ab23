package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/breed-classify/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordRunAndQuery(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	records := []model.ManifestRecord{
		{ID: "img001", Breed: "Labrador", ClassID: 4, PredictedID: 2},
		{ID: "img002", Breed: "Beagle", ClassID: 1, PredictedID: 1},
	}
	older := Run{ID: uuid.NewString(), StartedAt: base.Add(-time.Hour), FinishedAt: base.Add(-time.Hour), Mode: model.ModeCPU, ModelPath: "model.onnx", Total: 2, Correct: 1}
	newer := Run{ID: uuid.NewString(), StartedAt: base, FinishedAt: base.Add(time.Minute), Mode: model.ModeGPU, ModelPath: "model.onnx", Total: 2, Correct: 1}

	if err := store.RecordRun(older, records); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := store.RecordRun(newer, records); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != newer.ID || runs[0].Mode != model.ModeGPU {
		t.Fatalf("expected newest run first, got %+v", runs[0])
	}
	if runs[1].Total != 2 || runs[1].Correct != 1 {
		t.Fatalf("unexpected counts: %+v", runs[1])
	}

	got, err := store.Predictions(newer.ID)
	if err != nil {
		t.Fatalf("Predictions failed: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("expected %d predictions, got %d", len(records), len(got))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Fatalf("prediction %d: got %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestRecordRunDuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	run := Run{ID: "fixed", StartedAt: time.Now(), FinishedAt: time.Now(), Mode: model.ModeCPU}
	if err := store.RecordRun(run, nil); err != nil {
		t.Fatalf("first RecordRun failed: %v", err)
	}
	if err := store.RecordRun(run, nil); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
}
