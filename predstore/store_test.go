package predstore

import (
	"path/filepath"
	"reflect"
	"testing"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordPredictions(t *testing.T) {
	s := tempDB(t)
	run, err := s.StartRun("model.bin", 5)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected non-empty run ID")
	}

	preds := []Prediction{
		{ExampleIndex: 1, BaseQuestion: "what is its capital ?",
			Prediction: "what is the capital of france ?", Score: -0.25},
		{ExampleIndex: 0, BaseQuestion: "who is he ?", Prediction: "who is macron ?",
			Target: "who is macron ?", Score: -0.5},
	}
	if err := s.Record(run.ID, preds); err != nil {
		t.Fatalf("Record: %v", err)
	}

	actual, err := s.Predictions(run.ID)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	expected := []Prediction{preds[1], preds[0]}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("expected %+v but got %+v", expected, actual)
	}

	loaded, err := s.Run(run.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loaded.ModelPath != "model.bin" || loaded.BeamSize != 5 ||
		!loaded.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("unexpected run: %+v", loaded)
	}
}

func TestRecordAtomic(t *testing.T) {
	s := tempDB(t)
	run, err := s.StartRun("model.bin", 1)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	dup := []Prediction{
		{ExampleIndex: 0, BaseQuestion: "a", Prediction: "b"},
		{ExampleIndex: 0, BaseQuestion: "a", Prediction: "c"},
	}
	if err := s.Record(run.ID, dup); err == nil {
		t.Fatal("expected duplicate index error")
	}
	preds, err := s.Predictions(run.ID)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("expected no predictions but got %d", len(preds))
	}

	if _, err := s.Run("missing"); err == nil {
		t.Error("expected missing run error")
	}
}

func TestRunCorruptTimestamp(t *testing.T) {
	s := tempDB(t)
	run, err := s.StartRun("model.bin", 2)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE runs SET created_at = 'yesterday' WHERE run_id = ?`,
		run.ID); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Run(run.ID); err == nil {
		t.Error("expected timestamp parse error")
	}
}
