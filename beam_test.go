package repeatq

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func terminatorModel() *tableModel {
	return &tableModel{
		VocabSize:  100,
		HiddenSize: 2,
		Table: map[int]map[int]float64{
			PadID: {5: 0.4, 6: 0.6},
			5:     {8: 1},
			8:     {99: 1},
			6:     {9: 1},
		},
		Fallback: map[int]float64{9: 1},
	}
}

func TestBeamSearchConstant(t *testing.T) {
	m := &tableModel{VocabSize: 10, HiddenSize: 3, Fallback: map[int]float64{7: 1}}
	d := newTableDecoder(m, 9, 6)
	b := testBatch([][]int{{1, 2, 3}, {4, 5, 6}}, nil)

	seqs, err := d.Decode(b, 1)
	if err != nil {
		t.Fatal(err)
	}
	expected := []int{7, 7, 7, 7, 7, 7}
	for i, seq := range seqs {
		if !reflect.DeepEqual(seq, expected) {
			t.Errorf("example %d: expected %v but got %v", i, expected, seq)
		}
	}

	greedy, err := d.Greedy(b)
	if err != nil {
		t.Fatal(err)
	}
	for i, actions := range greedy.Actions {
		if !reflect.DeepEqual(actions, seqs[i]) {
			t.Errorf("example %d: greedy gave %v but beam gave %v", i, actions, seqs[i])
		}
	}
}

func TestBeamSearchFinishedBeam(t *testing.T) {
	b := testBatch([][]int{{11, 12}}, nil)

	t.Run("Overwrite", func(t *testing.T) {
		d := newTableDecoder(terminatorModel(), 99, 6)
		hyps, err := d.BeamSearch(b, 3)
		if err != nil {
			t.Fatal(err)
		}
		expected := []int{5, 8, 99}
		if !reflect.DeepEqual(hyps[0].Tokens, expected) {
			t.Errorf("expected %v but got %v", expected, hyps[0].Tokens)
		}
		if hyps[0].Score != 0 {
			t.Errorf("unexpected score: %f", hyps[0].Score)
		}
	})

	t.Run("Carry", func(t *testing.T) {
		d := newTableDecoder(terminatorModel(), 99, 6)
		d.FinishedPolicy = CarryFinished
		var duplicates bool
		d.OnStep = func(s *SearchStep) {
			seen := map[string]bool{}
			for i, beam := range s.Beams {
				if math.IsInf(s.Scores[i], -1) {
					continue
				}
				key := fmt.Sprint(beam)
				if seen[key] {
					duplicates = true
				}
				seen[key] = true
			}
		}
		hyps, err := d.BeamSearch(b, 3)
		if err != nil {
			t.Fatal(err)
		}
		expected := []int{6, 9, 9, 9, 9, 9}
		if !reflect.DeepEqual(hyps[0].Tokens, expected) {
			t.Errorf("expected %v but got %v", expected, hyps[0].Tokens)
		}
		if math.Abs(hyps[0].Score-math.Log(0.6)/6) > 1e-8 {
			t.Errorf("unexpected score: %f", hyps[0].Score)
		}
		if duplicates {
			t.Error("finished beam was duplicated")
		}
	})
}

func TestBeamSearchBestMonotonic(t *testing.T) {
	d := newTableDecoder(terminatorModel(), 99, 8)
	var history [][]float64
	d.OnStep = func(s *SearchStep) {
		history = append(history, s.BestScores)
	}
	b := testBatch([][]int{{11, 12}, {13, 0}}, nil)
	if _, err := d.BeamSearch(b, 3); err != nil {
		t.Fatal(err)
	}
	if len(history) != 8 {
		t.Fatalf("expected 8 steps but got %d", len(history))
	}
	for step := 1; step < len(history); step++ {
		for ex, score := range history[step] {
			if score < history[step-1][ex] {
				t.Errorf("step %d example %d: best score decreased from %f to %f",
					step, ex, history[step-1][ex], score)
			}
		}
	}
	for ex, score := range history[len(history)-1] {
		if score == -math.MaxFloat64 {
			t.Errorf("example %d: no finished beam recorded", ex)
		}
	}
}

func TestBeamSearchIdempotent(t *testing.T) {
	d := newTableDecoder(terminatorModel(), 99, 7)
	b := testBatch([][]int{{11, 12}, {12, 0}, {5, 8}}, nil)
	first, err := d.Decode(b, 4)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Decode(b, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("decoding differs: %v then %v", first, second)
	}
}

func TestBeamSearchFrozenBeams(t *testing.T) {
	d := newTableDecoder(terminatorModel(), 99, 6)
	d.OnStep = func(s *SearchStep) {
		it := s.Step
		if it == 0 {
			return
		}
		for lane, beam := range s.Beams {
			if d.isFinal(beam[it-1]) && beam[it] != PadID {
				t.Errorf("step %d lane %d: finished beam emitted %d", it, lane,
					beam[it])
			}
		}
	}
	if _, err := d.BeamSearch(testBatch([][]int{{11, 12}}, nil), 3); err != nil {
		t.Fatal(err)
	}
}
