package repeatq

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestStepFreeze(t *testing.T) {
	m := &tableModel{VocabSize: 100, HiddenSize: 2, Fallback: map[int]float64{7: 1}}
	d := newTableDecoder(m, 99, 5)
	b := testBatch([][]int{{3, 4}, {3, 4}, {3, 4}}, nil)
	initial, err := d.start(b)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("FirstStep", func(t *testing.T) {
		res, err := d.Step(initial)
		if err != nil {
			t.Fatal(err)
		}
		expected := []float64{1, 1, 1, 1, 1, 1}
		vectorsEqual(t, "hidden", res.Hidden,
			MakeVector(anyvec64.DefaultCreator{}, expected))
	})

	t.Run("Frozen", func(t *testing.T) {
		c := anyvec64.DefaultCreator{}
		hidden := MakeVector(c, []float64{1, 2, 3, 4, 5, 6})
		carry := MakeVector(c, []float64{-1, -2, -3, -4, -5, -6})
		state := initial.Advance(hidden, carry, []int{PadID, 99, 5})
		res, err := d.Step(state)
		if err != nil {
			t.Fatal(err)
		}
		actualHidden := Float64s(res.Hidden)
		actualCarry := Float64s(res.Carry)
		for i, x := range []float64{1, 2, 3, 4, 6, 7} {
			if actualHidden[i] != x {
				t.Errorf("hidden %d: expected %v but got %v", i, x, actualHidden[i])
			}
		}
		for i, x := range []float64{-1, -2, -3, -4, 0, -1} {
			if actualCarry[i] != x {
				t.Errorf("carry %d: expected %v but got %v", i, x, actualCarry[i])
			}
		}
	})
}

func TestStepErrors(t *testing.T) {
	m := &tableModel{VocabSize: 10, HiddenSize: 1, Fallback: map[int]float64{7: 1}}
	d := newTableDecoder(m, 9, 3)

	t.Run("Embed", func(t *testing.T) {
		initial, err := d.start(testBatch([][]int{{3}}, nil))
		if err != nil {
			t.Fatal(err)
		}
		c := anyvec64.DefaultCreator{}
		state := initial.Advance(c.MakeVector(1), c.MakeVector(1), []int{50})
		if _, err := d.Step(state); !errors.Is(err, ErrTokenOutOfVocabulary) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("RaggedBatch", func(t *testing.T) {
		b := testBatch([][]int{{3, 4}, {3}}, nil)
		if _, err := d.Decode(b, 2); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Features", func(t *testing.T) {
		b := testBatch([][]int{{3, 4}}, nil)
		b.Examples[0].Question.POS = []int{1}
		if _, err := d.Decode(b, 2); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Encodings", func(t *testing.T) {
		bad := *d
		bad.Encoder = badEncoder{m}
		if _, err := bad.Decode(testBatch([][]int{{3, 4}}, nil), 2); !errors.Is(err,
			ErrShapeMismatch) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("NaN", func(t *testing.T) {
		nanModel := *m
		nanModel.NaNAfter = 2
		nanDecoder := newTableDecoder(&nanModel, 9, 5)
		res, err := nanDecoder.BeamSearch(testBatch([][]int{{3, 4}}, nil), 2)
		if !errors.Is(err, ErrNumericInstability) {
			t.Errorf("unexpected error: %v", err)
		}
		if res != nil {
			t.Error("expected no partial result")
		}
	})
}

type badEncoder struct {
	*tableModel
}

func (b badEncoder) Encode(batch *Batch) (*Encodings, error) {
	enc, err := b.tableModel.Encode(batch)
	if err != nil {
		return nil, err
	}
	enc.QuestionSize = 3
	return enc, nil
}
