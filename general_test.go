package repeatq

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

// tableModel is an Encoder and Cell whose vocabulary
// distribution is looked up from the previous observation.
//
// The hidden state counts the number of unfrozen steps,
// and the carry accumulates observations.
type tableModel struct {
	VocabSize  int
	HiddenSize int

	Table    map[int]map[int]float64
	Fallback map[int]float64

	// NaNAfter, if positive, makes the vocabulary logits
	// NaN once the hidden counter reaches it.
	NaNAfter int
}

func (t *tableModel) Encode(b *Batch) (*Encodings, error) {
	c := anyvec64.DefaultCreator{}
	n := b.NumExamples()
	return &Encodings{
		Question:     c.MakeVector(n * b.QuestionLen()),
		QuestionSize: 1,
		Facts:        c.MakeVector(n * b.FactsLen()),
		FactsSize:    1,
		Hidden:       c.MakeVector(n * t.HiddenSize),
		Carry:        c.MakeVector(n * t.HiddenSize),
	}, nil
}

func (t *tableModel) Embed(tokens []int) (anyvec.Vector, error) {
	data := make([]float64, len(tokens))
	for i, tok := range tokens {
		if tok < 0 || tok >= t.VocabSize {
			return nil, errors.Wrapf(ErrTokenOutOfVocabulary, "token %d", tok)
		}
		data[i] = float64(tok)
	}
	return MakeVector(anyvec64.DefaultCreator{}, data), nil
}

func (t *tableModel) Step(s *NetworkState, prev anyvec.Vector) *CellOutput {
	c := anyvec64.DefaultCreator{}
	lanes := s.Lanes()
	prevData := Float64s(prev)

	hidden := s.Hidden.Copy()
	hidden.AddScalar(hidden.Creator().MakeNumeric(1))
	carry := Float64s(s.Carry.Copy())
	for i := range carry {
		carry[i] += prevData[i/t.HiddenSize]
	}

	logits := make([]float64, 0, lanes*t.VocabSize)
	counter := Float64s(hidden)
	for lane, obs := range s.Observation {
		dist, ok := t.Table[obs]
		if !ok {
			dist = t.Fallback
		}
		for v := 0; v < t.VocabSize; v++ {
			p := dist[v]
			switch {
			case t.NaNAfter > 0 && counter[lane*t.HiddenSize] >= float64(t.NaNAfter):
				logits = append(logits, math.NaN())
			case p > 0:
				logits = append(logits, math.Log(p))
			default:
				logits = append(logits, -1e4)
			}
		}
	}

	return &CellOutput{
		VocabLogits:       MakeVector(c, logits),
		QuestionLogits:    c.MakeVector(lanes * s.QuestionLen()),
		FactsLogits:       c.MakeVector(lanes * s.FactsLen()),
		QuestionAttention: c.MakeVector(lanes),
		FactsAttention:    c.MakeVector(lanes),
		Hidden:            hidden,
		Carry:             MakeVector(c, carry),
	}
}

func newTableDecoder(m *tableModel, terminator, maxLen int) *Decoder {
	return NewDecoder(m, m, FixedMixer{1, 0, 0}, terminator, maxLen)
}

// testBatch creates a batch of examples with the given
// question tokens and targets, and no facts.
func testBatch(questions, targets [][]int) *Batch {
	b := &Batch{}
	for i, q := range questions {
		ex := &Example{Question: Sentence{Tokens: q}}
		if targets != nil {
			ex.Target = targets[i]
		}
		b.Examples = append(b.Examples, ex)
	}
	return b
}

func randomVector(c anyvec.Creator, size int) anyvec.Vector {
	vec := c.MakeVector(size)
	anyvec.Rand(vec, anyvec.Normal, nil)
	return vec
}

func randomStepResult(c anyvec.Creator, lanes, vocab, questionLen, factsLen int) *StepResult {
	origin := make([]float64, 0, lanes*3)
	for i := 0; i < lanes; i++ {
		a, b, d := rand.Float64(), rand.Float64(), rand.Float64()
		sum := a + b + d
		origin = append(origin, a/sum, b/sum, d/sum)
	}
	return &StepResult{
		VocabLogits:    randomVector(c, lanes*vocab),
		QuestionLogits: randomVector(c, lanes*questionLen),
		FactsLogits:    randomVector(c, lanes*factsLen),
		Origin:         MakeVector(c, origin),
	}
}

func vectorsEqual(t *testing.T, name string, actual, expected anyvec.Vector) {
	if actual.Len() != expected.Len() {
		t.Errorf("%s: expected length %d but got %d", name, expected.Len(),
			actual.Len())
		return
	}
	diff := actual.Copy()
	diff.Sub(expected)
	if diff.Len() > 0 && anyvec.AbsMax(diff).(float64) > 1e-4 {
		t.Errorf("%s: expected %v but got %v", name, expected.Data(), actual.Data())
	}
}

func laneSums(t *testing.T, v anyvec.Vector, lanes int) []float64 {
	data := Float64s(v)
	size := len(data) / lanes
	res := make([]float64, lanes)
	for i, x := range data {
		if x < 0 || math.IsNaN(x) {
			t.Fatalf("invalid probability %v at %d", x, i)
		}
		res[i/size] += x
	}
	return res
}
