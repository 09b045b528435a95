package repeatq

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Unrolled is the result of unrolling the decoder over a
// batch.
type Unrolled struct {
	// Actions stores the most likely token at every step,
	// for every example.
	// Once an example has finished, its actions are PadID.
	Actions [][]int

	// Distributions stores one joint distribution per step.
	// See PointerSoftmax for the layout.
	Distributions []anyvec.Vector

	VocabSize   int
	QuestionLen int
	FactsLen    int
}

// RowSize returns the number of components of each lane's
// joint distribution.
func (u *Unrolled) RowSize() int {
	return u.VocabSize + u.QuestionLen + u.FactsLen
}

// TrainStep runs the decoder with teacher forcing and
// returns the joint distribution at every target step.
func (d *Decoder) TrainStep(b *Batch) ([]anyvec.Vector, error) {
	u, err := d.Unroll(b)
	if err != nil {
		return nil, err
	}
	return u.Distributions, nil
}

// Unroll runs the decoder with teacher forcing.
//
// The observation fed to each step is the target token of
// the previous step, regardless of what the decoder
// predicted.
// The decoder runs for exactly as many steps as there are
// target tokens.
// An example is finished once the upcoming target token is
// PadID.
func (d *Decoder) Unroll(b *Batch) (*Unrolled, error) {
	if b.TargetLen() == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "unroll: batch has no targets")
	}
	return d.unroll(b, b.Targets())
}

// Greedy runs the decoder on its own predictions, always
// emitting the most likely token.
//
// Decoding stops once every example has emitted PadID or
// the terminator, or after d.MaxLength steps.
func (d *Decoder) Greedy(b *Batch) (*Unrolled, error) {
	if d.MaxLength < 1 {
		panic("invalid maximum length")
	}
	return d.unroll(b, nil)
}

func (d *Decoder) unroll(b *Batch, targets [][]int) (*Unrolled, error) {
	state, err := d.start(b)
	if err != nil {
		return nil, err
	}

	n := b.NumExamples()
	lq, lf := b.QuestionLen(), b.FactsLen()
	steps := d.MaxLength
	if targets != nil {
		steps = len(targets[0])
	}

	res := &Unrolled{
		Actions:     make([][]int, n),
		QuestionLen: lq,
		FactsLen:    lf,
	}
	finished := make([]bool, n)
	for it := 0; it < steps; it++ {
		if targets == nil && allTrue(finished) {
			break
		}
		step, err := d.Step(state)
		if err != nil {
			return nil, errors.WithMessagef(err, "step %d", it)
		}
		if err := d.checkStep(it, step); err != nil {
			return nil, err
		}
		res.VocabSize = step.VocabSize(n)
		res.Distributions = append(res.Distributions,
			PointerSoftmax(step, n, lq, lf))

		cands := OutputTokens(step, state.Question, state.Facts, 1)
		obs := make([]int, n)
		for i := range obs {
			token := cands.Token(i, 0)
			if finished[i] {
				token = PadID
			}
			res.Actions[i] = append(res.Actions[i], token)
			if targets != nil {
				obs[i] = targets[i][it]
				next := targets[i][essentials.MinInt(len(targets[i])-1, it+1)]
				finished[i] = finished[i] || next == PadID
			} else {
				obs[i] = token
				finished[i] = finished[i] || d.isFinal(token)
			}
		}
		state = state.Advance(step.Hidden, step.Carry, obs)
	}
	return res, nil
}

func allTrue(flags []bool) bool {
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return true
}
