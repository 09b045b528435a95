package repeatq

import "github.com/unixpickle/anyvec"

// NetworkState is an immutable snapshot of the decoder
// state for a group of lanes.
//
// Encodings and source tokens are shared between
// snapshots; Advance produces a new snapshot rather than
// modifying the old one.
type NetworkState struct {
	// Source tokens for copying, one row per lane.
	// Facts rows hold every fact of the lane's example,
	// concatenated.
	Question [][]int
	Facts    [][]int

	QuestionEnc  anyvec.Vector
	QuestionSize int
	FactsEnc     anyvec.Vector
	FactsSize    int

	Hidden anyvec.Vector
	Carry  anyvec.Vector

	// Observation is the token each lane emitted at the
	// previous step.
	Observation []int
	FirstStep   bool
}

// NewNetworkState creates the initial state for a batch,
// with every observation set to PadID.
func NewNetworkState(b *Batch, enc *Encodings) (*NetworkState, error) {
	n := b.NumExamples()
	lq, lf := b.QuestionLen(), b.FactsLen()
	if enc.Hidden.Len()%n != 0 || enc.Hidden.Len() == 0 {
		return nil, ShapeError("hidden size", n, enc.Hidden.Len())
	}
	if enc.Carry.Len() != enc.Hidden.Len() {
		return nil, ShapeError("carry size", enc.Hidden.Len(), enc.Carry.Len())
	}
	if enc.Question.Len() != n*lq*enc.QuestionSize {
		return nil, ShapeError("question encodings", n*lq*enc.QuestionSize,
			enc.Question.Len())
	}
	if enc.Facts.Len() != n*lf*enc.FactsSize {
		return nil, ShapeError("fact encodings", n*lf*enc.FactsSize,
			enc.Facts.Len())
	}
	return &NetworkState{
		Question:     b.Questions(),
		Facts:        b.FlatFacts(),
		QuestionEnc:  enc.Question,
		QuestionSize: enc.QuestionSize,
		FactsEnc:     enc.Facts,
		FactsSize:    enc.FactsSize,
		Hidden:       enc.Hidden,
		Carry:        enc.Carry,
		Observation:  make([]int, n),
		FirstStep:    true,
	}, nil
}

// Lanes returns the number of lanes in the state.
func (n *NetworkState) Lanes() int {
	return len(n.Observation)
}

// HiddenSize returns the per-lane hidden size.
func (n *NetworkState) HiddenSize() int {
	return n.Hidden.Len() / n.Lanes()
}

// QuestionLen returns the number of question positions.
func (n *NetworkState) QuestionLen() int {
	if len(n.Question) == 0 {
		return 0
	}
	return len(n.Question[0])
}

// FactsLen returns the number of flattened fact
// positions.
func (n *NetworkState) FactsLen() int {
	if len(n.Facts) == 0 {
		return 0
	}
	return len(n.Facts[0])
}

// Advance creates the next snapshot.
// The new state is never a first step.
func (n *NetworkState) Advance(hidden, carry anyvec.Vector, obs []int) *NetworkState {
	res := *n
	res.Hidden = hidden
	res.Carry = carry
	res.Observation = append([]int{}, obs...)
	res.FirstStep = false
	return &res
}

// Repeat creates a state where every lane is repeated k
// times in a row, so that lane i of the receiver becomes
// lanes i*k through i*k+k-1.
func (n *NetworkState) Repeat(k int) *NetworkState {
	if k < 1 {
		panic("invalid repeat count")
	}
	res := &NetworkState{
		Question:     repeatRows(n.Question, k),
		Facts:        repeatRows(n.Facts, k),
		QuestionEnc:  repeatLanes(n.QuestionEnc, n.Lanes(), k),
		QuestionSize: n.QuestionSize,
		FactsEnc:     repeatLanes(n.FactsEnc, n.Lanes(), k),
		FactsSize:    n.FactsSize,
		Hidden:       repeatLanes(n.Hidden, n.Lanes(), k),
		Carry:        repeatLanes(n.Carry, n.Lanes(), k),
		Observation:  make([]int, 0, n.Lanes()*k),
		FirstStep:    n.FirstStep,
	}
	for _, obs := range n.Observation {
		for i := 0; i < k; i++ {
			res.Observation = append(res.Observation, obs)
		}
	}
	return res
}

func repeatRows(rows [][]int, k int) [][]int {
	res := make([][]int, 0, len(rows)*k)
	for _, row := range rows {
		for i := 0; i < k; i++ {
			res = append(res, row)
		}
	}
	return res
}
