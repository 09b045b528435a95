package qnet

import (
	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// maskedScore is the attention score given to padding
// positions.
const maskedScore = -1e9

// Embed looks up the word embedding of every token.
func (m *Model) Embed(tokens []int) (anyvec.Vector, error) {
	rows := make([]anyvec.Vector, len(tokens))
	for i, t := range tokens {
		row, err := lookup(m.Words, t)
		if err != nil {
			return nil, errors.WithMessagef(err, "lane %d", i)
		}
		rows[i] = row
	}
	return m.creator().Concat(rows...), nil
}

// Step runs the decoder LSTM, attends to the question
// and the facts, and computes the vocabulary logits.
func (m *Model) Step(s *repeatq.NetworkState, prev anyvec.Vector) *repeatq.CellOutput {
	n := s.Lanes()
	x := anydiff.NewConst(prev)
	h := anydiff.NewConst(s.Hidden)

	gate := func(idx int, activation func(anydiff.Res) anydiff.Res) anydiff.Res {
		return activation(anydiff.Add(
			m.GateIn[idx].Apply(x, n),
			m.GateHidden[idx].Apply(h, n),
		))
	}
	inGate := gate(0, anydiff.Sigmoid)
	forgetGate := gate(1, anydiff.Sigmoid)
	candidate := gate(2, anydiff.Tanh)
	outGate := gate(3, anydiff.Sigmoid)

	carry := anydiff.Add(
		anydiff.Mul(forgetGate, anydiff.NewConst(s.Carry)),
		anydiff.Mul(inGate, candidate),
	)
	hidden := anydiff.Mul(outGate, anydiff.Tanh(carry))

	questionQuery := m.QuestionQuery.Apply(hidden, n).Output()
	questionLogits, questionCtx := attend(s.Question, s.QuestionEnc, s.QuestionSize,
		questionQuery)
	factsQuery := m.FactsQuery.Apply(hidden, n).Output()
	factsLogits, factsCtx := attend(s.Facts, s.FactsEnc, s.FactsSize, factsQuery)

	readout := anydiff.Tanh(anydiff.Add(
		anydiff.Add(
			m.ReadoutHidden.Apply(hidden, n),
			m.ReadoutQuestion.Apply(anydiff.NewConst(questionCtx), n),
		),
		m.ReadoutFacts.Apply(anydiff.NewConst(factsCtx), n),
	))
	vocabLogits := m.Words.Apply(m.ReadoutProj.Apply(readout, n), n)

	return &repeatq.CellOutput{
		VocabLogits:       vocabLogits.Output(),
		QuestionLogits:    questionLogits,
		FactsLogits:       factsLogits,
		QuestionAttention: questionCtx,
		FactsAttention:    factsCtx,
		Hidden:            hidden.Output(),
		Carry:             carry.Output(),
	}
}

// attend computes dot-product attention of each lane's
// query over that lane's encoded source positions.
//
// It returns the raw scores (which double as copy logits)
// and the attention-weighted context vectors.
// Padding positions get maskedScore.
func attend(tokens [][]int, enc anyvec.Vector, size int,
	query anyvec.Vector) (logits, ctx anyvec.Vector) {
	c := query.Creator()
	lanes := len(tokens)
	if lanes == 0 || len(tokens[0]) == 0 {
		return c.MakeVector(0), c.MakeVector(lanes * size)
	}
	length := len(tokens[0])
	one, zero := c.MakeNumeric(1), c.MakeNumeric(0)
	encodings := &anyvec.MatrixBatch{Data: enc, Num: lanes, Rows: length, Cols: size}

	scores := &anyvec.MatrixBatch{
		Data: c.MakeVector(lanes * length),
		Num:  lanes,
		Rows: length,
		Cols: 1,
	}
	queries := &anyvec.MatrixBatch{Data: query, Num: lanes, Rows: size, Cols: 1}
	scores.Product(false, false, one, encodings, queries, zero)

	keep, masked := paddingMask(tokens)
	scores.Data.Mul(repeatq.MakeVector(c, keep))
	scores.Data.Add(repeatq.MakeVector(c, masked))

	weights := &anyvec.MatrixBatch{
		Data: repeatq.StableSoftmax(scores.Data, length),
		Num:  lanes,
		Rows: length,
		Cols: 1,
	}
	contexts := &anyvec.MatrixBatch{
		Data: c.MakeVector(lanes * size),
		Num:  lanes,
		Rows: size,
		Cols: 1,
	}
	contexts.Product(true, false, one, encodings, weights, zero)
	return scores.Data, contexts.Data
}

// paddingMask returns a 0/1 mask of non-padding positions
// and the scores to add at padding positions.
func paddingMask(tokens [][]int) (keep, masked []float64) {
	for _, row := range tokens {
		for _, token := range row {
			if token == repeatq.PadID {
				keep = append(keep, 0)
				masked = append(masked, maskedScore)
			} else {
				keep = append(keep, 1)
				masked = append(masked, 0)
			}
		}
	}
	return keep, masked
}
