package repeatq

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
)

// FinishedPolicy determines how beam search scores the
// continuations of a beam which has already finished.
type FinishedPolicy int

const (
	// OverwriteFinished gives every continuation of a
	// finished beam the token PadID and a score of exactly
	// zero.
	// Since log-probabilities are never positive, this lets
	// finished beams take over the beam.
	OverwriteFinished FinishedPolicy = iota

	// CarryFinished gives a finished beam a single PadID
	// continuation which keeps the beam's own score.
	// Its other continuations are scored -Inf.
	CarryFinished
)

// A Decoder runs a pointer-generator decoder on top of an
// Encoder, a Cell and a Mixer.
type Decoder struct {
	Encoder Encoder
	Cell    Cell
	Mixer   Mixer

	// Terminator is the token which ends a question.
	Terminator int

	// MaxLength is the maximum number of decoding steps
	// for Greedy and BeamSearch.
	MaxLength int

	// FinishedPolicy is used by BeamSearch.
	FinishedPolicy FinishedPolicy

	// CheckNumerics enables NaN/Inf checks on the logits
	// produced at every step.
	CheckNumerics bool

	// OnStep, if non-nil, is called after every beam
	// search step.
	OnStep func(s *SearchStep)
}

// NewDecoder creates a Decoder with numeric checks
// enabled and the default finished-beam policy.
func NewDecoder(enc Encoder, cell Cell, mixer Mixer, terminator,
	maxLength int) *Decoder {
	return &Decoder{
		Encoder:       enc,
		Cell:          cell,
		Mixer:         mixer,
		Terminator:    terminator,
		MaxLength:     maxLength,
		CheckNumerics: true,
	}
}

// StepResult is the output of a single decode step.
//
// Origin stores the origin mixture, with 3 components per
// lane in the order generate, copy-question, copy-facts.
type StepResult struct {
	VocabLogits    anyvec.Vector
	QuestionLogits anyvec.Vector
	FactsLogits    anyvec.Vector
	Origin         anyvec.Vector

	Hidden anyvec.Vector
	Carry  anyvec.Vector
}

// VocabSize returns the number of vocabulary logits per
// lane.
func (s *StepResult) VocabSize(lanes int) int {
	return s.VocabLogits.Len() / lanes
}

// Step runs the decoder for one timestep.
//
// Lanes whose previous observation was PadID or the
// terminator are frozen: their hidden and carry state is
// passed through unchanged.
// Nothing is frozen on the first step.
func (d *Decoder) Step(s *NetworkState) (*StepResult, error) {
	prev, err := d.Cell.Embed(s.Observation)
	if err != nil {
		return nil, errors.WithMessage(err, "embed observations")
	}
	out := d.Cell.Step(s, prev)
	if err := checkCellOutput(s, out); err != nil {
		return nil, err
	}
	origin := d.Mixer.Mix(out.Hidden, out.QuestionAttention, out.FactsAttention,
		s.Lanes())

	frozen := d.frozenLanes(s)
	return &StepResult{
		VocabLogits:    out.VocabLogits,
		QuestionLogits: out.QuestionLogits,
		FactsLogits:    out.FactsLogits,
		Origin:         origin,
		Hidden:         selectLanes(out.Hidden, s.Hidden, frozen),
		Carry:          selectLanes(out.Carry, s.Carry, frozen),
	}, nil
}

func checkCellOutput(s *NetworkState, out *CellOutput) error {
	lanes := s.Lanes()
	if out.VocabLogits.Len() == 0 || out.VocabLogits.Len()%lanes != 0 {
		return ShapeError("vocabulary logits", lanes, out.VocabLogits.Len())
	}
	if out.QuestionLogits.Len() != lanes*s.QuestionLen() {
		return ShapeError("question logits", lanes*s.QuestionLen(),
			out.QuestionLogits.Len())
	}
	if out.FactsLogits.Len() != lanes*s.FactsLen() {
		return ShapeError("fact logits", lanes*s.FactsLen(), out.FactsLogits.Len())
	}
	if out.Hidden.Len() != s.Hidden.Len() {
		return ShapeError("hidden state", s.Hidden.Len(), out.Hidden.Len())
	}
	if out.Carry.Len() != s.Carry.Len() {
		return ShapeError("carry state", s.Carry.Len(), out.Carry.Len())
	}
	return nil
}

func (d *Decoder) frozenLanes(s *NetworkState) []bool {
	res := make([]bool, s.Lanes())
	if s.FirstStep {
		return res
	}
	for i, obs := range s.Observation {
		res[i] = d.isFinal(obs)
	}
	return res
}

func (d *Decoder) isFinal(token int) bool {
	return token == PadID || token == d.Terminator
}

func (d *Decoder) checkStep(step int, res *StepResult) error {
	if !d.CheckNumerics {
		return nil
	}
	for _, part := range []struct {
		name string
		vec  anyvec.Vector
	}{
		{"vocabulary logits", res.VocabLogits},
		{"question logits", res.QuestionLogits},
		{"fact logits", res.FactsLogits},
		{"origin mixture", res.Origin},
	} {
		if err := checkFinite(step, part.name, part.vec); err != nil {
			return err
		}
	}
	return nil
}

// start validates a batch, encodes it and creates the
// initial state.
func (d *Decoder) start(b *Batch) (*NetworkState, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	enc, err := d.Encoder.Encode(b)
	if err != nil {
		return nil, errors.WithMessage(err, "encode batch")
	}
	return NewNetworkState(b, enc)
}
