// Package repeatq implements a pointer-generator decoder
// for rewriting questions.
//
// At every step, the decoder mixes three output sources:
// generating a vocabulary word, copying a token of the
// source question, or copying a token of the supporting
// facts.
// The decoder can be run with teacher forcing (for
// scoring targets) or with a batched beam search.
//
// Neural sub-modules (encoders, the recurrent cell and
// attention) are supplied through the Encoder and Cell
// interfaces; see the qnet sub-package for an
// implementation.
package repeatq

import "github.com/unixpickle/anyvec"

// PadID is the token id used for padding.
// It doubles as the "nothing to emit" token for finished
// sequences.
const PadID = 0

// Encodings stores the encoder outputs for a batch.
//
// All vectors are packed lane-major.
// For n lanes, Question has n*Lq*QuestionSize components,
// Facts has n*F*Lf*FactsSize components, and Hidden and
// Carry each have n*HiddenSize components, where the
// hidden size is implied by the vector length.
type Encodings struct {
	Question     anyvec.Vector
	QuestionSize int

	Facts     anyvec.Vector
	FactsSize int

	Hidden anyvec.Vector
	Carry  anyvec.Vector
}

// An Encoder encodes the question and facts of a batch.
type Encoder interface {
	Encode(b *Batch) (*Encodings, error)
}

// CellOutput is the result of running a recurrent cell
// for one timestep on every lane.
type CellOutput struct {
	// Unnormalized scores over the vocabulary, with
	// VocabSize components per lane.
	VocabLogits anyvec.Vector

	// Unnormalized copy scores for every question and
	// (flattened) fact position.
	QuestionLogits anyvec.Vector
	FactsLogits    anyvec.Vector

	// Attention context vectors.
	QuestionAttention anyvec.Vector
	FactsAttention    anyvec.Vector

	Hidden anyvec.Vector
	Carry  anyvec.Vector
}

// A Cell is a recurrent decoder cell with attention over
// the encoded question and facts.
type Cell interface {
	// Embed produces one packed embedding per token.
	// It fails for tokens outside of the vocabulary.
	Embed(tokens []int) (anyvec.Vector, error)

	// Step runs the cell on every lane of the state, given
	// the embedded previous observations.
	Step(s *NetworkState, prev anyvec.Vector) *CellOutput
}

// A Mixer computes the origin mixture, i.e. a probability
// distribution over (generate, copy-question,
// copy-facts), for every lane.
//
// The result has 3 components per lane.
type Mixer interface {
	Mix(hidden, question, facts anyvec.Vector, lanes int) anyvec.Vector
}

// Origin indices in an origin mixture.
const (
	OriginGenerate = iota
	OriginQuestion
	OriginFacts

	numOrigins
)
