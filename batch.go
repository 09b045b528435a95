package repeatq

import "github.com/pkg/errors"

// A Sentence is a tokenized, padded sequence along with
// aligned side features.
//
// Each side-feature slice is either nil (the feature is
// not available) or exactly as long as Tokens.
type Sentence struct {
	Tokens []int
	POS    []int
	NER    []int
	Case   []int
}

// Len returns the padded length of the sentence.
func (s *Sentence) Len() int {
	return len(s.Tokens)
}

// Length returns the number of tokens before the first
// padding token.
func (s *Sentence) Length() int {
	for i, t := range s.Tokens {
		if t == PadID {
			return i
		}
	}
	return len(s.Tokens)
}

func (s *Sentence) validate(what string) error {
	names := []string{"POS", "NER", "case"}
	for i, feature := range [][]int{s.POS, s.NER, s.Case} {
		if feature != nil && len(feature) != len(s.Tokens) {
			return ShapeError(what+" "+names[i]+" features", len(s.Tokens),
				len(feature))
		}
	}
	return nil
}

// An Example is one question to rewrite.
type Example struct {
	Question Sentence
	Facts    []Sentence

	// Target is the reference rewrite.
	// It is only needed for teacher forcing and scoring.
	Target []int
}

// A Batch is a rectangular group of examples.
//
// Every question has the same length, every example has
// the same number of facts, every fact has the same
// length, and every target has the same length.
// Shorter data is padded with PadID.
type Batch struct {
	Examples []*Example
}

// Validate checks that the batch is non-empty and
// rectangular.
func (b *Batch) Validate() error {
	if len(b.Examples) == 0 {
		return errors.Wrap(ErrShapeMismatch, "empty batch")
	}
	first := b.Examples[0]
	numFacts := len(first.Facts)
	factLen := b.FactLen()
	for i, ex := range b.Examples {
		if err := ex.Question.validate("question"); err != nil {
			return errors.WithMessagef(err, "example %d", i)
		}
		if ex.Question.Len() != first.Question.Len() {
			return errors.WithMessagef(ShapeError("question length",
				first.Question.Len(), ex.Question.Len()), "example %d", i)
		}
		if len(ex.Target) != len(first.Target) {
			return errors.WithMessagef(ShapeError("target length",
				len(first.Target), len(ex.Target)), "example %d", i)
		}
		if len(ex.Facts) != numFacts {
			return errors.WithMessagef(ShapeError("fact count", numFacts,
				len(ex.Facts)), "example %d", i)
		}
		for j := range ex.Facts {
			fact := &ex.Facts[j]
			if err := fact.validate("fact"); err != nil {
				return errors.WithMessagef(err, "example %d fact %d", i, j)
			}
			if fact.Len() != factLen {
				return errors.WithMessagef(ShapeError("fact length", factLen,
					fact.Len()), "example %d fact %d", i, j)
			}
		}
	}
	return nil
}

// NumExamples returns the number of examples.
func (b *Batch) NumExamples() int {
	return len(b.Examples)
}

// QuestionLen returns the padded question length.
func (b *Batch) QuestionLen() int {
	if len(b.Examples) == 0 {
		return 0
	}
	return b.Examples[0].Question.Len()
}

// NumFacts returns the number of facts per example.
func (b *Batch) NumFacts() int {
	if len(b.Examples) == 0 {
		return 0
	}
	return len(b.Examples[0].Facts)
}

// FactLen returns the padded length of each fact.
func (b *Batch) FactLen() int {
	if b.NumFacts() == 0 {
		return 0
	}
	return b.Examples[0].Facts[0].Len()
}

// FactsLen returns the number of flattened fact positions
// per example.
func (b *Batch) FactsLen() int {
	return b.NumFacts() * b.FactLen()
}

// TargetLen returns the padded target length.
func (b *Batch) TargetLen() int {
	if len(b.Examples) == 0 {
		return 0
	}
	return len(b.Examples[0].Target)
}

// Questions returns the question tokens of each example.
func (b *Batch) Questions() [][]int {
	res := make([][]int, len(b.Examples))
	for i, ex := range b.Examples {
		res[i] = ex.Question.Tokens
	}
	return res
}

// FlatFacts returns, for each example, the tokens of all
// of its facts concatenated together.
func (b *Batch) FlatFacts() [][]int {
	res := make([][]int, len(b.Examples))
	for i, ex := range b.Examples {
		flat := make([]int, 0, b.FactsLen())
		for _, fact := range ex.Facts {
			flat = append(flat, fact.Tokens...)
		}
		res[i] = flat
	}
	return res
}

// Targets returns the target tokens of each example.
func (b *Batch) Targets() [][]int {
	res := make([][]int, len(b.Examples))
	for i, ex := range b.Examples {
		res[i] = ex.Target
	}
	return res
}
