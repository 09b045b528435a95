package dataset

import (
	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/unixpickle/essentials"
)

// Batches groups examples into padded batches of at most
// size examples, preserving their order.
//
// Within a batch, questions, facts and targets are padded
// with repeatq.PadID to their longest length, and examples
// with fewer facts get empty facts.
func Batches(examples []*repeatq.Example, size int) []*repeatq.Batch {
	if size < 1 {
		panic("invalid batch size")
	}
	var res []*repeatq.Batch
	for start := 0; start < len(examples); start += size {
		end := essentials.MinInt(start+size, len(examples))
		res = append(res, padBatch(examples[start:end]))
	}
	return res
}

func padBatch(examples []*repeatq.Example) *repeatq.Batch {
	var questionLen, numFacts, factLen, targetLen int
	for _, ex := range examples {
		questionLen = essentials.MaxInt(questionLen, ex.Question.Len())
		numFacts = essentials.MaxInt(numFacts, len(ex.Facts))
		targetLen = essentials.MaxInt(targetLen, len(ex.Target))
		for _, fact := range ex.Facts {
			factLen = essentials.MaxInt(factLen, fact.Len())
		}
	}

	b := &repeatq.Batch{}
	for _, ex := range examples {
		padded := &repeatq.Example{
			Question: padSentence(&ex.Question, questionLen),
			Target:   padInts(ex.Target, targetLen),
		}
		for i := 0; i < numFacts; i++ {
			var fact repeatq.Sentence
			if i < len(ex.Facts) {
				fact = ex.Facts[i]
			}
			padded.Facts = append(padded.Facts, padSentence(&fact, factLen))
		}
		b.Examples = append(b.Examples, padded)
	}
	return b
}

func padSentence(s *repeatq.Sentence, length int) repeatq.Sentence {
	res := repeatq.Sentence{Tokens: padInts(s.Tokens, length)}
	if s.POS != nil {
		res.POS = padInts(s.POS, length)
	}
	if s.NER != nil {
		res.NER = padInts(s.NER, length)
	}
	if s.Case != nil {
		res.Case = padInts(s.Case, length)
	}
	return res
}

func padInts(ids []int, length int) []int {
	res := make([]int, length)
	copy(res, ids)
	return res
}
