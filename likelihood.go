package repeatq

import "math"

// TargetNLL computes the mean negative log-likelihood of
// the batch's target tokens under teacher-forced joint
// distributions.
//
// The probability of a target token is its vocabulary
// probability plus the probability of every question or
// fact position holding the token.
// Padding targets are not counted.
//
// The count of scored tokens is returned along with the
// mean.
// If no tokens are scored, the mean is 0.
func TargetNLL(u *Unrolled, b *Batch) (mean float64, count int) {
	targets := b.Targets()
	questions := b.Questions()
	facts := b.FlatFacts()
	rowSize := u.RowSize()

	var sum float64
	for t, dist := range u.Distributions {
		data := Float64s(dist)
		for i := range b.Examples {
			token := targets[i][t]
			if token == PadID {
				continue
			}
			row := data[i*rowSize : (i+1)*rowSize]
			sum -= math.Log(tokenProb(row, token, u.VocabSize, questions[i], facts[i]))
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}

func tokenProb(row []float64, token, vocabSize int, question, facts []int) float64 {
	var res float64
	if token < vocabSize {
		res = row[token]
	}
	for j, t := range question {
		if t == token {
			res += row[vocabSize+j]
		}
	}
	for j, t := range facts {
		if t == token {
			res += row[vocabSize+len(question)+j]
		}
	}
	return res
}
