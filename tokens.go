package repeatq

import (
	"math"

	"github.com/unixpickle/anyvec"
)

// Candidates stores the best k continuations of every
// lane, ordered from most to least likely.
type Candidates struct {
	K int

	// Tokens and Probs have K entries per lane.
	// Probs are joint probabilities, i.e. they include the
	// origin mixture weight.
	Tokens []int
	Probs  []float64

	// Origins indicates where each candidate came from,
	// using the Origin* constants.
	Origins []int
}

// Lanes returns the number of lanes.
func (c *Candidates) Lanes() int {
	return len(c.Tokens) / c.K
}

// Token returns the j-th candidate token of a lane.
func (c *Candidates) Token(lane, j int) int {
	return c.Tokens[lane*c.K+j]
}

// Prob returns the probability of the j-th candidate of a
// lane.
func (c *Candidates) Prob(lane, j int) float64 {
	return c.Probs[lane*c.K+j]
}

// stepDists stores the per-origin distributions of a step
// as flat lane-major slices.
type stepDists struct {
	Lanes    int
	Vocab    []float64
	Question []float64
	Facts    []float64
	Origin   []float64
}

func newStepDists(res *StepResult, lanes, questionLen, factsLen int) *stepDists {
	vocabSize := res.VocabSize(lanes)
	return &stepDists{
		Lanes:    lanes,
		Vocab:    Float64s(StableSoftmax(res.VocabLogits, vocabSize)),
		Question: Float64s(StableSoftmax(res.QuestionLogits, questionLen)),
		Facts:    Float64s(StableSoftmax(res.FactsLogits, factsLen)),
		Origin:   Float64s(res.Origin),
	}
}

// weighted returns the joint probabilities for one origin
// of one lane.
func (s *stepDists) weighted(lane, origin int) []float64 {
	var dist []float64
	switch origin {
	case OriginGenerate:
		dist = s.Vocab
	case OriginQuestion:
		dist = s.Question
	default:
		dist = s.Facts
	}
	size := len(dist) / s.Lanes
	weight := s.Origin[lane*numOrigins+origin]
	res := make([]float64, size)
	for i, x := range dist[lane*size : (lane+1)*size] {
		res[i] = weight * x
	}
	return res
}

// OutputTokens finds the best k continuations of every
// lane.
//
// Copy candidates from the question and the facts compete
// together: the j-th best copy candidate is compared
// against the j-th best generated word, and the more
// likely of the two becomes the lane's j-th candidate.
// Ties go to the copy candidate.
// Source positions holding PadID are never copied.
//
// If neither source has a j-th candidate, the j-th
// candidate is PadID with probability 0.
func OutputTokens(res *StepResult, question, facts [][]int, k int) *Candidates {
	if k < 1 {
		panic("invalid candidate count")
	}
	lanes := len(question)
	var questionLen, factsLen int
	if lanes > 0 {
		questionLen, factsLen = len(question[0]), len(facts[0])
	}
	dists := newStepDists(res, lanes, questionLen, factsLen)

	cands := &Candidates{
		K:       k,
		Tokens:  make([]int, lanes*k),
		Probs:   make([]float64, lanes*k),
		Origins: make([]int, lanes*k),
	}
	for lane := 0; lane < lanes; lane++ {
		genProbs := dists.weighted(lane, OriginGenerate)
		genTop := topK(genProbs, k)

		copyProbs := append(dists.weighted(lane, OriginQuestion),
			dists.weighted(lane, OriginFacts)...)
		copyTokens := append(append([]int{}, question[lane]...), facts[lane]...)
		for i, t := range copyTokens {
			if t == PadID {
				copyProbs[i] = -1
			}
		}
		copyTop := topK(copyProbs, k)

		for j := 0; j < k; j++ {
			genProb, copyProb := -1.0, -1.0
			if j < len(genTop) {
				genProb = genProbs[genTop[j]]
			}
			if j < len(copyTop) {
				copyProb = copyProbs[copyTop[j]]
			}
			idx := lane*k + j
			switch {
			case copyProb < 0 && genProb < 0:
				cands.Tokens[idx] = PadID
				cands.Probs[idx] = 0
				cands.Origins[idx] = OriginGenerate
			case copyProb >= genProb:
				pos := copyTop[j]
				cands.Tokens[idx] = copyTokens[pos]
				cands.Probs[idx] = copyProb
				cands.Origins[idx] = OriginQuestion
				if pos >= questionLen {
					cands.Origins[idx] = OriginFacts
				}
			default:
				cands.Tokens[idx] = genTop[j]
				cands.Probs[idx] = genProb
				cands.Origins[idx] = OriginGenerate
			}
		}
	}
	return cands
}

// PointerSoftmax computes the joint distribution of every
// lane.
//
// Each lane's distribution is laid out as the weighted
// vocabulary distribution, followed by the weighted
// question copy distribution, followed by the weighted
// facts copy distribution.
// Each lane's distribution sums to 1.
func PointerSoftmax(res *StepResult, lanes, questionLen, factsLen int) anyvec.Vector {
	c := res.VocabLogits.Creator()
	vocabSize := res.VocabSize(lanes)
	dists := []anyvec.Vector{
		StableSoftmax(res.VocabLogits, vocabSize),
		StableSoftmax(res.QuestionLogits, questionLen),
		StableSoftmax(res.FactsLogits, factsLen),
	}
	sizes := []int{vocabSize, questionLen, factsLen}
	origin := Float64s(res.Origin)

	var parts []anyvec.Vector
	for lane := 0; lane < lanes; lane++ {
		for o, dist := range dists {
			size := sizes[o]
			if size == 0 {
				continue
			}
			part := dist.Slice(lane*size, (lane+1)*size).Copy()
			part.Scale(c.MakeNumeric(origin[lane*numOrigins+o]))
			parts = append(parts, part)
		}
	}
	return c.Concat(parts...)
}

// topK finds the indices of the k largest values, from
// largest to smallest.
// Among equal values, lower indices come first.
// NaN values are never selected.
func topK(values []float64, k int) []int {
	res := make([]int, 0, k)
	for i, x := range values {
		if math.IsNaN(x) || (len(res) == k && x <= values[res[k-1]]) {
			continue
		}
		pos := len(res)
		for pos > 0 && values[res[pos-1]] < x {
			pos--
		}
		if len(res) < k {
			res = append(res, 0)
		}
		copy(res[pos+1:], res[pos:len(res)-1])
		res[pos] = i
	}
	return res
}
