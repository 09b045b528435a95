package repeatq

import (
	"math"

	"github.com/pkg/errors"
)

// A Hypothesis is a decoded token sequence.
type Hypothesis struct {
	// Tokens runs up to and including the first
	// terminator, without padding.
	Tokens []int

	// Score is the sequence log-probability divided by the
	// number of steps it was normalized with.
	Score float64
}

// SearchStep describes the beam after a search step.
type SearchStep struct {
	Step int

	// Beams and Scores are indexed by lane, where lane
	// i*K+j is the j-th beam of example i.
	// Beams are padded to the maximum length.
	Beams  [][]int
	Scores []float64

	// BestScores stores the normalized score of the best
	// finished beam seen so far for each example.
	// It is -math.MaxFloat64 until a beam is recorded.
	BestScores []float64
}

// Decode runs a beam search and returns the best token
// sequence for every example.
func (d *Decoder) Decode(b *Batch, beamSize int) ([][]int, error) {
	hyps, err := d.BeamSearch(b, beamSize)
	if err != nil {
		return nil, err
	}
	seqs := make([][]int, len(hyps))
	for i, h := range hyps {
		seqs[i] = h.Tokens
	}
	return seqs, nil
}

// BeamSearch runs a batched beam search with beamSize
// beams per example.
//
// At every step, each beam proposes beamSize
// continuations (see OutputTokens), and the best beamSize
// of the beamSize*beamSize continuations survive.
// Ties are broken in favor of earlier beams and earlier
// candidates.
//
// Whenever the best surviving beam of an example has just
// finished, its score divided by the step index is
// compared to the best finished beam so far, which it
// replaces if it is at least as good.
// After d.MaxLength steps, the best beam, normalized by
// d.MaxLength, is returned unless the best finished beam
// is at least as good.
//
// The search always runs for d.MaxLength steps.
func (d *Decoder) BeamSearch(b *Batch, beamSize int) ([]*Hypothesis, error) {
	if beamSize < 1 {
		panic("invalid beam size")
	}
	if d.MaxLength < 1 {
		panic("invalid maximum length")
	}
	initial, err := d.start(b)
	if err != nil {
		return nil, err
	}

	n, k, maxLen := b.NumExamples(), beamSize, d.MaxLength
	lanes := n * k
	state := initial.Repeat(k)

	beams := make([][]int, lanes)
	scores := make([]float64, lanes)
	for i := range beams {
		beams[i] = make([]int, maxLen)
		if i%k != 0 {
			scores[i] = math.Inf(-1)
		}
	}
	best := make([]*Hypothesis, n)
	for i := range best {
		best[i] = &Hypothesis{Tokens: make([]int, maxLen), Score: -math.MaxFloat64}
	}

	for it := 0; it < maxLen; it++ {
		step, err := d.Step(state)
		if err != nil {
			return nil, errors.WithMessagef(err, "beam step %d", it)
		}
		if err := d.checkStep(it, step); err != nil {
			return nil, err
		}

		cands := OutputTokens(step, state.Question, state.Facts, k)
		candScores, candTokens := d.scoreCandidates(cands, beams, scores, it)

		newBeams := make([][]int, lanes)
		newScores := make([]float64, lanes)
		parents := make([]int, lanes)
		obs := make([]int, lanes)
		for ex := 0; ex < n; ex++ {
			offset := ex * k * k
			for j, flat := range topK(candScores[offset:offset+k*k], k) {
				lane := ex*k + j
				parent := ex*k + flat/k
				beam := append([]int{}, beams[parent]...)
				beam[it] = candTokens[offset+flat]
				newBeams[lane] = beam
				newScores[lane] = candScores[offset+flat]
				parents[lane] = parent
				obs[lane] = beam[it]
			}
		}

		for ex := 0; ex < n; ex++ {
			top := ex * k
			if !d.isFinal(newBeams[top][it]) {
				continue
			}
			norm := newScores[top] / float64(it)
			if norm >= best[ex].Score {
				best[ex] = &Hypothesis{
					Tokens: append([]int{}, newBeams[top]...),
					Score:  norm,
				}
			}
		}

		beams, scores = newBeams, newScores
		state = state.Advance(
			gatherLanes(step.Hidden, lanes, parents),
			gatherLanes(step.Carry, lanes, parents),
			obs,
		)

		if d.OnStep != nil {
			bestScores := make([]float64, n)
			for i, h := range best {
				bestScores[i] = h.Score
			}
			d.OnStep(&SearchStep{
				Step:       it,
				Beams:      beams,
				Scores:     append([]float64{}, scores...),
				BestScores: bestScores,
			})
		}
	}

	res := make([]*Hypothesis, n)
	for ex := 0; ex < n; ex++ {
		top := ex * k
		finalScore := scores[top] / float64(maxLen)
		if best[ex].Score >= finalScore {
			res[ex] = &Hypothesis{Tokens: d.trim(best[ex].Tokens), Score: best[ex].Score}
		} else {
			res[ex] = &Hypothesis{Tokens: d.trim(beams[top]), Score: finalScore}
		}
	}
	return res, nil
}

// scoreCandidates computes the cumulative score and the
// token of every candidate continuation of every beam.
func (d *Decoder) scoreCandidates(cands *Candidates, beams [][]int,
	scores []float64, it int) ([]float64, []int) {
	k := cands.K
	candScores := make([]float64, len(beams)*k)
	candTokens := make([]int, len(beams)*k)
	for lane, beam := range beams {
		finished := it > 0 && d.isFinal(beam[it-1])
		dead := math.IsInf(scores[lane], -1)
		for j := 0; j < k; j++ {
			idx := lane*k + j
			switch {
			case !finished:
				candScores[idx] = scores[lane] + math.Log(cands.Prob(lane, j))
				candTokens[idx] = cands.Token(lane, j)
			case dead:
				candScores[idx] = math.Inf(-1)
			case d.FinishedPolicy == CarryFinished && j == 0:
				candScores[idx] = scores[lane]
			case d.FinishedPolicy == CarryFinished:
				candScores[idx] = math.Inf(-1)
			default:
				candScores[idx] = 0
			}
		}
	}
	return candScores, candTokens
}

// trim cuts a padded sequence after the first terminator
// or before the first PadID.
func (d *Decoder) trim(seq []int) []int {
	var res []int
	for _, t := range seq {
		if t == PadID {
			break
		}
		res = append(res, t)
		if t == d.Terminator {
			break
		}
	}
	return res
}
