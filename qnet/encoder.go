package qnet

import (
	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// Encode embeds and encodes the questions and facts of a
// batch.
//
// Question encodings concatenate a forward and a backward
// LSTM, and the decoder starts from the final backward
// output.
// Every fact is encoded on its own by a forward LSTM.
// Padding positions have zero encodings.
func (m *Model) Encode(b *repeatq.Batch) (*repeatq.Encodings, error) {
	c := m.creator()
	cfg := m.Config
	n := b.NumExamples()

	var questions [][]anyvec.Vector
	for i, ex := range b.Examples {
		seq, err := m.embedSentence(&ex.Question)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d question", i)
		}
		questions = append(questions, seq)
	}

	res := &repeatq.Encodings{
		QuestionSize: cfg.QuestionSize(),
		FactsSize:    cfg.FactHiddenSize,
		Carry:        c.MakeVector(n * cfg.DecoderHiddenSize),
	}
	if cfg.UseQuestionEncoder {
		forward := runBlock(c, m.QuestionFwd, questions)
		backward := runBlock(c, m.QuestionBwd, reverseSeqs(questions))
		rows := make([][]anyvec.Vector, n)
		hidden := make([]anyvec.Vector, n)
		for i, fwd := range forward {
			bwd := backward[i]
			for t := range fwd {
				rows[i] = append(rows[i], c.Concat(fwd[t], bwd[len(bwd)-1-t]))
			}
			if len(bwd) > 0 {
				hidden[i] = bwd[len(bwd)-1]
			} else {
				hidden[i] = c.MakeVector(cfg.DecoderHiddenSize)
			}
		}
		res.Question = packRows(c, rows, b.QuestionLen(), res.QuestionSize)
		res.Hidden = c.Concat(hidden...)
	} else {
		res.Question = packRows(c, questions, b.QuestionLen(), res.QuestionSize)
		res.Hidden = c.MakeVector(n * cfg.DecoderHiddenSize)
	}

	var facts [][]anyvec.Vector
	for i, ex := range b.Examples {
		for j := range ex.Facts {
			seq, err := m.embedSentence(&ex.Facts[j])
			if err != nil {
				return nil, errors.WithMessagef(err, "example %d fact %d", i, j)
			}
			facts = append(facts, seq)
		}
	}
	res.Facts = packRows(c, runBlock(c, m.Facts, facts), b.FactLen(), res.FactsSize)

	return res, nil
}

// embedSentence embeds the unpadded tokens of a sentence
// along with their side features.
func (m *Model) embedSentence(s *repeatq.Sentence) ([]anyvec.Vector, error) {
	c := m.creator()
	cfg := m.Config
	var res []anyvec.Vector
	for t := 0; t < s.Length(); t++ {
		word, err := lookup(m.Words, s.Tokens[t])
		if err != nil {
			return nil, err
		}
		parts := []anyvec.Vector{word}
		for _, feature := range []struct {
			use   bool
			table *anynet.FC
			ids   []int
		}{
			{cfg.UsePOS, m.POS, s.POS},
			{cfg.UseNER, m.NER, s.NER},
			{cfg.UseCase, m.Case, s.Case},
		} {
			if !feature.use {
				continue
			}
			var id int
			if feature.ids != nil {
				id = feature.ids[t]
			}
			vec, err := lookup(feature.table, id)
			if err != nil {
				return nil, err
			}
			parts = append(parts, vec)
		}
		res = append(res, c.Concat(parts...))
	}
	return res, nil
}

// lookup finds the row of an embedding table.
func lookup(table *anynet.FC, id int) (anyvec.Vector, error) {
	if id < 0 || id >= table.OutCount {
		return nil, errors.Wrapf(repeatq.ErrTokenOutOfVocabulary,
			"id %d not in table of size %d", id, table.OutCount)
	}
	return table.Weights.Vector.Slice(id*table.InCount, (id+1)*table.InCount), nil
}

// runBlock applies an RNN block to every sequence and
// splits the outputs back up by sequence.
func runBlock(c anyvec.Creator, block anyrnn.Block, seqs [][]anyvec.Vector) [][]anyvec.Vector {
	res := make([][]anyvec.Vector, len(seqs))
	var total int
	for _, seq := range seqs {
		total += len(seq)
	}
	if total == 0 {
		return res
	}
	out := anyrnn.Map(anyseq.ConstSeqList(c, seqs), block)
	for _, batch := range out.Output() {
		for lane, present := range batch.Present {
			if present {
				start, end := seqRangeInBatch(batch, lane)
				res[lane] = append(res[lane], batch.Packed.Slice(start, end))
			}
		}
	}
	return res
}

func seqRangeInBatch(batch *anyseq.Batch, seqIdx int) (start, end int) {
	vecSize := batch.Packed.Len() / batch.NumPresent()
	for _, p := range batch.Present[:seqIdx] {
		if p {
			start += vecSize
		}
	}
	return start, start + vecSize
}

func reverseSeqs(seqs [][]anyvec.Vector) [][]anyvec.Vector {
	res := make([][]anyvec.Vector, len(seqs))
	for i, seq := range seqs {
		for j := len(seq) - 1; j >= 0; j-- {
			res[i] = append(res[i], seq[j])
		}
	}
	return res
}

// packRows packs sequences of vectors into a single
// vector with length vectors per row, using zero vectors
// for padding.
func packRows(c anyvec.Creator, rows [][]anyvec.Vector, length, size int) anyvec.Vector {
	var parts []anyvec.Vector
	for _, row := range rows {
		if len(row) > length {
			panic("row exceeds padded length")
		}
		parts = append(parts, row...)
		if len(row) < length {
			parts = append(parts, c.MakeVector((length-len(row))*size))
		}
	}
	if len(parts) == 0 {
		return c.MakeVector(0)
	}
	return c.Concat(parts...)
}
