// Package dataset loads question rewriting examples and
// converts them to and from token ids.
package dataset

import (
	"bufio"
	"os"
	"strings"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
)

// Special tokens.
const (
	PadToken        = "<blank>"
	UnknownToken    = "<unk>"
	TerminatorToken = "?"
)

// A Vocabulary maps words to token ids.
// Id 0 is always PadToken.
type Vocabulary struct {
	words []string
	ids   map[string]int
}

// NewVocabulary creates a vocabulary where each word's id
// is its index.
func NewVocabulary(words []string) (*Vocabulary, error) {
	if len(words) == 0 || words[0] != PadToken {
		return nil, errors.Errorf("vocabulary must start with %s", PadToken)
	}
	v := &Vocabulary{words: words, ids: map[string]int{}}
	for i, w := range words {
		if _, ok := v.ids[w]; ok {
			return nil, errors.Errorf("duplicate vocabulary word %q", w)
		}
		v.ids[w] = i
	}
	return v, nil
}

// LoadVocabulary reads a vocabulary file with one word
// per line.
func LoadVocabulary(path string) (*Vocabulary, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, errors.Wrap(err, "load vocabulary")
	}
	v, err := NewVocabulary(lines)
	if err != nil {
		return nil, errors.WithMessagef(err, "load vocabulary %s", path)
	}
	return v, nil
}

// Len returns the number of words.
func (v *Vocabulary) Len() int {
	return len(v.words)
}

// Lookup finds the id of a word.
func (v *Vocabulary) Lookup(word string) (int, bool) {
	id, ok := v.ids[word]
	return id, ok
}

// Word returns the word for an id.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return UnknownToken
	}
	return v.words[id]
}

// TerminatorID returns the id of TerminatorToken.
func (v *Vocabulary) TerminatorID() (int, error) {
	id, ok := v.ids[TerminatorToken]
	if !ok {
		return 0, errors.Errorf("vocabulary has no %q token", TerminatorToken)
	}
	return id, nil
}

// Encode converts words to ids.
//
// Unknown words map to UnknownToken if the vocabulary has
// it; otherwise they are an error.
func (v *Vocabulary) Encode(words []string) ([]int, error) {
	unknown, hasUnknown := v.ids[UnknownToken]
	res := make([]int, len(words))
	for i, w := range words {
		id, ok := v.ids[w]
		if !ok {
			if !hasUnknown {
				return nil, errors.Wrapf(repeatq.ErrTokenOutOfVocabulary, "word %q", w)
			}
			id = unknown
		}
		res[i] = id
	}
	return res, nil
}

// Decode converts ids to words, stopping at the first
// padding token.
func (v *Vocabulary) Decode(ids []int) []string {
	var res []string
	for _, id := range ids {
		if id == repeatq.PadID {
			break
		}
		res = append(res, v.Word(id))
	}
	return res
}

// A TagSet maps side-feature tags to ids.
// Id 0 is reserved for padding and unknown tags.
type TagSet struct {
	tags []string
	ids  map[string]int
}

// NewTagSet creates a tag set with ids starting at 1.
func NewTagSet(tags []string) *TagSet {
	t := &TagSet{ids: map[string]int{}}
	for _, tag := range tags {
		if _, ok := t.ids[tag]; !ok {
			t.tags = append(t.tags, tag)
			t.ids[tag] = len(t.tags)
		}
	}
	return t
}

// Len returns the number of tags, excluding padding.
func (t *TagSet) Len() int {
	return len(t.tags)
}

// ID returns the id of a tag, or 0 for unknown tags.
func (t *TagSet) ID(tag string) int {
	return t.ids[tag]
}

// FeatureVocabulary stores the tag sets of the side
// features.
type FeatureVocabulary struct {
	POS *TagSet
	NER *TagSet
}

// LoadFeatureVocabulary reads a feature vocabulary file.
// Each line is either "pos <tag>" or "ner <tag>".
func LoadFeatureVocabulary(path string) (*FeatureVocabulary, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, errors.Wrap(err, "load feature vocabulary")
	}
	var pos, ner []string
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, errors.Errorf("%s:%d: expected kind and tag", path, i+1)
		}
		switch fields[0] {
		case "pos":
			pos = append(pos, fields[1])
		case "ner":
			ner = append(ner, fields[1])
		default:
			return nil, errors.Errorf("%s:%d: unknown feature kind %q", path, i+1,
				fields[0])
		}
	}
	return &FeatureVocabulary{POS: NewTagSet(pos), NER: NewTagSet(ner)}, nil
}

// Letter case ids.
const (
	CaseLower = 1
	CaseUpper = 2
)

// CaseID converts a letter case tag ("UP" or "LOW") to an
// id.
func CaseID(tag string) int {
	switch tag {
	case "UP":
		return CaseUpper
	case "LOW":
		return CaseLower
	default:
		return 0
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var res []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for scanner.Scan() {
		res = append(res, strings.TrimRight(scanner.Text(), "\r"))
	}
	return res, scanner.Err()
}
