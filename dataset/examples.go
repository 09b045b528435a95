package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io/ioutil"
	"strings"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
)

// RawExample is an example as stored on disk.
// Every sentence and tag sequence is space-separated.
type RawExample struct {
	BaseQuestion            string `json:"base_question"`
	BaseQuestionPOSTags     string `json:"base_question_pos_tags"`
	BaseQuestionEntityTags  string `json:"base_question_entity_tags"`
	BaseQuestionLetterCases string `json:"base_question_letter_cases"`

	Facts            []string `json:"facts"`
	FactsPOSTags     []string `json:"facts_pos_tags"`
	FactsEntityTags  []string `json:"facts_entity_tags"`
	FactsLetterCases []string `json:"facts_letter_cases"`

	Target      string `json:"target"`
	IsSynthetic bool   `json:"is_synthetic"`
}

// LoadExamples reads examples from a JSON array or from
// JSON lines.
func LoadExamples(path string) ([]*RawExample, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load examples")
	}
	trimmed := bytes.TrimSpace(data)
	var res []*RawExample
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &res); err != nil {
			return nil, errors.Wrapf(err, "parse examples %s", path)
		}
		return res, nil
	}
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var ex RawExample
		if err := json.Unmarshal(scanner.Bytes(), &ex); err != nil {
			return nil, errors.Wrapf(err, "parse examples %s:%d", path, line)
		}
		res = append(res, &ex)
	}
	return res, scanner.Err()
}

// A Featurizer converts raw examples to token ids.
type Featurizer struct {
	Words *Vocabulary
	Tags  *FeatureVocabulary
}

// Example converts a raw example.
// Tag sequences whose length differs from their sentence
// are a repeatq.ErrShapeMismatch error.
func (f *Featurizer) Example(raw *RawExample) (*repeatq.Example, error) {
	question, err := f.sentence(raw.BaseQuestion, raw.BaseQuestionPOSTags,
		raw.BaseQuestionEntityTags, raw.BaseQuestionLetterCases)
	if err != nil {
		return nil, errors.WithMessage(err, "base question")
	}
	res := &repeatq.Example{Question: *question}
	for i, fact := range raw.Facts {
		sent, err := f.sentence(fact, index(raw.FactsPOSTags, i),
			index(raw.FactsEntityTags, i), index(raw.FactsLetterCases, i))
		if err != nil {
			return nil, errors.WithMessagef(err, "fact %d", i)
		}
		res.Facts = append(res.Facts, *sent)
	}
	if raw.Target != "" {
		res.Target, err = f.Words.Encode(strings.Fields(raw.Target))
		if err != nil {
			return nil, errors.WithMessage(err, "target")
		}
	}
	return res, nil
}

func (f *Featurizer) sentence(text, pos, ner, cases string) (*repeatq.Sentence, error) {
	words := strings.Fields(text)
	tokens, err := f.Words.Encode(words)
	if err != nil {
		return nil, err
	}
	res := &repeatq.Sentence{Tokens: tokens}
	res.POS, err = tagIDs(pos, len(words), "POS", f.Tags.POS.ID)
	if err != nil {
		return nil, err
	}
	res.NER, err = tagIDs(ner, len(words), "entity", f.Tags.NER.ID)
	if err != nil {
		return nil, err
	}
	res.Case, err = tagIDs(cases, len(words), "letter case", CaseID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func tagIDs(tags string, count int, name string, id func(string) int) ([]int, error) {
	fields := strings.Fields(tags)
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields) != count {
		return nil, repeatq.ShapeError(name+" tags", count, len(fields))
	}
	res := make([]int, len(fields))
	for i, tag := range fields {
		res[i] = id(tag)
	}
	return res, nil
}

func index(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}
