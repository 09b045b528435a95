package qnet

import (
	"encoding/json"
	"io/ioutil"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
)

// Config stores the hyper-parameters of a Model.
type Config struct {
	VocabSize  int `json:"vocab_size"`
	NumPOS     int `json:"num_pos"`
	NumNER     int `json:"num_ner"`
	Terminator int `json:"terminator"`

	EmbeddingSize     int  `json:"embedding_size"`
	POSEmbeddingSize  int  `json:"pos_embedding_size"`
	NEREmbeddingSize  int  `json:"ner_embedding_size"`
	CaseEmbeddingSize int  `json:"case_embedding_size"`
	UsePOS            bool `json:"use_pos_features"`
	UseNER            bool `json:"use_ner_features"`
	UseCase           bool `json:"use_case_features"`

	// UseQuestionEncoder enables the bidirectional question
	// encoder.
	// Without it, the decoder attends directly to the
	// question embeddings and starts from a zero state.
	UseQuestionEncoder bool `json:"use_question_encodings"`

	QuestionHiddenSize int `json:"question_encoder_hidden_size"`
	FactHiddenSize     int `json:"fact_encoder_hidden_size"`
	DecoderHiddenSize  int `json:"decoder_hidden_size"`
	ReadoutSize        int `json:"readout_size"`
	MixerUnits         int `json:"mixer_units"`

	MaxOutputLength int `json:"max_generated_question_length"`
	BeamSize        int `json:"beam_size"`
	BatchSize       int `json:"batch_size"`
}

// DefaultConfig creates a configuration with the default
// layer sizes.
// The vocabulary and tag counts must still be set.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingSize:      300,
		POSEmbeddingSize:   16,
		NEREmbeddingSize:   16,
		CaseEmbeddingSize:  4,
		UsePOS:             true,
		UseNER:             true,
		UseCase:            true,
		UseQuestionEncoder: true,
		QuestionHiddenSize: 256,
		FactHiddenSize:     256,
		DecoderHiddenSize:  256,
		ReadoutSize:        128,
		MixerUnits:         repeatq.DefaultMixerUnits,
		MaxOutputLength:    50,
		BeamSize:           5,
		BatchSize:          32,
	}
}

// LoadConfig reads a JSON configuration.
// Missing fields take their default values.
//
// The result is not validated, since the vocabulary and
// tag counts usually come from the vocabulary files.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks that the configuration describes a
// buildable model.
func (c *Config) Validate() error {
	for _, field := range []struct {
		name  string
		value int
	}{
		{"vocab_size", c.VocabSize},
		{"embedding_size", c.EmbeddingSize},
		{"fact_encoder_hidden_size", c.FactHiddenSize},
		{"decoder_hidden_size", c.DecoderHiddenSize},
		{"readout_size", c.ReadoutSize},
		{"mixer_units", c.MixerUnits},
		{"max_generated_question_length", c.MaxOutputLength},
		{"beam_size", c.BeamSize},
		{"batch_size", c.BatchSize},
	} {
		if field.value < 1 {
			return errors.Errorf("config: %s must be positive (got %d)", field.name,
				field.value)
		}
	}
	if c.Terminator <= repeatq.PadID || c.Terminator >= c.VocabSize {
		return errors.Errorf("config: terminator %d outside of vocabulary",
			c.Terminator)
	}
	if c.UsePOS && (c.NumPOS < 1 || c.POSEmbeddingSize < 1) {
		return errors.New("config: POS features need tags and an embedding size")
	}
	if c.UseNER && (c.NumNER < 1 || c.NEREmbeddingSize < 1) {
		return errors.New("config: NER features need tags and an embedding size")
	}
	if c.UseCase && c.CaseEmbeddingSize < 1 {
		return errors.New("config: case features need an embedding size")
	}
	if c.UseQuestionEncoder && c.QuestionHiddenSize != c.DecoderHiddenSize {
		return errors.Wrapf(repeatq.ErrShapeMismatch,
			"config: question encoder size %d must match decoder size %d",
			c.QuestionHiddenSize, c.DecoderHiddenSize)
	}
	return nil
}

// InputSize returns the size of an embedded source token,
// including side features.
func (c *Config) InputSize() int {
	size := c.EmbeddingSize
	if c.UsePOS {
		size += c.POSEmbeddingSize
	}
	if c.UseNER {
		size += c.NEREmbeddingSize
	}
	if c.UseCase {
		size += c.CaseEmbeddingSize
	}
	return size
}

// QuestionSize returns the size of each question
// encoding.
func (c *Config) QuestionSize() int {
	if c.UseQuestionEncoder {
		return 2 * c.QuestionHiddenSize
	}
	return c.InputSize()
}

// WithVocabulary sets the vocabulary size and the
// terminator token.
func (c *Config) WithVocabulary(size, terminator int) *Config {
	c.VocabSize = size
	c.Terminator = terminator
	return c
}

// WithTags sets the number of POS and NER tags.
func (c *Config) WithTags(numPOS, numNER int) *Config {
	c.NumPOS = numPOS
	c.NumNER = numNER
	return c
}

// WithEmbeddingSize sets the word embedding size.
func (c *Config) WithEmbeddingSize(size int) *Config {
	c.EmbeddingSize = size
	return c
}

// WithFeatures toggles the side features.
func (c *Config) WithFeatures(pos, ner, letterCase bool) *Config {
	c.UsePOS = pos
	c.UseNER = ner
	c.UseCase = letterCase
	return c
}

// WithQuestionEncoder toggles the question encoder.
func (c *Config) WithQuestionEncoder(use bool) *Config {
	c.UseQuestionEncoder = use
	return c
}

// WithHiddenSizes sets the recurrent state sizes.
// The question encoder and the decoder share a size.
func (c *Config) WithHiddenSizes(decoder, facts int) *Config {
	c.QuestionHiddenSize = decoder
	c.DecoderHiddenSize = decoder
	c.FactHiddenSize = facts
	return c
}

// WithReadoutSize sets the readout layer size.
func (c *Config) WithReadoutSize(size int) *Config {
	c.ReadoutSize = size
	return c
}

// WithMaxOutputLength sets the maximum number of decoding
// steps.
func (c *Config) WithMaxOutputLength(n int) *Config {
	c.MaxOutputLength = n
	return c
}

// WithBeamSize sets the beam width.
func (c *Config) WithBeamSize(n int) *Config {
	c.BeamSize = n
	return c
}

// WithBatchSize sets the number of examples per batch.
func (c *Config) WithBatchSize(n int) *Config {
	c.BatchSize = n
	return c
}
