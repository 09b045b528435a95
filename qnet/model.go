// Package qnet implements the neural components of a
// question rewriting model: feature-rich embeddings,
// recurrent question and fact encoders, and an attentive
// LSTM decoder cell.
package qnet

import (
	"encoding/json"
	"os"

	repeatq "github.com/NUS-IDS/ranlp21-fiqv"
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"k8s.io/klog/v2"
)

// NumCases is the number of letter case ids, including
// padding.
const NumCases = 3

const numGates = 4

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// A Model implements repeatq.Encoder and repeatq.Cell.
//
// Embedding tables are stored as the weights of fully
// connected layers, one row per id.
// The word table doubles as the output projection of the
// decoder.
type Model struct {
	Config *Config

	Words *anynet.FC
	POS   *anynet.FC
	NER   *anynet.FC
	Case  *anynet.FC

	QuestionFwd anyrnn.Block
	QuestionBwd anyrnn.Block
	Facts       anyrnn.Block

	// LSTM gates of the decoder cell, in the order input,
	// forget, candidate, output.
	GateIn     [numGates]*anynet.FC
	GateHidden [numGates]*anynet.FC

	QuestionQuery *anynet.FC
	FactsQuery    *anynet.FC

	ReadoutHidden   *anynet.FC
	ReadoutQuestion *anynet.FC
	ReadoutFacts    *anynet.FC
	ReadoutProj     *anynet.FC

	Mixer *repeatq.OriginMixer
}

// NewModel creates a randomly initialized model.
func NewModel(c anyvec.Creator, cfg *Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	questionSize := cfg.QuestionSize()
	decoderSize := cfg.DecoderHiddenSize
	m := &Model{
		Config: cfg,
		Words:  anynet.NewFC(c, cfg.EmbeddingSize, cfg.VocabSize),
		POS:    anynet.NewFC(c, essentials.MaxInt(cfg.POSEmbeddingSize, 1), cfg.NumPOS+1),
		NER:    anynet.NewFC(c, essentials.MaxInt(cfg.NEREmbeddingSize, 1), cfg.NumNER+1),
		Case:   anynet.NewFC(c, essentials.MaxInt(cfg.CaseEmbeddingSize, 1), NumCases),

		QuestionFwd: anyrnn.NewLSTM(c, cfg.InputSize(), essentials.MaxInt(cfg.QuestionHiddenSize, 1)),
		QuestionBwd: anyrnn.NewLSTM(c, cfg.InputSize(), essentials.MaxInt(cfg.QuestionHiddenSize, 1)),
		Facts:       anyrnn.NewLSTM(c, cfg.InputSize(), cfg.FactHiddenSize),

		QuestionQuery: anynet.NewFC(c, decoderSize, questionSize),
		FactsQuery:    anynet.NewFC(c, decoderSize, cfg.FactHiddenSize),

		ReadoutHidden:   anynet.NewFC(c, decoderSize, cfg.ReadoutSize),
		ReadoutQuestion: anynet.NewFC(c, questionSize, cfg.ReadoutSize),
		ReadoutFacts:    anynet.NewFC(c, cfg.FactHiddenSize, cfg.ReadoutSize),
		ReadoutProj:     anynet.NewFC(c, cfg.ReadoutSize, cfg.EmbeddingSize),

		Mixer: repeatq.NewOriginMixer(c, decoderSize, questionSize,
			cfg.FactHiddenSize, cfg.MixerUnits),
	}
	for i := range m.GateIn {
		m.GateIn[i] = anynet.NewFC(c, cfg.EmbeddingSize, decoderSize)
		m.GateHidden[i] = anynet.NewFC(c, decoderSize, decoderSize)
	}
	return m, nil
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	var m Model
	var cfgData []byte
	err := serializer.DeserializeAny(d, append([]interface{}{
		&cfgData,
		&m.Words, &m.POS, &m.NER, &m.Case,
		&m.QuestionFwd, &m.QuestionBwd, &m.Facts,
		&m.GateIn[0], &m.GateIn[1], &m.GateIn[2], &m.GateIn[3],
		&m.GateHidden[0], &m.GateHidden[1], &m.GateHidden[2], &m.GateHidden[3],
		&m.QuestionQuery, &m.FactsQuery,
		&m.ReadoutHidden, &m.ReadoutQuestion, &m.ReadoutFacts, &m.ReadoutProj,
	}, &m.Mixer)...)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	m.Config = &Config{}
	if err := json.Unmarshal(cfgData, m.Config); err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	return &m, nil
}

// LoadModel restores a model checkpoint.
//
// A checkpoint path that does not exist yields an error
// wrapping repeatq.ErrMissingCheckpoint.
func LoadModel(path string) (*Model, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrapf(repeatq.ErrMissingCheckpoint, "load model %s", path)
	}
	var m *Model
	if err := serializer.LoadAny(path, &m); err != nil {
		return nil, errors.Wrapf(err, "load model %s", path)
	}
	klog.Infof("Model successfully restored from %s.", path)
	return m, nil
}

// Save writes the model to a checkpoint file.
func (m *Model) Save(path string) error {
	if err := serializer.SaveAny(path, m); err != nil {
		return errors.Wrapf(err, "save model %s", path)
	}
	return nil
}

// Decoder creates a decoder which uses the model for
// encoding, stepping and origin mixing.
func (m *Model) Decoder() *repeatq.Decoder {
	return repeatq.NewDecoder(m, m, m.Mixer, m.Config.Terminator,
		m.Config.MaxOutputLength)
}

// Parameters returns the model's parameters.
func (m *Model) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, l := range m.layers() {
		if p, ok := l.(anynet.Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return append(res, m.Mixer.Parameters()...)
}

func (m *Model) layers() []interface{} {
	res := []interface{}{
		m.Words, m.POS, m.NER, m.Case,
		m.QuestionFwd, m.QuestionBwd, m.Facts,
	}
	for i := range m.GateIn {
		res = append(res, m.GateIn[i])
	}
	for i := range m.GateHidden {
		res = append(res, m.GateHidden[i])
	}
	return append(res, m.QuestionQuery, m.FactsQuery, m.ReadoutHidden,
		m.ReadoutQuestion, m.ReadoutFacts, m.ReadoutProj)
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/NUS-IDS/ranlp21-fiqv/qnet.Model"
}

// Serialize serializes a Model.
func (m *Model) Serialize() ([]byte, error) {
	cfgData, err := json.Marshal(m.Config)
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(append(append([]interface{}{cfgData},
		m.layers()...), m.Mixer)...)
}

func (m *Model) creator() anyvec.Creator {
	return m.Words.Weights.Vector.Creator()
}
