package repeatq

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// DefaultMixerUnits is the number of hidden units used by
// NewOriginMixer for each input projection.
const DefaultMixerUnits = 64

func init() {
	var o OriginMixer
	serializer.RegisterTypedDeserializer(o.SerializerType(), DeserializeOriginMixer)
}

// An OriginMixer decides, for each lane, how much
// probability mass goes to generating versus copying from
// the question or the facts.
//
// Each input (decoder hidden state, question attention,
// facts attention) goes through its own projection.
// The projections are summed and fed to OutTrans, which
// produces three logits.
type OriginMixer struct {
	HiddenTrans   anynet.Layer
	QuestionTrans anynet.Layer
	FactsTrans    anynet.Layer
	OutTrans      anynet.Layer
}

// NewOriginMixer creates an OriginMixer with randomly
// initialized ReLU projections of the given width.
func NewOriginMixer(c anyvec.Creator, hiddenSize, questionSize, factsSize,
	units int) *OriginMixer {
	return &OriginMixer{
		HiddenTrans: anynet.Net{
			anynet.NewFC(c, hiddenSize, units),
			anynet.ReLU,
		},
		QuestionTrans: anynet.Net{
			anynet.NewFC(c, questionSize, units),
			anynet.ReLU,
		},
		FactsTrans: anynet.Net{
			anynet.NewFC(c, factsSize, units),
			anynet.ReLU,
		},
		OutTrans: anynet.NewFC(c, units, numOrigins),
	}
}

// DeserializeOriginMixer deserializes an OriginMixer.
func DeserializeOriginMixer(d []byte) (*OriginMixer, error) {
	var o OriginMixer
	err := serializer.DeserializeAny(d, &o.HiddenTrans, &o.QuestionTrans,
		&o.FactsTrans, &o.OutTrans)
	if err != nil {
		return nil, essentials.AddCtx("deserialize OriginMixer", err)
	}
	return &o, nil
}

// Mix computes the origin mixture for every lane.
func (o *OriginMixer) Mix(hidden, question, facts anyvec.Vector, lanes int) anyvec.Vector {
	sum := anydiff.Add(
		anydiff.Add(
			o.HiddenTrans.Apply(anydiff.NewConst(hidden), lanes),
			o.QuestionTrans.Apply(anydiff.NewConst(question), lanes),
		),
		o.FactsTrans.Apply(anydiff.NewConst(facts), lanes),
	)
	logits := o.OutTrans.Apply(sum, lanes).Output()
	return StableSoftmax(logits, numOrigins)
}

// Parameters returns the mixer's parameters.
func (o *OriginMixer) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, l := range []anynet.Layer{o.HiddenTrans, o.QuestionTrans, o.FactsTrans,
		o.OutTrans} {
		if p, ok := l.(anynet.Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an OriginMixer with the serializer package.
func (o *OriginMixer) SerializerType() string {
	return "github.com/NUS-IDS/ranlp21-fiqv.OriginMixer"
}

// Serialize serializes an OriginMixer.
func (o *OriginMixer) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		o.HiddenTrans,
		o.QuestionTrans,
		o.FactsTrans,
		o.OutTrans,
	)
}

// FixedMixer is a Mixer which always produces the same
// origin mixture.
type FixedMixer [numOrigins]float64

// Mix repeats the fixed mixture for every lane.
func (f FixedMixer) Mix(hidden, question, facts anyvec.Vector, lanes int) anyvec.Vector {
	data := make([]float64, 0, lanes*numOrigins)
	for i := 0; i < lanes; i++ {
		data = append(data, f[:]...)
	}
	return MakeVector(hidden.Creator(), data)
}
