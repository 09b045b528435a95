package repeatq

import (
	"math"
	"testing"

	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/serializer"
)

func TestStableSoftmax(t *testing.T) {
	c := anyvec64.DefaultCreator{}

	t.Run("ShiftInvariant", func(t *testing.T) {
		logits := randomVector(c, 12)
		shifted := logits.Copy()
		shifted.AddScalar(c.MakeNumeric(1000))
		vectorsEqual(t, "softmax", StableSoftmax(shifted, 4), StableSoftmax(logits, 4))
	})

	t.Run("Large", func(t *testing.T) {
		logits := MakeVector(c, []float64{1e6, 1e6 - 1, -1e6, 1e6, 1e6, 1e6})
		probs := StableSoftmax(logits, 3)
		for lane, sum := range laneSums(t, probs, 2) {
			if math.Abs(sum-1) > 1e-8 {
				t.Errorf("lane %d: sum is %f", lane, sum)
			}
		}
		data := Float64s(probs)
		expected := 1 / (1 + math.Exp(-1))
		if math.Abs(data[0]-expected) > 1e-8 {
			t.Errorf("expected %f but got %f", expected, data[0])
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if StableSoftmax(c.MakeVector(0), 0).Len() != 0 {
			t.Error("expected empty output")
		}
	})
}

func TestOriginMixer(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	const lanes, hiddenSize, questionSize, factsSize = 5, 4, 6, 3
	mixer := NewOriginMixer(c, hiddenSize, questionSize, factsSize, DefaultMixerUnits)
	hidden := randomVector(c, lanes*hiddenSize)
	question := randomVector(c, lanes*questionSize)
	facts := randomVector(c, lanes*factsSize)

	mixture := mixer.Mix(hidden, question, facts, lanes)
	if mixture.Len() != lanes*3 {
		t.Fatalf("unexpected length: %d", mixture.Len())
	}
	for lane, sum := range laneSums(t, mixture, lanes) {
		if math.Abs(sum-1) > 1e-8 {
			t.Errorf("lane %d: sum is %f", lane, sum)
		}
	}

	t.Run("Serialize", func(t *testing.T) {
		data, err := serializer.SerializeAny(mixer)
		if err != nil {
			t.Fatal(err)
		}
		var decoded *OriginMixer
		if err := serializer.DeserializeAny(data, &decoded); err != nil {
			t.Fatal(err)
		}
		vectorsEqual(t, "mixture", decoded.Mix(hidden, question, facts, lanes), mixture)
		if len(decoded.Parameters()) != len(mixer.Parameters()) {
			t.Error("parameter count mismatch")
		}
	})
}
