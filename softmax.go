package repeatq

import (
	"math"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
)

// StableSoftmax computes a softmax over each chunk of
// chunkSize consecutive components.
//
// The maximum of each chunk is subtracted before
// exponentiating, so large logits do not overflow.
// The input is not modified.
func StableSoftmax(v anyvec.Vector, chunkSize int) anyvec.Vector {
	if v.Len() == 0 || chunkSize == 0 {
		return v.Copy()
	}
	if v.Len()%chunkSize != 0 {
		panic("vector size not divisible by chunk size")
	}
	data := append([]float64{}, Float64s(v)...)
	for start := 0; start < len(data); start += chunkSize {
		chunk := data[start : start+chunkSize]
		max := math.Inf(-1)
		for _, x := range chunk {
			max = math.Max(max, x)
		}
		for i := range chunk {
			chunk[i] -= max
		}
	}
	res := MakeVector(v.Creator(), data)
	anyvec.LogSoftmax(res, chunkSize)
	anyvec.Exp(res)
	return res
}

// checkFinite returns an ErrNumericInstability error if
// the vector contains a NaN or infinite component.
func checkFinite(step int, what string, v anyvec.Vector) error {
	for i, x := range Float64s(v) {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Wrapf(ErrNumericInstability,
				"step %d: %s component %d is %v", step, what, i, x)
		}
	}
	return nil
}
