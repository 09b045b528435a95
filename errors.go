package repeatq

import "github.com/pkg/errors"

// Error classes reported by this package and its
// sub-packages.
//
// Returned errors wrap one of these values, so they can be
// identified with errors.Is.
var (
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrMissingCheckpoint    = errors.New("missing checkpoint")
	ErrNumericInstability   = errors.New("numeric instability")
	ErrTokenOutOfVocabulary = errors.New("token out of vocabulary")
)

// ShapeError creates an ErrShapeMismatch error describing
// a mismatched dimension.
func ShapeError(what string, expected, actual int) error {
	return errors.Wrapf(ErrShapeMismatch, "%s: expected %d but got %d", what,
		expected, actual)
}
