package diagnosis

import (
	"fmt"

	"github.com/skinscan/skinscan/internal/errors"
)

// ErrVectorLength is wrapped when the model output width does not match the
// label table.
var ErrVectorLength = errors.NewStd("probability vector length does not match label count")

// Decision is the mapper's result. Confidence stays internal to the service.
type Decision struct {
	Label          Label
	Index          int
	Confidence     float32
	Recommendation string
}

// Decide picks the class with the highest probability. Among equal maxima
// the lowest index wins, and NaN never compares greater, so an all-NaN
// vector resolves to index 0.
func Decide(probs []float32) (Decision, error) {
	if len(probs) != NumClasses {
		return Decision{}, errors.New(fmt.Errorf("%w: got %d, want %d", ErrVectorLength, len(probs), NumClasses)).
			Component("diagnosis").
			Category(errors.CategoryInference).
			Context("vector_length", len(probs)).
			Build()
	}

	best := 0
	for i := 1; i < len(probs); i++ {
		switch {
		case probs[i] > probs[best]:
			best = i
		case isNaN(probs[best]) && !isNaN(probs[i]):
			best = i
		}
	}

	label := labels[best]
	return Decision{
		Label:          label,
		Index:          best,
		Confidence:     probs[best],
		Recommendation: label.Recommendation(),
	}, nil
}

func isNaN(f float32) bool { return f != f }
