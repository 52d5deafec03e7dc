// Package events publishes classification results to external consumers.
package events

import (
	"context"
	"time"

	"github.com/skinscan/skinscan/internal/inference"
)

// Event is the JSON payload published for each successful classification.
type Event struct {
	ID                 string    `json:"id,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	PredictedCondition string    `json:"predicted_condition"`
	Recommendation     string    `json:"recommendation"`
	Confidence         float32   `json:"confidence"`
	ImageSHA256        string    `json:"image_sha256"`
	ImageFormat        string    `json:"image_format"`
	ModelName          string    `json:"model_name"`
}

// NewEvent builds an event from an outcome. id is the history record ID
// when one exists.
func NewEvent(id string, o *inference.Outcome) Event {
	return Event{
		ID:                 id,
		Timestamp:          time.Now().UTC(),
		PredictedCondition: string(o.PredictedCondition),
		Recommendation:     o.Recommendation,
		Confidence:         o.Confidence,
		ImageSHA256:        o.ImageSHA256,
		ImageFormat:        o.Format,
		ModelName:          o.ModelName,
	}
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
