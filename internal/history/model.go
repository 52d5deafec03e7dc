package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/skinscan/skinscan/internal/inference"
)

// ScanRecord is one stored classification. Image bytes are never kept;
// ImageSHA256 lets a client recognise a repeated upload.
type ScanRecord struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	Owner          string    `gorm:"index;size:128" json:"owner,omitempty"`
	Label          string    `gorm:"index;size:64;not null" json:"predicted_condition"`
	Recommendation string    `gorm:"size:512" json:"recommendation"`
	Confidence     float64   `json:"confidence"`
	ImageSHA256    string    `gorm:"size:64" json:"image_sha256"`
	ImageFormat    string    `gorm:"size:16" json:"image_format"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	ModelName      string    `gorm:"size:128" json:"model_name"`
	DurationMs     float64   `json:"duration_ms"`
}

// TableName pins the table name regardless of gorm naming strategy.
func (ScanRecord) TableName() string { return "scan_records" }

// NewRecord builds a record for a successful classification.
func NewRecord(owner string, o *inference.Outcome) *ScanRecord {
	return &ScanRecord{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Owner:          owner,
		Label:          string(o.PredictedCondition),
		Recommendation: o.Recommendation,
		Confidence:     float64(o.Confidence),
		ImageSHA256:    o.ImageSHA256,
		ImageFormat:    o.Format,
		Width:          o.Width,
		Height:         o.Height,
		ModelName:      o.ModelName,
		DurationMs:     float64(o.Total.Microseconds()) / 1000,
	}
}
