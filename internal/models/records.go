// Package models defines the record types moved by a LAN sync session.
package models

// HealthKind distinguishes the measurements stored in a HealthRecord.
type HealthKind string

// Health record kinds.
const (
	HealthWeight        HealthKind = "Weight"
	HealthBloodPressure HealthKind = "BloodPressure"
)

// WeightWireFactor converts a stored Weight value (kg) to the archive unit (jin).
const WeightWireFactor = 2.0

// ArticleRecord is a saved article. Timestamp is epoch millis.
type ArticleRecord struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// HealthRecord is a single weight or blood pressure measurement.
// Value2 holds the diastolic reading and is nil for Weight records.
type HealthRecord struct {
	ID        int64      `json:"id"`
	Timestamp int64      `json:"timestamp"`
	Kind      HealthKind `json:"type"`
	Value1    float64    `json:"value1"`
	Value2    *float64   `json:"value2"`
}

// ToWire returns a copy with Value1 expressed in the archive unit.
func (r HealthRecord) ToWire() HealthRecord {
	if r.Kind == HealthWeight {
		r.Value1 *= WeightWireFactor
	}
	return r
}

// FromWire returns a copy with Value1 converted back to the storage unit.
func (r HealthRecord) FromWire() HealthRecord {
	if r.Kind == HealthWeight {
		r.Value1 *= 1 / WeightWireFactor
	}
	return r
}

// EventRecord is a timestamped event such as a meal. PhotoPath is empty when
// the event has no photo.
type EventRecord struct {
	ID        int64  `json:"id"`
	Category  string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	PhotoPath string `json:"imagePath,omitempty"`
}

// HasPhoto reports whether the event references a photo file.
func (e EventRecord) HasPhoto() bool {
	return e.PhotoPath != ""
}
