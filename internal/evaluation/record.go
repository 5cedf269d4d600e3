// Package evaluation defines the evaluation record, its sync state and the
// operator-editable application settings.
package evaluation

import (
	"slices"
	"time"
)

// Label is the classifier's verdict
type Label string

const (
	LabelCattle    Label = "Cattle"
	LabelBuffalo   Label = "Buffalo"
	LabelUncertain Label = "Uncertain"
)

// Valid reports whether l is a known label
func (l Label) Valid() bool {
	switch l {
	case LabelCattle, LabelBuffalo, LabelUncertain:
		return true
	}
	return false
}

// CalibrationMethod says how pixel distances were converted to centimetres
type CalibrationMethod string

const (
	CalibrationScaleDetection  CalibrationMethod = "scale-detection"
	CalibrationReferenceHeight CalibrationMethod = "reference-height"
	CalibrationDefault         CalibrationMethod = "default"
)

// Valid reports whether m is a known calibration method
func (m CalibrationMethod) Valid() bool {
	switch m {
	case CalibrationScaleDetection, CalibrationReferenceHeight, CalibrationDefault:
		return true
	}
	return false
}

// Measurements are body measurements in centimetres and degrees.
type Measurements struct {
	BodyLength      float64 `json:"bodyLength"`
	HeightAtWithers float64 `json:"heightAtWithers"`
	ChestWidth      float64 `json:"chestWidth"`
	RumpAngle       float64 `json:"rumpAngle"`
	PelvicWidth     float64 `json:"pelvicWidth"`
	LegLengthRatio  float64 `json:"legLengthRatio"` // front/back
}

// Keypoint is a labelled image coordinate
type Keypoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Score is the classifier's score pair
type Score struct {
	Cattle  float64 `json:"cattle"`
	Buffalo float64 `json:"buffalo"`
}

// Payload is the part of a record fixed at first save.
type Payload struct {
	Timestamp           time.Time         `json:"timestamp"`
	OperatorName        string            `json:"operatorName"`
	Location            string            `json:"location"`
	AnimalID            string            `json:"animalId,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	OriginalImage       string            `json:"originalImage"`
	OverlayImage        string            `json:"overlayImage,omitempty"`
	Measurements        Measurements      `json:"measurements"`
	Keypoints           []Keypoint        `json:"keypoints"`
	ClassificationLabel Label             `json:"classificationLabel"`
	ClassificationScore Score             `json:"classificationScore"`
	Explanation         []string          `json:"explanation"`
	ConfidenceBand      float64           `json:"confidenceBand"`
	CalibrationMethod   CalibrationMethod `json:"calibrationMethod"`
	CalibrationValue    *float64          `json:"calibrationValue,omitempty"`
}

// SyncState is owned by the retry coordinator.
type SyncState struct {
	Status          Status     `json:"status"`
	SyncAttempts    int        `json:"syncAttempts"`
	LastSyncAttempt *time.Time `json:"lastSyncAttempt,omitempty"`
	SyncError       string     `json:"syncError,omitempty"`
}

// Record is one stored evaluation. JSON field names match the persisted
// layout; Payload and SyncState are flattened into the same object.
type Record struct {
	ID string `json:"id"`
	Payload
	SyncState
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Keypoints = slices.Clone(r.Keypoints)
	c.Explanation = slices.Clone(r.Explanation)
	if r.CalibrationValue != nil {
		v := *r.CalibrationValue
		c.CalibrationValue = &v
	}
	if r.LastSyncAttempt != nil {
		t := *r.LastSyncAttempt
		c.LastSyncAttempt = &t
	}
	return &c
}

// BeginAttempt records that attempt k is about to be made at now.
// The status is left unchanged.
func (s *SyncState) BeginAttempt(k int, now time.Time) {
	s.SyncAttempts = k
	at := now
	s.LastSyncAttempt = &at
}

// MarkSynced moves the record to synced and clears any previous error.
func (s *SyncState) MarkSynced() {
	s.Status = StatusSynced
	s.SyncError = ""
}

// MarkFailed moves the record to failed keeping msg as the reason.
func (s *SyncState) MarkFailed(msg string) {
	s.Status = StatusFailed
	s.SyncError = msg
}

// SortByTimestampDesc orders records newest first, breaking ties by id.
func SortByTimestampDesc(records []*Record) {
	slices.SortStableFunc(records, func(a, b *Record) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// FilterByStatus returns the records whose status is one of statuses.
func FilterByStatus(records []*Record, statuses ...Status) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	return out
}

// isoMillis is the interchange timestamp layout.
const isoMillis = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t as UTC ISO-8601 with millisecond precision, the
// form used on the wire and in exports.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
