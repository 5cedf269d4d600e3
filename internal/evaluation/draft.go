package evaluation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/evalsync/internal/errors"
)

// IDPrefix starts every record id
const IDPrefix = "eval_"

// NewID returns a fresh record id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// Validate checks a draft payload before it becomes a record.
func (p *Payload) Validate() error {
	var problems []string

	required := map[string]string{
		"operatorName":  p.OperatorName,
		"location":      p.Location,
		"originalImage": p.OriginalImage,
	}
	for _, name := range []string{"operatorName", "location", "originalImage"} {
		if strings.TrimSpace(required[name]) == "" {
			problems = append(problems, name+" is required")
		}
	}

	if !p.ClassificationLabel.Valid() {
		problems = append(problems, fmt.Sprintf("unknown classificationLabel %q", p.ClassificationLabel))
	}
	if !p.CalibrationMethod.Valid() {
		problems = append(problems, fmt.Sprintf("unknown calibrationMethod %q", p.CalibrationMethod))
	}

	unit := map[string]float64{
		"classificationScore.cattle":  p.ClassificationScore.Cattle,
		"classificationScore.buffalo": p.ClassificationScore.Buffalo,
		"confidenceBand":              p.ConfidenceBand,
	}
	for _, name := range []string{"classificationScore.cattle", "classificationScore.buffalo", "confidenceBand"} {
		if v := unit[name]; v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be within [0, 1], got %g", name, v))
		}
	}

	m := p.Measurements
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"bodyLength", m.BodyLength},
		{"heightAtWithers", m.HeightAtWithers},
		{"chestWidth", m.ChestWidth},
		{"rumpAngle", m.RumpAngle},
		{"pelvicWidth", m.PelvicWidth},
		{"legLengthRatio", m.LegLengthRatio},
	} {
		if f.value < 0 {
			problems = append(problems, fmt.Sprintf("measurements.%s must not be negative", f.name))
		}
	}

	if len(problems) > 0 {
		return errors.Newf("invalid evaluation draft: %s", strings.Join(problems, "; ")).
			Component("evaluation").
			Category(errors.CategoryValidation).
			Context("problems", problems).
			Build()
	}
	return nil
}

// NewRecord turns a validated draft into a record with a fresh id. The
// initial status must be local or queued. A zero draft timestamp is
// replaced with now.
func NewRecord(draft Payload, initial Status, now time.Time) (*Record, error) {
	switch initial {
	case StatusLocal, StatusQueued:
	case StatusFailed, StatusSynced:
		return nil, errors.Newf("records cannot be created with status %s", initial).
			Component("evaluation").
			Category(errors.CategoryValidation).
			Build()
	default:
		return nil, errors.Newf("invalid initial status %d", uint8(initial)).
			Component("evaluation").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:      NewID(),
		Payload: draft,
		SyncState: SyncState{
			Status: initial,
		},
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.Keypoints == nil {
		rec.Keypoints = []Keypoint{}
	}
	if rec.Explanation == nil {
		rec.Explanation = []string{}
	}
	return rec.Clone(), nil
}
