package syncclient

import (
	"github.com/tphakala/evalsync/internal/evaluation"
)

type wireOperator struct {
	Name string `json:"name"`
}

type wireClassification struct {
	Label       evaluation.Label `json:"label"`
	Score       evaluation.Score `json:"score"`
	Confidence  float64          `json:"confidence"`
	Explanation []string         `json:"explanation"`
}

type wireImages struct {
	Original string `json:"original"`
	Overlay  string `json:"overlay,omitempty"`
}

type wireCalibration struct {
	Method evaluation.CalibrationMethod `json:"method"`
	Value  *float64                     `json:"value,omitempty"`
}

// Payload is the JSON document posted to the registry for one record.
// Sync bookkeeping and keypoints are not sent.
type Payload struct {
	ID             string                  `json:"id"`
	Timestamp      string                  `json:"timestamp"`
	Operator       wireOperator            `json:"operator"`
	Location       string                  `json:"location"`
	AnimalID       string                  `json:"animalId,omitempty"`
	Notes          string                  `json:"notes,omitempty"`
	Measurements   evaluation.Measurements `json:"measurements"`
	Classification wireClassification      `json:"classification"`
	Images         wireImages              `json:"images"`
	Calibration    wireCalibration         `json:"calibration"`
}

// BuildPayload maps a record to its wire representation.
func BuildPayload(rec *evaluation.Record) Payload {
	explanation := rec.Explanation
	if explanation == nil {
		explanation = []string{}
	}
	return Payload{
		ID:           rec.ID,
		Timestamp:    evaluation.FormatTimestamp(rec.Timestamp),
		Operator:     wireOperator{Name: rec.OperatorName},
		Location:     rec.Location,
		AnimalID:     rec.AnimalID,
		Notes:        rec.Notes,
		Measurements: rec.Measurements,
		Classification: wireClassification{
			Label:       rec.ClassificationLabel,
			Score:       rec.ClassificationScore,
			Confidence:  rec.ConfidenceBand,
			Explanation: explanation,
		},
		Images: wireImages{
			Original: rec.OriginalImage,
			Overlay:  rec.OverlayImage,
		},
		Calibration: wireCalibration{
			Method: rec.CalibrationMethod,
			Value:  rec.CalibrationValue,
		},
	}
}
