package testutil

import (
	"time"

	"github.com/tphakala/evalsync/internal/evaluation"
)

// FixedTime is the capture time used by fixtures.
var FixedTime = time.Date(2024, 3, 15, 9, 30, 0, 125_000_000, time.UTC)

// SampleDraft returns a valid draft payload.
func SampleDraft() evaluation.Payload {
	offset := 12.5
	return evaluation.Payload{
		Timestamp:     FixedTime,
		OperatorName:  "Asha Patil",
		Location:      "Pune Farm 3",
		AnimalID:      "TAG-0042",
		Notes:         "calm during capture",
		OriginalImage: "data:image/jpeg;base64,AAAA",
		OverlayImage:  "data:image/png;base64,BBBB",
		Measurements: evaluation.Measurements{
			BodyLength:      152.34,
			HeightAtWithers: 131.28,
			ChestWidth:      48.07,
			RumpAngle:       12.44,
			PelvicWidth:     44.9,
			LegLengthRatio:  1.034,
		},
		Keypoints: []evaluation.Keypoint{
			{X: 120, Y: 88, Label: "withers"},
			{X: 410, Y: 96, Label: "pin_bone"},
		},
		ClassificationLabel: evaluation.LabelCattle,
		ClassificationScore: evaluation.Score{Cattle: 0.873, Buffalo: 0.127},
		Explanation:         []string{"hump present", "horn shape consistent with zebu"},
		ConfidenceBand:      0.746,
		CalibrationMethod:   evaluation.CalibrationScaleDetection,
		CalibrationValue:    &offset,
	}
}

// SampleRecord returns a record with the given id and status built from
// SampleDraft.
func SampleRecord(id string, status evaluation.Status) *evaluation.Record {
	return &evaluation.Record{
		ID:        id,
		Payload:   SampleDraft(),
		SyncState: evaluation.SyncState{Status: status},
	}
}
