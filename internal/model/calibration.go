package model

import "time"

// Bin accumulates outcomes for one confidence bucket.
type Bin struct {
	Key            string  `json:"key"`
	Low            float64 `json:"low"`
	High           float64 `json:"high"`
	Count          float64 `json:"count"`
	Correct        float64 `json:"correct"`
	ConfidenceSum  float64 `json:"confidence_sum"`
}

// MeanConfidence returns the bin's average reported confidence, or 0 if empty.
func (b Bin) MeanConfidence() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.ConfidenceSum / b.Count
}

// Accuracy returns the bin's observed accuracy, or 0 if empty.
func (b Bin) Accuracy() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.Correct / b.Count
}

// PendingPrediction is a recorded confidence awaiting an outcome.
type PendingPrediction struct {
	ID         string    `json:"id"`
	AgentUUID  string    `json:"agent_uuid"`
	Confidence float64   `json:"confidence"`
	Prediction string    `json:"prediction,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CalibrationSample is one resolved (confidence, correct) observation, kept
// in the drift-detector's bounded deque.
type CalibrationSample struct {
	At         time.Time `json:"at"`
	Confidence float64   `json:"confidence"`
	Correct    float64   `json:"correct"` // 0..1, partial credit via weight
	Error      float64   `json:"error"`   // |confidence - correct|
}

// DriftDirection classifies calibration trend.
type DriftDirection string

const (
	DriftImproving DriftDirection = "improving"
	DriftDegrading DriftDirection = "degrading"
	DriftUnstable  DriftDirection = "unstable"
)

// DriftType classifies what kind of drift was detected.
type DriftType string

const (
	DriftAccuracy    DriftType = "accuracy"
	DriftCalibration DriftType = "calibration"
	DriftOscillation DriftType = "oscillation"
)

// DriftReport is one detected drift event from the calibration drift detector.
type DriftReport struct {
	Type      DriftType      `json:"type"`
	Direction DriftDirection `json:"direction"`
	Delta     float64        `json:"delta"`
}

// CalibrationIssue flags one miscalibrated bin.
type CalibrationIssue struct {
	BinKey         string  `json:"bin_key"`
	Accuracy       float64 `json:"accuracy"`
	MeanConfidence float64 `json:"mean_confidence"`
	Error          float64 `json:"error"`
}

// CalibrationReport is the result of calibration.Engine.Check.
type CalibrationReport struct {
	Calibrated        bool                   `json:"calibrated"`
	Total             float64                `json:"total"`
	Issues            []CalibrationIssue     `json:"issues"`
	Bins              map[string]Bin         `json:"bins"`
	CorrectionFactors map[string]float64     `json:"correction_factors"`
	Drifts            []DriftReport          `json:"drifts,omitempty"`
}
