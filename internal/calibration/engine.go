// Package calibration tracks confidence-bucketed prediction accuracy,
// derives a correction factor per bucket, and watches for calibration
// drift over a rolling window of resolved predictions.
package calibration

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// binWidth is the width of each confidence bucket; [0,1] splits into 10
// fixed bins. Fixed width keeps bin keys stable across restarts, unlike a
// scheme that rebalances based on observed data.
const binWidth = 0.1

// Engine derives correction factors and miscalibration reports from a
// caller-supplied set of bins. It holds no storage handle itself — bins and
// pending predictions are loaded from storage.Store by the caller, updated
// here, and written back, the same separation governance.Step uses between
// pure dynamics and persistence.
type Engine struct {
	minSamples     int
	errorThreshold float64
}

// NewEngine builds an Engine with the given minimum-sample and
// miscalibration thresholds.
func NewEngine(minSamples int, errorThreshold float64) *Engine {
	return &Engine{minSamples: minSamples, errorThreshold: errorThreshold}
}

// binKey returns the stable bucket key a confidence value falls into, e.g.
// "0.7-0.8". Confidence is clipped to [0,1] before binning.
func binKey(confidence float64) (key string, low, high float64) {
	c := clip01(confidence)
	idx := int(math.Floor(c/binWidth + 1e-9)) // epsilon guards against e.g. 0.3/0.1 landing at 2.999...
	if idx >= 10 {
		idx = 9
	}
	low = float64(idx) * binWidth
	high = low + binWidth
	return fmt.Sprintf("%.1f-%.1f", low, high), low, high
}

func binFor(bins map[string]model.Bin, confidence float64) model.Bin {
	key, low, high := binKey(confidence)
	if b, ok := bins[key]; ok {
		return b
	}
	return model.Bin{Key: key, Low: low, High: high}
}

// Record queues a new pending prediction and returns its id.
func Record(confidence float64, prediction string, now time.Time) model.PendingPrediction {
	return model.PendingPrediction{
		ID:         uuid.NewString(),
		Confidence: confidence,
		Prediction: prediction,
		CreatedAt:  now,
	}
}

// Outcome resolves a pending prediction — by id if given, else FIFO (the
// oldest pending entry) — folding it into its confidence bucket with the
// given partial-credit weight. It returns the updated bins, the remaining
// pending queue, the resolved prediction, and the drift sample to feed a
// DriftDetector.
func Outcome(bins map[string]model.Bin, pending []model.PendingPrediction, correct bool, predictionID string, weight float64, now time.Time) (map[string]model.Bin, []model.PendingPrediction, model.PendingPrediction, model.CalibrationSample, error) {
	idx := -1
	if predictionID != "" {
		for i, p := range pending {
			if p.ID == predictionID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return bins, pending, model.PendingPrediction{}, model.CalibrationSample{}, fmt.Errorf("calibration: no pending prediction %q", predictionID)
		}
	} else {
		if len(pending) == 0 {
			return bins, pending, model.PendingPrediction{}, model.CalibrationSample{}, fmt.Errorf("calibration: no pending predictions to resolve")
		}
		idx = 0
	}

	resolved := pending[idx]
	remaining := make([]model.PendingPrediction, 0, len(pending)-1)
	remaining = append(remaining, pending[:idx]...)
	remaining = append(remaining, pending[idx+1:]...)

	nextBins := foldOutcome(bins, resolved.Confidence, correct, weight)

	var correctFraction float64
	if correct {
		correctFraction = 1
	}
	sample := model.CalibrationSample{
		At:         now,
		Confidence: resolved.Confidence,
		Correct:    correctFraction,
		Error:      math.Abs(resolved.Confidence - correctFraction),
	}

	return nextBins, remaining, resolved, sample, nil
}

// RecordWithOutcome combines Record and Outcome for a caller that already
// knows the outcome at record time.
func RecordWithOutcome(bins map[string]model.Bin, confidence float64, correct bool, weight float64, now time.Time) (map[string]model.Bin, model.CalibrationSample) {
	nextBins := foldOutcome(bins, confidence, correct, weight)
	var correctFraction float64
	if correct {
		correctFraction = 1
	}
	return nextBins, model.CalibrationSample{
		At:         now,
		Confidence: confidence,
		Correct:    correctFraction,
		Error:      math.Abs(confidence - correctFraction),
	}
}

func foldOutcome(bins map[string]model.Bin, confidence float64, correct bool, weight float64) map[string]model.Bin {
	if weight <= 0 {
		weight = 1.0
	}
	next := cloneBins(bins)
	b := binFor(next, confidence)
	b.Count += weight
	if correct {
		b.Correct += weight
	}
	b.ConfidenceSum += weight * confidence
	next[b.Key] = b
	return next
}

func cloneBins(bins map[string]model.Bin) map[string]model.Bin {
	next := make(map[string]model.Bin, len(bins))
	for k, v := range bins {
		next[k] = v
	}
	return next
}

// Calibrate adjusts a raw confidence using its bucket's observed accuracy,
// once that bucket has enough samples. Returns the adjusted value, an
// explanation (only when the adjustment is non-trivial), and whether an
// explanation was attached.
func (e *Engine) Calibrate(bins map[string]model.Bin, raw float64) (adjusted float64, explanation string, hasExplanation bool) {
	key, _, _ := binKey(raw)
	bin, ok := bins[key]
	if !ok || bin.Count < float64(e.minSamples) {
		return raw, "", false
	}

	mean := bin.MeanConfidence()
	if mean == 0 {
		return raw, "", false
	}

	factor := clip(bin.Accuracy()/mean, 0.5, 1.5)
	adjusted = clip01(raw * factor)

	if math.Abs(factor-1) > 0.05 {
		explanation = fmt.Sprintf(
			"adjusted by factor %.2f from %.0f historical predictions in the %s range (observed accuracy %.0f%% vs average reported confidence %.0f%%)",
			factor, bin.Count, bin.Key, bin.Accuracy()*100, mean*100,
		)
		return adjusted, explanation, true
	}
	return adjusted, "", false
}

// Check evaluates every bucket against minPerBin/errorThreshold and reports
// miscalibrated ranges alongside a correction factor per bucket.
func (e *Engine) Check(bins map[string]model.Bin, minPerBin int, errorThreshold float64) model.CalibrationReport {
	report := model.CalibrationReport{
		Calibrated:        true,
		Bins:              cloneBins(bins),
		CorrectionFactors: make(map[string]float64, len(bins)),
	}

	for key, bin := range bins {
		report.Total += bin.Count

		factor := 1.0
		if bin.Count >= float64(minPerBin) {
			mean := bin.MeanConfidence()
			if mean > 0 {
				factor = clip(bin.Accuracy()/mean, 0.5, 1.5)
			}
		}
		report.CorrectionFactors[key] = factor

		if bin.Count < float64(minPerBin) {
			continue
		}
		errAmount := math.Abs(bin.Accuracy() - bin.MeanConfidence())
		if errAmount > errorThreshold+1e-9 { // epsilon keeps an error exactly at the threshold (e.g. 0.9-0.75) unflagged
			report.Calibrated = false
			report.Issues = append(report.Issues, model.CalibrationIssue{
				BinKey:         key,
				Accuracy:       bin.Accuracy(),
				MeanConfidence: bin.MeanConfidence(),
				Error:          errAmount,
			})
		}
	}

	return report
}

func clip01(v float64) float64 { return clip(v, 0, 1) }

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
