package calibration

import (
	"math"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

const driftChunkSize = 5

// DriftDetector watches a bounded deque of resolved predictions for
// accuracy drift, calibration-error drift, and short-window oscillation —
// independent of the per-bucket calibration Engine above, which only ever
// sees the aggregate bin, not the sequence.
type DriftDetector struct {
	window    int
	threshold float64
	samples   []model.CalibrationSample
}

// NewDriftDetector builds a detector retaining up to window samples and
// flagging deltas beyond threshold.
func NewDriftDetector(window int, threshold float64) *DriftDetector {
	return &DriftDetector{window: window, threshold: threshold}
}

// Record appends a resolved sample, trimming the oldest once over window.
func (d *DriftDetector) Record(s model.CalibrationSample) {
	d.samples = append(d.samples, s)
	if len(d.samples) > d.window {
		d.samples = d.samples[len(d.samples)-d.window:]
	}
}

// Samples returns the detector's current window, oldest first.
func (d *DriftDetector) Samples() []model.CalibrationSample {
	return d.samples
}

// Check compares the first half of the window against the second half and
// reports accuracy drift, calibration-error drift, and oscillation.
func (d *DriftDetector) Check() []model.DriftReport {
	n := len(d.samples)
	if n < 4 {
		return nil
	}

	half := n / 2
	first := d.samples[:half]
	second := d.samples[half:]

	var reports []model.DriftReport

	if accDelta := meanCorrect(second) - meanCorrect(first); math.Abs(accDelta) > d.threshold {
		direction := model.DriftDegrading
		if accDelta > 0 {
			direction = model.DriftImproving
		}
		reports = append(reports, model.DriftReport{Type: model.DriftAccuracy, Direction: direction, Delta: accDelta})
	}

	if errDelta := meanError(second) - meanError(first); math.Abs(errDelta) > d.threshold {
		direction := model.DriftImproving
		if errDelta > 0 {
			direction = model.DriftDegrading
		}
		reports = append(reports, model.DriftReport{Type: model.DriftCalibration, Direction: direction, Delta: errDelta})
	}

	if osc, delta := oscillation(d.samples); osc {
		reports = append(reports, model.DriftReport{Type: model.DriftOscillation, Direction: model.DriftUnstable, Delta: delta})
	}

	return reports
}

func meanCorrect(s []model.CalibrationSample) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v.Correct
	}
	return sum / float64(len(s))
}

func meanError(s []model.CalibrationSample) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v.Error
	}
	return sum / float64(len(s))
}

// oscillation chunks the window into fixed-size blocks, averages accuracy
// per block, and counts sign changes between consecutive block-to-block
// deltas. At least half of the possible reversals ((numChunks-1)/2, rounded
// down) means the trend is unstable rather than drifting one way.
func oscillation(samples []model.CalibrationSample) (bool, float64) {
	numChunks := len(samples) / driftChunkSize
	if numChunks < 3 {
		return false, 0
	}

	avgs := make([]float64, numChunks)
	for i := 0; i < numChunks; i++ {
		avgs[i] = meanCorrect(samples[i*driftChunkSize : (i+1)*driftChunkSize])
	}

	signChanges := 0
	prevSign := 0
	for i := 1; i < numChunks; i++ {
		diff := avgs[i] - avgs[i-1]
		sign := 0
		switch {
		case diff > 1e-9:
			sign = 1
		case diff < -1e-9:
			sign = -1
		}
		if sign != 0 {
			if prevSign != 0 && sign != prevSign {
				signChanges++
			}
			prevSign = sign
		}
	}

	required := (numChunks - 1) / 2
	return signChanges >= required && signChanges > 0, float64(signChanges)
}
