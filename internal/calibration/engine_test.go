package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func TestBinKey_BoundariesAndFloatEpsilon(t *testing.T) {
	cases := []struct {
		confidence float64
		want       string
	}{
		{0.0, "0.0-0.1"},
		{0.05, "0.0-0.1"},
		{0.3, "0.3-0.4"}, // 0.3/0.1 lands just under 3.0 in float64 without the epsilon guard
		{0.73, "0.7-0.8"},
		{0.95, "0.9-1.0"},
		{1.0, "0.9-1.0"},
	}
	for _, tc := range cases {
		key, _, _ := binKey(tc.confidence)
		assert.Equal(t, tc.want, key, "confidence %v", tc.confidence)
	}
}

func TestRecordWithOutcome_AccumulatesBinStats(t *testing.T) {
	now := time.Unix(0, 0)
	bins := map[string]model.Bin{}

	bins, _ = RecordWithOutcome(bins, 0.75, true, 1.0, now)
	bins, _ = RecordWithOutcome(bins, 0.72, false, 1.0, now)

	bin := bins["0.7-0.8"]
	assert.Equal(t, 2.0, bin.Count)
	assert.Equal(t, 1.0, bin.Correct)
	assert.InDelta(t, 1.47, bin.ConfidenceSum, 1e-9)
	assert.InDelta(t, 0.5, bin.Accuracy(), 1e-9)
	assert.InDelta(t, 0.735, bin.MeanConfidence(), 1e-9)
}

func TestRecordWithOutcome_WeightAppliesPartialCredit(t *testing.T) {
	now := time.Unix(0, 0)
	bins := map[string]model.Bin{}

	bins, sample := RecordWithOutcome(bins, 0.8, true, 0.5, now)

	bin := bins["0.8-0.9"]
	assert.Equal(t, 0.5, bin.Count)
	assert.Equal(t, 0.5, bin.Correct)
	assert.InDelta(t, 0.4, bin.ConfidenceSum, 1e-9)
	assert.Equal(t, 1.0, sample.Correct)
	assert.InDelta(t, 0.2, sample.Error, 1e-9)
}

func TestOutcome_ResolvesByID(t *testing.T) {
	now := time.Unix(0, 0)
	p1 := Record(0.6, "pred-a", now)
	p2 := Record(0.9, "pred-b", now)
	pending := []model.PendingPrediction{p1, p2}

	bins, remaining, resolved, sample, err := Outcome(map[string]model.Bin{}, pending, true, p2.ID, 1.0, now)
	require.NoError(t, err)
	assert.Equal(t, p2.ID, resolved.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, p1.ID, remaining[0].ID)
	assert.Equal(t, 1.0, bins["0.9-1.0"].Count)
	assert.Equal(t, 1.0, sample.Correct)
}

func TestOutcome_ResolvesFIFOWhenIDOmitted(t *testing.T) {
	now := time.Unix(0, 0)
	p1 := Record(0.6, "pred-a", now)
	p2 := Record(0.9, "pred-b", now)
	pending := []model.PendingPrediction{p1, p2}

	_, remaining, resolved, _, err := Outcome(map[string]model.Bin{}, pending, false, "", 1.0, now)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, resolved.ID, "FIFO resolves the oldest pending entry first")
	require.Len(t, remaining, 1)
	assert.Equal(t, p2.ID, remaining[0].ID)
}

func TestOutcome_UnknownIDIsError(t *testing.T) {
	_, _, _, _, err := Outcome(map[string]model.Bin{}, nil, true, "missing", 1.0, time.Unix(0, 0))
	assert.Error(t, err)
}

func TestOutcome_EmptyPendingIsError(t *testing.T) {
	_, _, _, _, err := Outcome(map[string]model.Bin{}, nil, true, "", 1.0, time.Unix(0, 0))
	assert.Error(t, err)
}

func TestCalibrate_NoAdjustmentBelowMinSamples(t *testing.T) {
	e := NewEngine(5, 0.15)
	bins := map[string]model.Bin{
		"0.7-0.8": {Key: "0.7-0.8", Count: 2, Correct: 2, ConfidenceSum: 1.5},
	}

	adjusted, explanation, has := e.Calibrate(bins, 0.75)
	assert.Equal(t, 0.75, adjusted)
	assert.False(t, has)
	assert.Empty(t, explanation)
}

func TestCalibrate_AdjustsAndExplainsWhenFactorDiverges(t *testing.T) {
	e := NewEngine(5, 0.15)
	// mean confidence 0.75, accuracy 1.0 -> factor = 1.0/0.75 = 1.333, clipped to 1.333
	bins := map[string]model.Bin{
		"0.7-0.8": {Key: "0.7-0.8", Count: 10, Correct: 10, ConfidenceSum: 7.5},
	}

	adjusted, explanation, has := e.Calibrate(bins, 0.75)
	assert.True(t, has)
	assert.NotEmpty(t, explanation)
	assert.InDelta(t, 0.75*1.3333333333, adjusted, 1e-6)
}

func TestCalibrate_NoExplanationWhenFactorNearOne(t *testing.T) {
	e := NewEngine(5, 0.15)
	// mean confidence 0.75, accuracy 0.76 -> factor ~1.0133, within 0.05 of 1
	bins := map[string]model.Bin{
		"0.7-0.8": {Key: "0.7-0.8", Count: 100, Correct: 76, ConfidenceSum: 75},
	}

	adjusted, _, has := e.Calibrate(bins, 0.75)
	assert.False(t, has)
	assert.InDelta(t, 0.75*76.0/75.0, adjusted, 1e-9)
}

func TestCheck_FlagsMiscalibratedBinsAndComputesFactors(t *testing.T) {
	e := NewEngine(5, 0.15)
	bins := map[string]model.Bin{
		// accuracy 0.9, mean confidence 0.75: error 0.15, not > 0.15, not flagged
		"0.7-0.8": {Key: "0.7-0.8", Count: 10, Correct: 9, ConfidenceSum: 7.5},
		// accuracy 0.2, mean confidence 0.85: error 0.65 > 0.15, flagged
		"0.8-0.9": {Key: "0.8-0.9", Count: 10, Correct: 2, ConfidenceSum: 8.5},
		// below minPerBin, excluded from issues entirely
		"0.9-1.0": {Key: "0.9-1.0", Count: 2, Correct: 0, ConfidenceSum: 1.9},
	}

	report := e.Check(bins, 5, 0.15)

	assert.False(t, report.Calibrated)
	assert.Equal(t, 22.0, report.Total)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "0.8-0.9", report.Issues[0].BinKey)
	assert.InDelta(t, 0.5, report.CorrectionFactors["0.8-0.9"], 1e-9) // 0.2/0.85 clipped to floor 0.5
	assert.Equal(t, 1.0, report.CorrectionFactors["0.9-1.0"], "below minPerBin: factor defaults to 1")
}

func TestCheck_CalibratedWhenNoBinExceedsErrorThreshold(t *testing.T) {
	e := NewEngine(5, 0.15)
	bins := map[string]model.Bin{
		"0.7-0.8": {Key: "0.7-0.8", Count: 10, Correct: 8, ConfidenceSum: 7.5}, // accuracy .8 vs mean .75, error .05
	}

	report := e.Check(bins, 5, 0.15)
	assert.True(t, report.Calibrated)
	assert.Empty(t, report.Issues)
}
