package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestTestEvaluator(t *testing.T) {
	cases := []struct {
		name    string
		result  TestResult
		correct bool
	}{
		{"clean exit", TestResult{ExitCode: 0, Failed: 0, Errors: 0}, true},
		{"nonzero exit but passed>0 with no failures/errors still counts correct", TestResult{ExitCode: 1, Passed: 3, Failed: 0, Errors: 0}, true},
		{"clean exit with nothing run", TestResult{ExitCode: 0, Passed: 0}, true},
		{"failures present", TestResult{ExitCode: 1, Passed: 2, Failed: 1, Errors: 0}, false},
		{"errors present", TestResult{ExitCode: 1, Passed: 2, Failed: 0, Errors: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			correct, decided := TestEvaluator{}.Evaluate(Signals{Test: &tc.result})
			assert.True(t, decided)
			assert.Equal(t, tc.correct, correct)
		})
	}
}

func TestTestEvaluator_AbstainsWithoutSignal(t *testing.T) {
	_, decided := TestEvaluator{}.Evaluate(Signals{})
	assert.False(t, decided)
}

func TestCommandEvaluator_PrefersSuccessFlag(t *testing.T) {
	correct, decided := CommandEvaluator{}.Evaluate(Signals{Command: &CommandResult{Success: boolPtr(true), ExitCode: intPtr(1)}})
	assert.True(t, decided)
	assert.True(t, correct, "explicit success flag wins over a nonzero exit code")
}

func TestCommandEvaluator_FallsBackToExitCode(t *testing.T) {
	correct, decided := CommandEvaluator{}.Evaluate(Signals{Command: &CommandResult{ExitCode: intPtr(0)}})
	assert.True(t, decided)
	assert.True(t, correct)
}

func TestCommandEvaluator_FallsBackToErrorField(t *testing.T) {
	correct, decided := CommandEvaluator{}.Evaluate(Signals{Command: &CommandResult{Error: ""}})
	assert.True(t, decided)
	assert.True(t, correct)

	correct, decided = CommandEvaluator{}.Evaluate(Signals{Command: &CommandResult{Error: "boom"}})
	assert.True(t, decided)
	assert.False(t, correct)
}

func TestFileEvaluator(t *testing.T) {
	correct, decided := FileEvaluator{}.Evaluate(Signals{File: &FileResult{Exists: true, ExpectedExists: true}})
	assert.True(t, decided)
	assert.True(t, correct)

	correct, decided = FileEvaluator{}.Evaluate(Signals{File: &FileResult{Exists: false, ExpectedExists: true}})
	assert.True(t, decided)
	assert.False(t, correct)
}

func TestAPIEvaluator(t *testing.T) {
	correct, decided := APIEvaluator{}.Evaluate(Signals{API: &APIResult{Status: 201}})
	assert.True(t, decided)
	assert.True(t, correct)

	correct, decided = APIEvaluator{}.Evaluate(Signals{API: &APIResult{Status: 500}})
	assert.True(t, decided)
	assert.False(t, correct)

	_, decided = APIEvaluator{}.Evaluate(Signals{API: &APIResult{}})
	assert.False(t, decided, "no status and no success flag: nothing evaluable")
}

func TestAllEvaluator_ConservativeAND(t *testing.T) {
	all := NewAllEvaluator()

	correct, decided := all.Evaluate(Signals{
		Test: &TestResult{ExitCode: 0},
		File: &FileResult{Exists: true, ExpectedExists: false}, // fails
	})
	assert.True(t, decided)
	assert.False(t, correct, "any individual failure fails the whole")
}

func TestAllEvaluator_AllPassWhenEveryDecidedSignalPasses(t *testing.T) {
	all := NewAllEvaluator()

	correct, decided := all.Evaluate(Signals{
		Test:    &TestResult{ExitCode: 0},
		Command: &CommandResult{Success: boolPtr(true)},
	})
	assert.True(t, decided)
	assert.True(t, correct)
}

func TestAllEvaluator_UndecidedWithNoEvaluableSignals(t *testing.T) {
	all := NewAllEvaluator()

	_, decided := all.Evaluate(Signals{})
	assert.False(t, decided)
}
