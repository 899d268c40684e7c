package calibration

// TestResult is the outcome signal from a test-runner tool call.
type TestResult struct {
	ExitCode int
	Passed   int
	Failed   int
	Errors   int
}

// CommandResult is the outcome signal from a shell/command tool call.
type CommandResult struct {
	Success  *bool
	ExitCode *int
	Error    string
}

// FileResult is the outcome signal from a file-existence check.
type FileResult struct {
	Exists         bool
	ExpectedExists bool
}

// APIResult is the outcome signal from an HTTP/API tool call.
type APIResult struct {
	Success *bool
	Status  int
}

// Signals bundles whichever outcome evidence a tool call produced; unused
// fields stay nil and their evaluator abstains.
type Signals struct {
	Test    *TestResult
	Command *CommandResult
	File    *FileResult
	API     *APIResult
}

// Evaluator decides whether a tool call's outcome was correct from Signals,
// abstaining (decided=false) when it has nothing to evaluate.
type Evaluator interface {
	Evaluate(s Signals) (correct, decided bool)
}

// TestEvaluator passes when the test run exited clean, or reported at
// least one passing test with no failures and no errors.
type TestEvaluator struct{}

func (TestEvaluator) Evaluate(s Signals) (correct, decided bool) {
	if s.Test == nil {
		return false, false
	}
	r := *s.Test
	return r.ExitCode == 0 || (r.Passed > 0 && r.Failed == 0 && r.Errors == 0), true
}

// CommandEvaluator prefers an explicit success flag, falls back to exit
// code, then to the mere absence of an error field.
type CommandEvaluator struct{}

func (CommandEvaluator) Evaluate(s Signals) (correct, decided bool) {
	if s.Command == nil {
		return false, false
	}
	r := *s.Command
	if r.Success != nil {
		return *r.Success, true
	}
	if r.ExitCode != nil {
		return *r.ExitCode == 0, true
	}
	return r.Error == "", true
}

// FileEvaluator passes when a path's existence matches what was expected.
type FileEvaluator struct{}

func (FileEvaluator) Evaluate(s Signals) (correct, decided bool) {
	if s.File == nil {
		return false, false
	}
	return s.File.Exists == s.File.ExpectedExists, true
}

// APIEvaluator prefers an explicit success flag, falls back to the
// conventional success status-code range.
type APIEvaluator struct{}

func (APIEvaluator) Evaluate(s Signals) (correct, decided bool) {
	if s.API == nil {
		return false, false
	}
	r := *s.API
	if r.Success != nil {
		return *r.Success, true
	}
	if r.Status == 0 {
		return false, false // no success flag and no status: nothing evaluable
	}
	switch r.Status {
	case 200, 201, 204:
		return true, true
	default:
		return false, true
	}
}

// AllEvaluator combines every individual evaluator with a conservative AND:
// any decided evaluator reporting failure fails the whole; if nothing was
// evaluable, the outcome is undecided.
type AllEvaluator struct {
	Evaluators []Evaluator
}

// NewAllEvaluator builds an AllEvaluator over the four standard evaluators.
func NewAllEvaluator() AllEvaluator {
	return AllEvaluator{Evaluators: []Evaluator{
		TestEvaluator{}, CommandEvaluator{}, FileEvaluator{}, APIEvaluator{},
	}}
}

func (a AllEvaluator) Evaluate(s Signals) (correct, decided bool) {
	anyDecided := false
	allCorrect := true
	for _, e := range a.Evaluators {
		c, ok := e.Evaluate(s)
		if !ok {
			continue
		}
		anyDecided = true
		if !c {
			allCorrect = false
		}
	}
	if !anyDecided {
		return false, false
	}
	return allCorrect, true
}
