package graph

import "math"

// FinalAnswer is the per-question output record.
type FinalAnswer struct {
	ID          string   `json:"id"`
	Value       any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
	// ErrorKind is set only on diagnostic answers.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Diagnostic reports whether the run aborted on a fatal error.
func (a *FinalAnswer) Diagnostic() bool { return a.ErrorKind != "" }

// Outcome is the metrics label for the answer: answered, unable or diagnostic.
func (a *FinalAnswer) Outcome() string {
	switch {
	case a == nil:
		return "diagnostic"
	case a.Diagnostic():
		return "diagnostic"
	case a.Value == nil:
		return "unable"
	default:
		return "answered"
	}
}

// DiagnosticAnswer is the best-effort record for a run that aborted.
func DiagnosticAnswer(id, query string, err *Error) *FinalAnswer {
	return &FinalAnswer{
		ID:          id,
		SQL:         query,
		Explanation: string(err.Kind) + ": " + diagnosticMessage(err),
		Citations:   []string{},
		ErrorKind:   err.Kind,
	}
}

func diagnosticMessage(err *Error) string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

func unableAnswer(id, query, reason string) *FinalAnswer {
	return &FinalAnswer{
		ID:          id,
		SQL:         query,
		Explanation: "Unable to answer with available data: " + reason,
		Citations:   []string{},
	}
}

// confidence drops 0.2 per repair; a failed structured path scores zero.
func confidence(retries int, failed bool) float64 {
	if failed {
		return 0
	}
	c := math.Max(0, 1-0.2*float64(retries))
	return math.Round(c*100) / 100
}
