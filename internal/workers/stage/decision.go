// internal/workers/stage/decision.go
package stage

// Verdict is the outcome of a stage's decision function.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// DecisionFunc is the pluggable business decision for one stage. The real
// KYC/compliance/credit logic lives behind this boundary; the processor only
// requires that the function is pure and deterministic so that reprocessing
// a duplicate delivery re-derives the same verdict.
type DecisionFunc func(applicationID string, payload map[string]interface{}) Verdict

// AlwaysPass approves everything. Useful default for local runs and tests.
func AlwaysPass(string, map[string]interface{}) Verdict {
	return VerdictPass
}

// AmountBelow approves applications whose payload amount is under the limit.
// A deterministic stand-in for a real credit decision.
func AmountBelow(limit float64) DecisionFunc {
	return func(_ string, payload map[string]interface{}) Verdict {
		amount, ok := payload["amount"].(float64)
		if !ok {
			return VerdictFail
		}
		if amount < limit {
			return VerdictPass
		}
		return VerdictFail
	}
}
