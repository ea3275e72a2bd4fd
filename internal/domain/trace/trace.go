package trace

import "time"

// Entry records how one request was dispatched.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	ProjectID  string            `json:"project_id"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	MatchedID  string            `json:"matched_id,omitempty"`
	Candidates []CandidateResult `json:"candidates"`
	Result     string            `json:"result"`
	Error      string            `json:"error,omitempty"`
}

// CandidateResult records the evaluation of a single candidate expectation.
// Candidates after the winner are never evaluated and so never appear.
type CandidateResult struct {
	ExpectationID   string `json:"expectation_id"`
	ExpectationName string `json:"expectation_name,omitempty"`
	Matched         bool   `json:"matched"`
	Skipped         string `json:"skipped,omitempty"`
	FailedMatcherID string `json:"failed_matcher_id,omitempty"`
	FailedKind      string `json:"failed_kind,omitempty"`
	FailedReason    string `json:"failed_reason,omitempty"`
}
