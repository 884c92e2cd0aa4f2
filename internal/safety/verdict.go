// Package safety turns security-scanner verdicts on generated code into the
// report text shown to the model, degrading to silence when the scanner
// cannot be reached.
package safety

// Treatment is the scanner's recommended handling of a snippet.
type Treatment string

const (
	// TreatmentIgnore means the findings carry no action.
	TreatmentIgnore Treatment = "ignore"
	// TreatmentWarn means the snippet may run but the report is surfaced.
	TreatmentWarn Treatment = "warn"
	// TreatmentBlock means the snippet must not run.
	TreatmentBlock Treatment = "block"
)

// Issue is one finding inside a verdict.
type Issue struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Line        int    `json:"line"`
}

// Verdict is a scanner's judgement of one code snippet. A verdict with
// Insecure false never carries an actionable treatment.
type Verdict struct {
	Insecure  bool      `json:"is_insecure"`
	Treatment Treatment `json:"recommended_treatment"`
	Issues    []Issue   `json:"issues_found"`
}
