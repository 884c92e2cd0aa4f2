package safety

import (
	"context"
	"fmt"
	"strings"

	taberrors "tabula/internal/errors"
	"tabula/internal/utils"
)

const (
	blockNotice = "Code Security issues found, blocking the code."
	warnNotice  = "Warning: The generated snippet contains insecure code."
)

// Adapter runs generated code through a Scanner and renders the verdict as
// report text. Every failure path degrades to "no report": a missing or
// unreachable scanner must never break the conversation.
type Adapter struct {
	scanner Scanner
	logger  *utils.Logger
}

// NewAdapter creates an adapter. A nil scanner disables scanning; the
// degraded mode is decided here, once, not at call time.
func NewAdapter(scanner Scanner) *Adapter {
	a := &Adapter{
		scanner: scanner,
		logger:  utils.NewComponentLogger("safety"),
	}
	if scanner == nil {
		a.logger.Info("Code security scanning disabled: no scanner configured")
	}
	return a
}

// ScanLLMOutput scans code and returns the security report plus whether the
// snippet must be blocked. A clean verdict, a disabled scanner, or any scan
// failure yields an empty report and no block.
func (a *Adapter) ScanLLMOutput(ctx context.Context, code string) (string, bool) {
	if a == nil || a.scanner == nil {
		return "", false
	}

	verdict, err := a.scanner.ScanCode(ctx, code)
	if err != nil {
		if taberrors.IsCircuitOpen(err) {
			a.logger.Debug("Security scan skipped: %v", err)
		} else {
			a.logger.Warn("Security scan unavailable: %v", err)
		}
		return "", false
	}
	if verdict == nil || !verdict.Insecure {
		return "", false
	}

	blocked := verdict.Treatment == TreatmentBlock
	notice := warnNotice
	if blocked {
		notice = blockNotice
	}

	var b strings.Builder
	b.WriteString("## Security Report for Code Snippet\n")
	b.WriteString(notice)
	b.WriteString("\n")
	b.WriteString("## Issue Details")
	for _, issue := range verdict.Issues {
		fmt.Fprintf(&b, "\n    - Description: %s\n    - Severity: %s\n    - Affected Line: %d\n",
			issue.Description, issue.Severity, issue.Line)
	}
	return b.String(), blocked
}
