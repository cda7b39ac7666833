// Package validator verifies a resolved approval contract before the engine
// trusts it to authorize anything. A failed validation is a normal, recorded
// outcome, never an error path.
package validator

import (
	"strings"

	"github.com/harunnryd/hanko/internal/contract"
)

// Result carries the validation verdict and, on failure, the reason attached
// to the audit record.
type Result struct {
	Passed bool
	Reason string
}

// Validate checks a human-resolved contract for internal consistency.
// It is a pure function of the contract; timeout and error contracts are
// never validated (the engine leaves their validation status pending).
func Validate(c *contract.ApprovalContract) Result {
	if !c.Decision.IsHumanDecision() {
		return failed("decision is not a human-originated terminal value")
	}

	if !validPrincipal(c.ApprovedBy) {
		return failed("approver identity missing or malformed")
	}

	if c.ResolutionTimestamp == nil {
		return failed("resolution timestamp not set")
	}
	if !c.ResolutionTimestamp.After(c.RequestTimestamp) {
		return failed("resolution timestamp not after request timestamp")
	}

	// Rejection must carry a reason; approvals may omit the comment.
	if c.Decision == contract.DecisionRejected && strings.TrimSpace(c.Comment) == "" {
		return failed("rejection requires a comment")
	}

	return Result{Passed: true}
}

// Apply runs Validate and records the verdict on the contract.
func Apply(c *contract.ApprovalContract) {
	res := Validate(c)
	if res.Passed {
		c.AgentValidation = contract.ValidationPassed
		c.ValidationReason = ""
		return
	}
	c.AgentValidation = contract.ValidationFailed
	c.ValidationReason = res.Reason
}

func validPrincipal(principal string) bool {
	trimmed := strings.TrimSpace(principal)
	if trimmed == "" || trimmed != principal {
		return false
	}
	if strings.ContainsAny(principal, " \t\n") {
		return false
	}
	// The reserved system actor never counts as a human approver.
	return principal != contract.SystemActor
}

func failed(reason string) Result {
	return Result{Passed: false, Reason: reason}
}
