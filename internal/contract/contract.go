package contract

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Decision is the human-facing outcome of an approval request.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionTimeout  Decision = "timeout"
	DecisionError    Decision = "error"
)

// ValidationStatus is the engine-side verification axis, independent from Decision.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
)

// ChannelKind identifies which notification channel carried the request.
type ChannelKind string

const (
	ChannelNone    ChannelKind = ""
	ChannelSlack   ChannelKind = "slack"
	ChannelWebhook ChannelKind = "webhook"
)

// SystemActor is the reserved principal recorded on system-initiated transitions.
const SystemActor = "system"

// ApprovalContract is the durable record of one human-in-the-loop decision
// request and its outcome. All writes after creation are keyed by ApprovalID.
type ApprovalContract struct {
	ApprovalID  string `json:"approval_id"`
	RequestedBy string `json:"requested_by"`
	Task        string `json:"task"`
	Environment string `json:"environment"`

	Decision   Decision `json:"decision"`
	ApprovedBy string   `json:"approved_by,omitempty"`
	Comment    string   `json:"comment,omitempty"`

	AgentValidation  ValidationStatus `json:"agent_validation"`
	ValidationReason string           `json:"validation_reason,omitempty"`

	Channel ChannelKind `json:"channel,omitempty"`

	RequestTimestamp      time.Time  `json:"request_timestamp"`
	Deadline              time.Time  `json:"deadline"`
	ResolutionTimestamp   *time.Time `json:"resolution_timestamp,omitempty"`
	ResolutionTimeSeconds float64    `json:"resolution_time_seconds,omitempty"`

	// Context carries extension fields (cluster, namespace, links) untouched.
	Context map[string]string `json:"context,omitempty"`
}

// New creates a pending contract with a fresh ULID and timestamps.
func New(task, requestedBy, environment string, payload map[string]string, ttl time.Duration) *ApprovalContract {
	now := time.Now().UTC()
	return &ApprovalContract{
		ApprovalID:       ulid.Make().String(),
		RequestedBy:      requestedBy,
		Task:             task,
		Environment:      environment,
		Decision:         DecisionPending,
		AgentValidation:  ValidationPending,
		RequestTimestamp: now,
		Deadline:         now.Add(ttl),
		Context:          payload,
	}
}

// IsTerminal reports whether Decision permits no further transition.
func (c *ApprovalContract) IsTerminal() bool {
	return c.Decision.IsTerminal()
}

func (d Decision) IsTerminal() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionTimeout, DecisionError:
		return true
	}
	return false
}

// IsHumanDecision reports whether d originated from an approver rather than the engine.
func (d Decision) IsHumanDecision() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// AuthorizedToProceed is the only condition under which the blocked action may
// continue: an approved decision that also passed agent validation.
func (c *ApprovalContract) AuthorizedToProceed() bool {
	return c.Decision == DecisionApproved && c.AgentValidation == ValidationPassed
}

// Resolve stamps the terminal decision fields. Resolution time is computed
// once here and stored for audit query convenience.
func (c *ApprovalContract) Resolve(decision Decision, approvedBy, comment string, at time.Time) {
	at = at.UTC()
	c.Decision = decision
	c.ApprovedBy = approvedBy
	c.Comment = comment
	c.ResolutionTimestamp = &at
	c.ResolutionTimeSeconds = at.Sub(c.RequestTimestamp).Seconds()
}

// Clone returns a deep copy so store callers never share mutable state.
func (c *ApprovalContract) Clone() *ApprovalContract {
	dup := *c
	if c.ResolutionTimestamp != nil {
		ts := *c.ResolutionTimestamp
		dup.ResolutionTimestamp = &ts
	}
	if c.Context != nil {
		dup.Context = make(map[string]string, len(c.Context))
		for k, v := range c.Context {
			dup.Context[k] = v
		}
	}
	return &dup
}
