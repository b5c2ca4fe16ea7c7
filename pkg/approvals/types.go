// Package approvals provides per-call human confirmation for actions the
// governor escalates. A granted approval is single-use: it authorizes exactly
// one execution of the matching (tenant, agent, tool, op).
package approvals

import "time"

const (
	StatusPending  = "pending"
	StatusGranted  = "granted"
	StatusDenied   = "denied"
	StatusConsumed = "consumed"
)

// DefaultTTL bounds how long a request may wait for a decision.
const DefaultTTL = 24 * time.Hour

type Request struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	AgentID    string    `json:"agent_id"`
	Tool       string    `json:"tool"`
	Op         string    `json:"op"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	Approver   string    `json:"approver,omitempty"`
	DenyReason string    `json:"deny_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type CreateInput struct {
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id"`
	Tool     string `json:"tool"`
	Op       string `json:"op"`
	Reason   string `json:"reason"`
}

type GrantInput struct {
	Approver string `json:"approver"`
}

type DenyInput struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}
