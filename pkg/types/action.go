// Package types defines the canonical action, intent, and session schema used
// across the gateway.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Limits
// ──────────────────────────────────────────────────────────────────────────────

const (
	MaxParamsBytes = 64 * 1024 // 64 KB
	MaxToolBytes   = 128
	MaxOpBytes     = 128
)

// ──────────────────────────────────────────────────────────────────────────────
// Action is the abstract request an agent submits to /execute.
// ──────────────────────────────────────────────────────────────────────────────

type Action struct {
	Tool   string         `json:"tool"`
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

// Normalize lowercases and trims tool/op.
func (a *Action) Normalize() {
	a.Tool = strings.ToLower(strings.TrimSpace(a.Tool))
	a.Op = strings.ToLower(strings.TrimSpace(a.Op))
}

// Validate enforces the action shape invariants. Also normalizes tool/op.
func (a *Action) Validate() error {
	a.Normalize()

	if a.Tool == "" {
		return ErrMalformedAction("tool is required")
	}
	if len(a.Tool) > MaxToolBytes {
		return ErrMalformedAction("tool exceeds maximum length")
	}
	if a.Op == "" {
		return ErrMalformedAction("op is required")
	}
	if len(a.Op) > MaxOpBytes {
		return ErrMalformedAction("op exceeds maximum length")
	}
	if a.Params != nil {
		raw, err := json.Marshal(a.Params)
		if err != nil {
			return ErrMalformedAction("params is not serializable")
		}
		if len(raw) > MaxParamsBytes {
			return ErrMalformedAction("params exceeds maximum size")
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Intent is declared once per session and immutable once attached.
// ──────────────────────────────────────────────────────────────────────────────

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Constraints carries the enumerated constraint keys the gateway understands
// plus a residual open map for connector-specific, forward-compatible keys.
type Constraints struct {
	AllowedClawdbotTools []string       `json:"allowed_clawdbot_tools,omitempty"`
	Extra                map[string]any `json:"extra,omitempty"`
}

type Intent struct {
	Objective      string              `json:"objective,omitempty"` // advisory only
	Scope          map[string][]string `json:"scope"`               // tool → allowed ops
	Constraints    Constraints         `json:"constraints,omitempty"`
	RiskLevel      RiskLevel           `json:"risk_level"`
	ApprovedByUser bool                `json:"approved_by_user"`
}

// Validate checks the intent is well formed and usable.
func (in *Intent) Validate() error {
	if len(in.Scope) == 0 {
		return &ValidationError{Field: "scope", Reason: "required"}
	}
	switch in.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	case "":
		in.RiskLevel = RiskLow
	default:
		return &ValidationError{Field: "risk_level", Reason: "must be low, medium, or high"}
	}
	if !in.ApprovedByUser {
		return &ValidationError{Field: "approved_by_user", Reason: "must be true for the session to be usable"}
	}
	return nil
}

// PermitsOp reports whether the scope allows op on tool.
func (in *Intent) PermitsOp(tool, op string) bool {
	ops, ok := in.Scope[tool]
	if !ok {
		return false
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// AllowsClawdbotTool reports whether the downstream tool is allowlisted.
func (in *Intent) AllowsClawdbotTool(name string) bool {
	for _, t := range in.Constraints.AllowedClawdbotTools {
		if t == name {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// Session owns the active intent for an agent; no cross-session sharing.
// ──────────────────────────────────────────────────────────────────────────────

type Session struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	AgentID   string    `json:"agent_id"`
	Intent    Intent    `json:"intent"`
	CreatedAt time.Time `json:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Execution result + API payloads
// ──────────────────────────────────────────────────────────────────────────────

type ExecutionResult struct {
	Status     string          `json:"status"` // "success" | "error"
	Data       json.RawMessage `json:"data,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Action  Action `json:"action"`
	AgentID string `json:"agent_id"`
}

// Validate enforces request invariants, delegating to Action.Validate.
func (r *ExecuteRequest) Validate() error {
	if r.AgentID == "" {
		return ErrMalformedAction("agent_id is required")
	}
	return r.Action.Validate()
}

// ExecuteResponse is the success payload of POST /execute.
type ExecuteResponse struct {
	RecordID string          `json:"record_id"`
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`

	// Set when the governor requires human approval before execution.
	ApprovalID  string `json:"approval_id,omitempty"`
	ApprovalURL string `json:"approval_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// DeclareSessionRequest is the body of POST /v1/sessions.
type DeclareSessionRequest struct {
	AgentID string `json:"agent_id"`
	Intent  Intent `json:"intent"`
}
