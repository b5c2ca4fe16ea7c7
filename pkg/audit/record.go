// Package audit provides the append-only record trail for executed actions:
// redaction, canonicalization, per-tenant hash chaining, and storage.
package audit

import (
	"time"

	"github.com/edonhq/gateway/pkg/types"
)

// ──────────────────────────────────────────────────────────────────────────────
// Statuses. One record per Execute call, including denied and failed ones.
// ──────────────────────────────────────────────────────────────────────────────

const (
	StatusSuccess         = "success"
	StatusDenied          = "denied"
	StatusFailed          = "failed"
	StatusPendingApproval = "pending_approval"
)

// Record is the audit entry for a single action. Params are redacted before
// the record is constructed; no secret material may enter this struct.
type Record struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	AgentID   string          `json:"agent_id"`
	Tool      string          `json:"tool"`
	Op        string          `json:"op"`
	Params    map[string]any  `json:"params,omitempty"`
	Status    string          `json:"status"`
	ErrorKind types.ErrorKind `json:"error_kind,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`

	// Per-tenant chain links, filled in by the store on append.
	Hash     string `json:"hash,omitempty"`
	PrevHash string `json:"prev_hash,omitempty"`
}
