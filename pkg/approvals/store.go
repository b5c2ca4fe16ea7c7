package approvals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages approval requests in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new approvals store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new pending approval request.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Request, error) {
	if in.TenantID == "" || in.Tool == "" || in.Op == "" {
		return nil, fmt.Errorf("approvals.Create: tenant_id, tool, and op are required")
	}

	now := time.Now().UTC()
	req := &Request{
		ID:        uuid.NewString(),
		TenantID:  in.TenantID,
		AgentID:   in.AgentID,
		Tool:      in.Tool,
		Op:        in.Op,
		Reason:    in.Reason,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approval_requests (
			id, tenant_id, agent_id, tool, op, reason,
			status, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.TenantID, req.AgentID, req.Tool, req.Op, req.Reason,
		req.Status, req.CreatedAt, req.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("approvals.Create insert: %w", err)
	}
	return req, nil
}

// Get fetches a single request, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, agent_id, tool, op, reason,
		       status, COALESCE(approver, ''), COALESCE(deny_reason, ''),
		       created_at, expires_at
		FROM approval_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// ListPending returns the tenant's pending, unexpired requests.
func (s *Store) ListPending(ctx context.Context, tenantID string) ([]*Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, agent_id, tool, op, reason,
		       status, COALESCE(approver, ''), COALESCE(deny_reason, ''),
		       created_at, expires_at
		FROM approval_requests
		WHERE tenant_id = $1 AND status = 'pending' AND expires_at > now()
		ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("approvals.ListPending: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Grant marks a pending request granted. Returns false when the request is
// not pending (already decided, consumed, or expired).
func (s *Store) Grant(ctx context.Context, id, tenantID, approver string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_requests
		SET status = 'granted', approver = $3
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending' AND expires_at > now()`,
		id, tenantID, approver)
	if err != nil {
		return false, fmt.Errorf("approvals.Grant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Deny marks a pending request denied.
func (s *Store) Deny(ctx context.Context, id, tenantID, approver, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_requests
		SET status = 'denied', approver = $3, deny_reason = $4
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'`,
		id, tenantID, approver, reason)
	if err != nil {
		return false, fmt.Errorf("approvals.Deny: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindAndConsume atomically consumes a granted, unexpired request matching
// the action. Exactly one concurrent caller wins; the rest see nil.
func (s *Store) FindAndConsume(ctx context.Context, tenantID, agentID, tool, op string) (*Request, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE approval_requests
		SET status = 'consumed'
		WHERE id = (
			SELECT id FROM approval_requests
			WHERE tenant_id = $1 AND agent_id = $2 AND tool = $3 AND op = $4
			  AND status = 'granted' AND expires_at > now()
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, agent_id, tool, op, reason,
		          status, COALESCE(approver, ''), COALESCE(deny_reason, ''),
		          created_at, expires_at`,
		tenantID, agentID, tool, op)

	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func scanRequest(row pgx.Row) (*Request, error) {
	req := &Request{}
	err := row.Scan(
		&req.ID, &req.TenantID, &req.AgentID, &req.Tool, &req.Op, &req.Reason,
		&req.Status, &req.Approver, &req.DenyReason,
		&req.CreatedAt, &req.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("approvals scan: %w", err)
	}
	return req, nil
}
