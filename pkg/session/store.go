// Package session stores declared intents. A session binds one immutable
// intent to an agent; re-declaration creates a new session and the newest one
// per (tenant, agent) is active.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/edonhq/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists sessions in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Declare validates the intent and creates a new session for the agent.
func (s *Store) Declare(ctx context.Context, tenantID, agentID string, intent types.Intent) (*types.Session, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	sess := &types.Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}
	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("session.Declare marshal intent: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, agent_id, intent, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, tenantID, agentID, intentJSON, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("session.Declare insert: %w", err)
	}
	return sess, nil
}

// Active returns the newest session for (tenant, agent), nil when none exists.
func (s *Store) Active(ctx context.Context, tenantID, agentID string) (*types.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, intent, created_at
		FROM sessions
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY created_at DESC
		LIMIT 1`, tenantID, agentID)

	sess := &types.Session{TenantID: tenantID, AgentID: agentID}
	var intentJSON []byte
	err := row.Scan(&sess.ID, &intentJSON, &sess.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session.Active: %w", err)
	}
	if err := json.Unmarshal(intentJSON, &sess.Intent); err != nil {
		return nil, fmt.Errorf("session.Active unmarshal intent: %w", err)
	}
	return sess, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Memory store, for tests and single-node dev setups.
// ──────────────────────────────────────────────────────────────────────────────

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session // tenant/agent → newest session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.Session)}
}

func (s *MemoryStore) Declare(_ context.Context, tenantID, agentID string, intent types.Intent) (*types.Session, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	sess := &types.Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.sessions[tenantID+"/"+agentID] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Active(_ context.Context, tenantID, agentID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[tenantID+"/"+agentID], nil
}
