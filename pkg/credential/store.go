package credential

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/edonhq/gateway/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ──────────────────────────────────────────────────────────────────────────────
// Store resolves in order: stored record, then refreshed-env cache, then env
// fallback. Reads are safe for concurrent access; token write-back is
// serialized per key by the Refresher's single-flight group.
// ──────────────────────────────────────────────────────────────────────────────

// backend persists credential records keyed by (tenant_id, tool).
type backend interface {
	get(ctx context.Context, tenantID, tool string) (Kind, []byte, error) // ("", nil, nil) when absent
	put(ctx context.Context, tenantID, tool string, kind Kind, data []byte) error
	// update replaces data for an existing row; returns false when no row
	// exists.
	update(ctx context.Context, tenantID, tool string, data []byte) (bool, error)
}

type Store struct {
	db     backend
	getenv func(string) string

	mu        sync.RWMutex
	envTokens map[string]*OAuth // tenant/tool → refreshed env-derived token
}

// NewStore creates a credential store over a Postgres pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return newStore(&pgBackend{pool: pool})
}

// NewMemoryStore creates a store backed by process memory. Used by tests and
// single-tenant dev setups without Postgres.
func NewMemoryStore() *Store {
	return newStore(&memBackend{rows: map[string]memRow{}})
}

func newStore(db backend) *Store {
	return &Store{
		db:        db,
		getenv:    os.Getenv,
		envTokens: make(map[string]*OAuth),
	}
}

// SetEnvLookup overrides environment lookup. Tests only.
func (s *Store) SetEnvLookup(fn func(string) string) { s.getenv = fn }

// Resolve finds the credential for (tenant, tool).
func (s *Store) Resolve(ctx context.Context, tenantID, tool string) (Resolved, error) {
	kind, data, err := s.db.get(ctx, tenantID, tool)
	if err != nil {
		return Resolved{}, fmt.Errorf("credential resolve %s/%s: %w", tenantID, tool, err)
	}
	if data != nil {
		cred, err := Unmarshal(kind, data)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{TenantID: tenantID, Tool: tool, Source: SourceStore, Credential: cred}, nil
	}

	// Refreshed env-derived tokens shadow the raw environment values for the
	// process lifetime.
	s.mu.RLock()
	cached := s.envTokens[resolveKey(tenantID, tool)]
	s.mu.RUnlock()
	if cached != nil {
		return Resolved{TenantID: tenantID, Tool: tool, Source: SourceEnv, Credential: cached.Clone()}, nil
	}

	if cred := fromEnv(tool, s.getenv); cred != nil {
		return Resolved{TenantID: tenantID, Tool: tool, Source: SourceEnv, Credential: cred}, nil
	}
	return Resolved{}, types.ErrCredentialMissing(tool)
}

// Put upserts a stored record. Used by the per-tool connect endpoint.
func (s *Store) Put(ctx context.Context, tenantID, tool string, cred Credential) error {
	kind, data, err := Marshal(cred)
	if err != nil {
		return err
	}
	if err := s.db.put(ctx, tenantID, tool, kind, data); err != nil {
		return fmt.Errorf("credential put %s/%s: %w", tenantID, tool, err)
	}
	return nil
}

// saveRefreshed persists a refreshed token according to its provenance:
// stored records are updated in place, env-derived credentials are cached in
// memory only and lost on restart.
func (s *Store) saveRefreshed(ctx context.Context, res Resolved, tok *OAuth) error {
	if res.Source == SourceStore {
		_, data, err := Marshal(tok)
		if err != nil {
			return err
		}
		ok, err := s.db.update(ctx, res.TenantID, res.Tool, data)
		if err != nil {
			return fmt.Errorf("credential persist %s/%s: %w", res.TenantID, res.Tool, err)
		}
		if ok {
			return nil
		}
		// Row vanished between resolve and persist; fall through to cache so
		// the refreshed token is not lost.
	}
	s.mu.Lock()
	s.envTokens[resolveKey(res.TenantID, res.Tool)] = tok.Clone()
	s.mu.Unlock()
	return nil
}

func resolveKey(tenantID, tool string) string { return tenantID + "/" + tool }

// ──────────────────────────────────────────────────────────────────────────────
// Postgres backend
// ──────────────────────────────────────────────────────────────────────────────

type pgBackend struct {
	pool *pgxpool.Pool
}

func (b *pgBackend) get(ctx context.Context, tenantID, tool string) (Kind, []byte, error) {
	row := b.pool.QueryRow(ctx, `
		SELECT credential_type, credential_data
		FROM credentials
		WHERE tenant_id = $1 AND tool = $2`, tenantID, tool)

	var kind string
	var data []byte
	err := row.Scan(&kind, &data)
	if err == pgx.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return Kind(kind), data, nil
}

func (b *pgBackend) put(ctx context.Context, tenantID, tool string, kind Kind, data []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO credentials (tenant_id, tool, credential_type, credential_data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, tool)
		DO UPDATE SET credential_type = $3, credential_data = $4, updated_at = now()`,
		tenantID, tool, string(kind), data)
	return err
}

func (b *pgBackend) update(ctx context.Context, tenantID, tool string, data []byte) (bool, error) {
	tag, err := b.pool.Exec(ctx, `
		UPDATE credentials
		SET credential_data = $3, updated_at = now()
		WHERE tenant_id = $1 AND tool = $2`,
		tenantID, tool, data)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Memory backend
// ──────────────────────────────────────────────────────────────────────────────

type memRow struct {
	kind Kind
	data []byte
}

type memBackend struct {
	mu   sync.RWMutex
	rows map[string]memRow
}

func (b *memBackend) get(_ context.Context, tenantID, tool string) (Kind, []byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	row, ok := b.rows[resolveKey(tenantID, tool)]
	if !ok {
		return "", nil, nil
	}
	return row.kind, row.data, nil
}

func (b *memBackend) put(_ context.Context, tenantID, tool string, kind Kind, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[resolveKey(tenantID, tool)] = memRow{kind: kind, data: data}
	return nil
}

func (b *memBackend) update(_ context.Context, tenantID, tool string, data []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := resolveKey(tenantID, tool)
	row, ok := b.rows[key]
	if !ok {
		return false, nil
	}
	row.data = data
	b.rows[key] = row
	return true, nil
}
