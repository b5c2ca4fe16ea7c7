package audit

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/edonhq/gateway/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists audit records in Postgres. Records are append-only; each
// tenant's records form a hash chain serialized by an advisory lock.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an audit store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append inserts the record, linking it into the tenant's hash chain. A
// per-tenant advisory lock serialises appends so concurrent writers cannot
// fork the chain.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit.Append begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockID := tenantLockID(rec.TenantID)
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("audit.Append advisory lock: %w", err)
	}

	prevHash, err := s.lastHashTx(ctx, tx, rec.TenantID)
	if err != nil {
		return fmt.Errorf("audit.Append last hash: %w", err)
	}

	canon, err := CanonicalJSON(rec)
	if err != nil {
		return fmt.Errorf("audit.Append canonical: %w", err)
	}
	rec.PrevHash = prevHash
	rec.Hash = ChainHash(prevHash, canon)

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_records (
			record_id, tenant_id, agent_id, tool, op,
			params, status, error_kind, latency_ms,
			canon_record, hash, prev_hash, created_at
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,
			$10,$11,$12,$13
		)`,
		rec.ID, rec.TenantID, rec.AgentID, rec.Tool, rec.Op,
		rec.Params, rec.Status, string(rec.ErrorKind), rec.LatencyMS,
		canon, rec.Hash, rec.PrevHash, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit.Append insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("audit.Append commit: %w", err)
	}
	return nil
}

// GetRecord fetches a single record by ID, nil when absent.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT record_id, tenant_id, agent_id, tool, op,
		       params, status, error_kind, latency_ms,
		       hash, prev_hash, created_at
		FROM audit_records
		WHERE record_id = $1`, recordID)

	var rec Record
	var errorKind string
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.AgentID, &rec.Tool, &rec.Op,
		&rec.Params, &rec.Status, &errorKind, &rec.LatencyMS,
		&rec.Hash, &rec.PrevHash, &rec.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit.GetRecord: %w", err)
	}
	rec.ErrorKind = types.ErrorKind(errorKind)
	return &rec, nil
}

func (s *Store) lastHashTx(ctx context.Context, tx pgx.Tx, tenantID string) (string, error) {
	row := tx.QueryRow(ctx, `
		SELECT hash FROM audit_records
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT 1`, tenantID)

	var hash string
	err := row.Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Archiver support
// ──────────────────────────────────────────────────────────────────────────────

// ListTenantIDs returns the distinct tenants with audit records.
func (s *Store) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM audit_records`)
	if err != nil {
		return nil, fmt.Errorf("audit.ListTenantIDs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("audit.ListTenantIDs scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetChainEvents returns chain events after the given sequence number.
func (s *Store) GetChainEvents(ctx context.Context, tenantID string, afterSeq int64) ([]ChainEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT record_id, hash, canon_record, seq
		FROM audit_records
		WHERE tenant_id = $1 AND seq > $2
		ORDER BY seq ASC`, tenantID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("audit.GetChainEvents: %w", err)
	}
	defer rows.Close()

	var out []ChainEvent
	for rows.Next() {
		var ev ChainEvent
		if err := rows.Scan(&ev.RecordID, &ev.Hash, &ev.CanonRecord, &ev.Seq); err != nil {
			return nil, fmt.Errorf("audit.GetChainEvents scan: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetArchiveCheckpoint returns the last archived position for a tenant.
func (s *Store) GetArchiveCheckpoint(ctx context.Context, tenantID string) (time.Time, string, int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT archived_at, last_hash, last_seq
		FROM audit_archive_checkpoints
		WHERE tenant_id = $1`, tenantID)

	var at time.Time
	var hash string
	var seq int64
	err := row.Scan(&at, &hash, &seq)
	if err == pgx.ErrNoRows {
		return time.Time{}, "", 0, nil
	}
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("audit.GetArchiveCheckpoint: %w", err)
	}
	return at, hash, seq, nil
}

// UpsertArchiveCheckpoint advances the archived position for a tenant.
func (s *Store) UpsertArchiveCheckpoint(ctx context.Context, tenantID string, at time.Time, lastHash string, lastSeq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_archive_checkpoints (tenant_id, archived_at, last_hash, last_seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id)
		DO UPDATE SET archived_at = $2, last_hash = $3, last_seq = $4`,
		tenantID, at, lastHash, lastSeq)
	if err != nil {
		return fmt.Errorf("audit.UpsertArchiveCheckpoint: %w", err)
	}
	return nil
}

// tenantLockID derives a stable advisory-lock key from the tenant ID.
func tenantLockID(tenantID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("audit:"))
	h.Write([]byte(tenantID))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return int64(binary.BigEndian.Uint64(buf[:]))
}
