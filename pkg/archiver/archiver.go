// Package archiver bundles verified audit chain segments into object storage.
// Each run picks up where the tenant's checkpoint left off, verifies the hash
// links against the checkpointed hash, and uploads the segment as one JSON
// bundle.
package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edonhq/gateway/pkg/audit"
)

type AuditStore interface {
	GetArchiveCheckpoint(context.Context, string) (time.Time, string, int64, error)
	GetChainEvents(context.Context, string, int64) ([]audit.ChainEvent, error)
	UpsertArchiveCheckpoint(context.Context, string, time.Time, string, int64) error
	ListTenantIDs(context.Context) ([]string, error)
}

type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

type Service struct {
	store    AuditStore
	uploader Uploader
}

func New(store AuditStore, uploader Uploader) *Service {
	return &Service{store: store, uploader: uploader}
}

type Bundle struct {
	TenantID    string             `json:"tenant_id"`
	CreatedAt   time.Time          `json:"created_at"`
	RecordCount int                `json:"record_count"`
	Checkpoint  string             `json:"checkpoint_hash"`
	Since       time.Time          `json:"since"`
	Records     []audit.ChainEvent `json:"records"`
}

// ArchiveTenant uploads the tenant's unarchived chain segment and advances the
// checkpoint. Returns the object key, or "" when there is nothing new.
func (s *Service) ArchiveTenant(ctx context.Context, tenantID string) (string, error) {
	since, lastHash, lastSeq, err := s.store.GetArchiveCheckpoint(ctx, tenantID)
	if err != nil {
		return "", err
	}
	events, err := s.store.GetChainEvents(ctx, tenantID, lastSeq)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	if err := audit.VerifyChainFrom(lastHash, events); err != nil {
		return "", fmt.Errorf("verify chain: %w", err)
	}

	last := events[len(events)-1]
	now := time.Now().UTC()
	bundle := Bundle{
		TenantID:    tenantID,
		CreatedAt:   now,
		RecordCount: len(events),
		Checkpoint:  last.Hash,
		Since:       since,
		Records:     events,
	}
	body, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}

	key := fmt.Sprintf("audit/%s/%04d/%02d/%02d/%s.json", tenantID, now.Year(), now.Month(), now.Day(), last.Hash)
	if err := s.uploader.Upload(ctx, key, body); err != nil {
		return "", err
	}
	if err := s.store.UpsertArchiveCheckpoint(ctx, tenantID, now, last.Hash, last.Seq); err != nil {
		return "", err
	}
	return key, nil
}
