package session

import (
	"context"
	"testing"

	"github.com/edonhq/gateway/pkg/types"
)

func validIntent() types.Intent {
	return types.Intent{
		Scope:          map[string][]string{"gmail": {"send"}},
		RiskLevel:      types.RiskLow,
		ApprovedByUser: true,
	}
}

func TestMemoryStoreDeclareAndActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess, err := s.Declare(ctx, "tenant1", "agent-1", validIntent())
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	if sess.ID == "" || sess.TenantID != "tenant1" || sess.AgentID != "agent-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	got, err := s.Active(ctx, "tenant1", "agent-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("expected declared session, got %+v", got)
	}
}

func TestMemoryStoreActiveNoSession(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Active(context.Background(), "tenant1", "agent-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestMemoryStoreDeclareReplacesPrevious(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Declare(ctx, "tenant1", "agent-1", validIntent())
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	second, err := s.Declare(ctx, "tenant1", "agent-1", validIntent())
	if err != nil {
		t.Fatalf("declare again: %v", err)
	}

	got, _ := s.Active(ctx, "tenant1", "agent-1")
	if got.ID != second.ID || got.ID == first.ID {
		t.Fatalf("expected newest session, got %+v", got)
	}
}

func TestMemoryStoreDeclareRejectsInvalidIntent(t *testing.T) {
	s := NewMemoryStore()
	intent := validIntent()
	intent.ApprovedByUser = false

	if _, err := s.Declare(context.Background(), "tenant1", "agent-1", intent); err == nil {
		t.Fatal("expected error for unapproved intent")
	}
}

func TestMemoryStoreSessionsAreIsolatedPerAgent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, _ := s.Declare(ctx, "tenant1", "agent-a", validIntent())
	b, _ := s.Declare(ctx, "tenant1", "agent-b", validIntent())

	gotA, _ := s.Active(ctx, "tenant1", "agent-a")
	gotB, _ := s.Active(ctx, "tenant1", "agent-b")
	if gotA.ID != a.ID || gotB.ID != b.ID {
		t.Fatal("sessions leaked across agents")
	}

	other, _ := s.Active(ctx, "tenant2", "agent-a")
	if other != nil {
		t.Fatal("session leaked across tenants")
	}
}
