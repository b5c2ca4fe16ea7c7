package governor

import (
	"testing"

	"github.com/edonhq/gateway/pkg/types"
)

func session(scope map[string][]string) *types.Session {
	return &types.Session{
		ID:       "s1",
		TenantID: "tenant1",
		AgentID:  "agent-1",
		Intent: types.Intent{
			Scope:          scope,
			RiskLevel:      types.RiskLow,
			ApprovedByUser: true,
		},
	}
}

func TestAuthorize_AllowInScope(t *testing.T) {
	g := New(nil)
	sess := session(map[string][]string{"gmail": {"send", "search"}})

	d := g.Authorize(sess, types.Action{Tool: "gmail", Op: "send"})
	if d.Verdict != VerdictAllow {
		t.Fatalf("expected allow, got %s (%s)", d.Verdict, d.Reason)
	}
}

func TestAuthorize_DenyScenarios(t *testing.T) {
	g := New(nil)
	scoped := session(map[string][]string{"gmail": {"search"}})

	unapproved := session(map[string][]string{"gmail": {"search"}})
	unapproved.Intent.ApprovedByUser = false

	tests := []struct {
		name    string
		session *types.Session
		action  types.Action
	}{
		{"nil session", nil, types.Action{Tool: "gmail", Op: "search"}},
		{"unapproved intent", unapproved, types.Action{Tool: "gmail", Op: "search"}},
		{"tool outside scope", scoped, types.Action{Tool: "github", Op: "search"}},
		{"op outside scope", scoped, types.Action{Tool: "gmail", Op: "send"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Authorize(tt.session, tt.action)
			if d.Verdict != VerdictDeny {
				t.Errorf("expected deny, got %s", d.Verdict)
			}
			if d.Reason == "" {
				t.Error("deny must carry a reason")
			}
		})
	}
}

func TestAuthorize_ClawdbotAllowlist(t *testing.T) {
	g := New(nil)
	sess := session(map[string][]string{ClawdbotTool: {ClawdbotInvokeOp}})
	sess.Intent.Constraints.AllowedClawdbotTools = []string{"weather"}

	d := g.Authorize(sess, types.Action{
		Tool:   ClawdbotTool,
		Op:     ClawdbotInvokeOp,
		Params: map[string]any{"tool": "weather"},
	})
	if d.Verdict != VerdictAllow {
		t.Fatalf("allowlisted downstream tool denied: %s", d.Reason)
	}

	d = g.Authorize(sess, types.Action{
		Tool:   ClawdbotTool,
		Op:     ClawdbotInvokeOp,
		Params: map[string]any{"tool": "shell"},
	})
	if d.Verdict != VerdictDeny {
		t.Fatal("non-allowlisted downstream tool must be denied")
	}

	// Missing or non-string downstream name fails closed.
	d = g.Authorize(sess, types.Action{Tool: ClawdbotTool, Op: ClawdbotInvokeOp})
	if d.Verdict != VerdictDeny {
		t.Fatal("missing downstream tool must be denied")
	}
	d = g.Authorize(sess, types.Action{
		Tool:   ClawdbotTool,
		Op:     ClawdbotInvokeOp,
		Params: map[string]any{"tool": 42},
	})
	if d.Verdict != VerdictDeny {
		t.Fatal("non-string downstream tool must be denied")
	}
}

func TestRiskPolicy_EscalatesHighRiskConfirmOps(t *testing.T) {
	g := New(RiskPolicy{ConfirmOps: map[string][]string{"gmail": {"send"}}})
	sess := session(map[string][]string{"gmail": {"send", "search"}})
	sess.Intent.RiskLevel = types.RiskHigh

	d := g.Authorize(sess, types.Action{Tool: "gmail", Op: "send"})
	if d.Verdict != VerdictRequireApproval {
		t.Fatalf("expected require_approval, got %s", d.Verdict)
	}
	if d.Reason == "" {
		t.Error("escalation must carry a reason")
	}

	// Ops not in the confirm list pass through.
	d = g.Authorize(sess, types.Action{Tool: "gmail", Op: "search"})
	if d.Verdict != VerdictAllow {
		t.Fatalf("expected allow for unlisted op, got %s", d.Verdict)
	}
}

func TestRiskPolicy_LowRiskNotEscalated(t *testing.T) {
	g := New(RiskPolicy{ConfirmOps: map[string][]string{"gmail": {"send"}}})
	sess := session(map[string][]string{"gmail": {"send"}})

	d := g.Authorize(sess, types.Action{Tool: "gmail", Op: "send"})
	if d.Verdict != VerdictAllow {
		t.Fatalf("expected allow for low-risk intent, got %s", d.Verdict)
	}
}
