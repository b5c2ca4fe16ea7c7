// Package governor evaluates requested actions against a session's declared
// intent. Evaluation is a pure function of session state and action, safe for
// concurrent use across sessions.
package governor

import (
	"fmt"

	"github.com/edonhq/gateway/pkg/types"
)

// ClawdbotTool is the pass-through tool name. Its single "invoke" op routes
// to a downstream tool that must additionally be allowlisted in the intent
// constraints.
const (
	ClawdbotTool     = "clawdbot"
	ClawdbotInvokeOp = "invoke"
)

// ──────────────────────────────────────────────────────────────────────────────
// Decision
// ──────────────────────────────────────────────────────────────────────────────

type Verdict string

const (
	VerdictAllow           Verdict = "allow"
	VerdictDeny            Verdict = "deny"
	VerdictRequireApproval Verdict = "require_approval"
)

type Decision struct {
	Verdict Verdict
	Reason  string
}

func allow() Decision {
	return Decision{Verdict: VerdictAllow}
}

func deny(reason string) Decision {
	return Decision{Verdict: VerdictDeny, Reason: reason}
}

// ──────────────────────────────────────────────────────────────────────────────
// Policy is the configurable gate beyond scope membership. The default policy
// escalates nothing; deployments that want per-call confirmation of
// irreversible ops plug in a RiskPolicy.
// ──────────────────────────────────────────────────────────────────────────────

type Policy interface {
	// Evaluate may escalate an action that passed scope checks. It must not
	// turn a denial into an allow.
	Evaluate(session *types.Session, action types.Action) Decision
}

// AllowAll is the default policy: anything in scope runs without further
// confirmation.
type AllowAll struct{}

func (AllowAll) Evaluate(*types.Session, types.Action) Decision { return allow() }

// RiskPolicy requires human approval when a high-risk intent invokes one of
// the configured ops (e.g. gmail.send, github.create_issue).
type RiskPolicy struct {
	ConfirmOps map[string][]string // tool → ops needing per-call approval
}

func (p RiskPolicy) Evaluate(session *types.Session, action types.Action) Decision {
	if session.Intent.RiskLevel != types.RiskHigh {
		return allow()
	}
	for _, op := range p.ConfirmOps[action.Tool] {
		if op == action.Op {
			return Decision{
				Verdict: VerdictRequireApproval,
				Reason:  fmt.Sprintf("high-risk intent: %s.%s requires confirmation", action.Tool, action.Op),
			}
		}
	}
	return allow()
}

// ──────────────────────────────────────────────────────────────────────────────
// Governor
// ──────────────────────────────────────────────────────────────────────────────

type Governor struct {
	policy Policy
}

// New creates a Governor with the given policy. A nil policy means AllowAll.
func New(policy Policy) *Governor {
	if policy == nil {
		policy = AllowAll{}
	}
	return &Governor{policy: policy}
}

// Authorize decides whether the action may proceed under the session's intent.
// It has no side effects and never touches credentials.
func (g *Governor) Authorize(session *types.Session, action types.Action) Decision {
	if session == nil {
		return deny("no active session")
	}
	if !session.Intent.ApprovedByUser {
		return deny("intent not approved by user")
	}

	if _, ok := session.Intent.Scope[action.Tool]; !ok {
		return deny("unknown tool")
	}
	if !session.Intent.PermitsOp(action.Tool, action.Op) {
		return deny("op not permitted")
	}

	// The pass-through gateway tool is in scope for "invoke", but the
	// downstream tool it names must also be allowlisted.
	if action.Tool == ClawdbotTool && action.Op == ClawdbotInvokeOp {
		downstream, _ := action.Params["tool"].(string)
		if downstream == "" || !session.Intent.AllowsClawdbotTool(downstream) {
			return deny("downstream tool not allowlisted")
		}
	}

	return g.policy.Evaluate(session, action)
}
