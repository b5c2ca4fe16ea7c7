package types

import (
	"strings"
	"testing"
)

func TestActionValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"missing tool", Action{Op: "search"}},
		{"missing op", Action{Tool: "brave_search"}},
		{"blank tool", Action{Tool: "   ", Op: "search"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			ge := AsGatewayError(err)
			if ge.Kind != KindMalformedAction {
				t.Errorf("expected malformed_action, got %s", ge.Kind)
			}
		})
	}
}

func TestActionValidate_Normalizes(t *testing.T) {
	a := Action{Tool: "  Brave_Search ", Op: " SEARCH "}
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if a.Tool != "brave_search" || a.Op != "search" {
		t.Errorf("not normalized: tool=%q op=%q", a.Tool, a.Op)
	}
}

func TestActionValidate_Limits(t *testing.T) {
	long := strings.Repeat("x", MaxToolBytes+1)
	a := Action{Tool: long, Op: "search"}
	if err := a.Validate(); err == nil {
		t.Fatal("expected error for oversized tool")
	}

	big := map[string]any{"blob": strings.Repeat("y", MaxParamsBytes)}
	a = Action{Tool: "brave_search", Op: "search", Params: big}
	if err := a.Validate(); err == nil {
		t.Fatal("expected error for oversized params")
	}
}

func TestIntentValidate(t *testing.T) {
	valid := Intent{
		Scope:          map[string][]string{"gmail": {"send"}},
		RiskLevel:      RiskHigh,
		ApprovedByUser: true,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid intent rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Intent)
		field  string
	}{
		{"empty scope", func(in *Intent) { in.Scope = nil }, "scope"},
		{"bad risk level", func(in *Intent) { in.RiskLevel = "severe" }, "risk_level"},
		{"not approved", func(in *Intent) { in.ApprovedByUser = false }, "approved_by_user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := in.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestIntentValidate_DefaultsRiskLow(t *testing.T) {
	in := Intent{
		Scope:          map[string][]string{"gmail": {"send"}},
		ApprovedByUser: true,
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if in.RiskLevel != RiskLow {
		t.Errorf("expected default risk low, got %s", in.RiskLevel)
	}
}

func TestIntentPermitsOp(t *testing.T) {
	in := Intent{Scope: map[string][]string{"gmail": {"send", "search"}}}

	if !in.PermitsOp("gmail", "send") {
		t.Error("expected send permitted")
	}
	if in.PermitsOp("gmail", "delete") {
		t.Error("delete should not be permitted")
	}
	if in.PermitsOp("github", "send") {
		t.Error("unscoped tool should not be permitted")
	}
}

func TestIntentAllowsClawdbotTool(t *testing.T) {
	in := Intent{Constraints: Constraints{AllowedClawdbotTools: []string{"weather", "calc"}}}

	if !in.AllowsClawdbotTool("weather") {
		t.Error("expected weather allowed")
	}
	if in.AllowsClawdbotTool("shell") {
		t.Error("shell should not be allowed")
	}
}

func TestExecuteRequestValidate(t *testing.T) {
	req := ExecuteRequest{Action: Action{Tool: "gmail", Op: "send"}}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for missing agent_id")
	}

	req.AgentID = "agent-1"
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
