// Package connectors defines the capability contract for tool connectors and
// the registry that routes validated actions to them.
package connectors

import (
	"context"
	"encoding/json"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

// Connector executes ops against one external tool. Implementations are
// polymorphic over the same contract regardless of auth style: the dispatcher
// passes whatever credential variant resolution produced and the connector
// interprets the fields it expects.
type Connector interface {
	// Descriptor returns the tool name and per-op parameter schemas. It must
	// be constant for the connector's lifetime.
	Descriptor() Descriptor

	// Execute translates (op, params, credential) into an upstream call and
	// normalizes the response. Params arrive already validated against the
	// op's schema.
	Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error)
}

// Descriptor declares a connector's capability surface.
type Descriptor struct {
	Tool string
	Ops  map[string]OpSchema
}

// OpSchema constrains an op's params. ParamSchema is a JSON Schema document;
// an empty string means the op takes no constrained params.
type OpSchema struct {
	ParamSchema string
}

// ──────────────────────────────────────────────────────────────────────────────
// Credential variant helpers. Connectors accept only the shape they
// understand; a mismatch means the tenant connected the wrong kind of
// credential for this tool.
// ──────────────────────────────────────────────────────────────────────────────

func apiKeyFor(tool string, cred credential.Credential) (credential.APIKey, error) {
	key, ok := cred.(credential.APIKey)
	if !ok || key.Key == "" {
		return credential.APIKey{}, types.ErrCredentialMissing(tool)
	}
	return key, nil
}

func staticTokenFor(tool string, cred credential.Credential) (credential.StaticToken, error) {
	tok, ok := cred.(credential.StaticToken)
	if !ok || tok.BaseURL == "" || tok.Token == "" {
		return credential.StaticToken{}, types.ErrCredentialMissing(tool)
	}
	return tok, nil
}

func oauthFor(tool string, cred credential.Credential) (*credential.OAuth, error) {
	tok, ok := cred.(*credential.OAuth)
	if !ok || tok.AccessToken == "" {
		return nil, types.ErrCredentialMissing(tool)
	}
	return tok, nil
}
