package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

// Clawdbot is the pass-through connector to a chat-platform gateway that
// hosts its own secondary tool set. Its single "invoke" op forwards to a
// named downstream tool; the governor has already checked that tool against
// the intent's allowlist before dispatch reaches this point.
type Clawdbot struct {
	upstream *upstream
}

func NewClawdbot() *Clawdbot {
	return &Clawdbot{upstream: newUpstream()}
}

func (c *Clawdbot) Descriptor() Descriptor {
	return Descriptor{
		Tool: "clawdbot",
		Ops: map[string]OpSchema{
			"invoke": {ParamSchema: `{
				"type": "object",
				"properties": {
					"tool": {"type": "string", "minLength": 1},
					"args": {"type": "object"}
				},
				"required": ["tool"]
			}`},
		},
	}
}

func (c *Clawdbot) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	tok, err := staticTokenFor("clawdbot", cred)
	if err != nil {
		return nil, err
	}
	switch op {
	case "invoke":
		downstream := strParam(params, "tool")
		args := mapParam(params, "args")
		if args == nil {
			args = map[string]any{}
		}
		u := strings.TrimRight(tok.BaseURL, "/") + "/v1/tools/" + url.PathEscape(downstream) + "/invoke"
		return c.upstream.postJSON(ctx, "clawdbot", u, nil, bearerHeader(tok.Token), args)
	default:
		return nil, types.ErrUnknownOp("clawdbot", op)
	}
}
