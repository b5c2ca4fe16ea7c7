package connectors

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

// GitHub is the code-hosting connector. Long-lived token + base URL, so
// GitHub Enterprise hosts work with the same connector.
type GitHub struct {
	upstream *upstream
}

func NewGitHub() *GitHub {
	return &GitHub{upstream: newUpstream()}
}

func (c *GitHub) Descriptor() Descriptor {
	return Descriptor{
		Tool: "github",
		Ops: map[string]OpSchema{
			"create_issue": {ParamSchema: `{
				"type": "object",
				"properties": {
					"owner": {"type": "string", "minLength": 1},
					"repo": {"type": "string", "minLength": 1},
					"title": {"type": "string", "minLength": 1},
					"body": {"type": "string"},
					"labels": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["owner", "repo", "title"]
			}`},
			"list_issues": {ParamSchema: `{
				"type": "object",
				"properties": {
					"owner": {"type": "string", "minLength": 1},
					"repo": {"type": "string", "minLength": 1},
					"state": {"type": "string", "enum": ["open", "closed", "all"]}
				},
				"required": ["owner", "repo"]
			}`},
		},
	}
}

func (c *GitHub) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	tok, err := staticTokenFor("github", cred)
	if err != nil {
		return nil, err
	}
	header := bearerHeader(tok.Token)
	header.Set("Accept", "application/vnd.github+json")

	repoPath := tok.BaseURL + "/repos/" +
		url.PathEscape(strParam(params, "owner")) + "/" +
		url.PathEscape(strParam(params, "repo")) + "/issues"

	switch op {
	case "create_issue":
		payload := map[string]any{
			"title": strParam(params, "title"),
		}
		if body := strParam(params, "body"); body != "" {
			payload["body"] = body
		}
		if labels, ok := params["labels"].([]any); ok && len(labels) > 0 {
			payload["labels"] = labels
		}
		return c.upstream.postJSON(ctx, "github", repoPath, nil, header, payload)
	case "list_issues":
		query := url.Values{"state": {strParamOr(params, "state", "open")}}
		return c.upstream.getJSON(ctx, "github", repoPath, query, header)
	default:
		return nil, types.ErrUnknownOp("github", op)
	}
}
