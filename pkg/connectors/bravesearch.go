package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

const braveSearchBaseURL = "https://api.search.brave.com/res/v1"

// BraveSearch is the web-search connector. API-key auth.
type BraveSearch struct {
	baseURL  string
	upstream *upstream
}

func NewBraveSearch() *BraveSearch {
	return &BraveSearch{baseURL: braveSearchBaseURL, upstream: newUpstream()}
}

// SetBaseURL overrides the upstream endpoint. Tests only.
func (c *BraveSearch) SetBaseURL(u string) { c.baseURL = u }

func (c *BraveSearch) Descriptor() Descriptor {
	return Descriptor{
		Tool: "brave_search",
		Ops: map[string]OpSchema{
			"search": {ParamSchema: `{
				"type": "object",
				"properties": {
					"q": {"type": "string", "minLength": 1},
					"count": {"type": "integer", "minimum": 1, "maximum": 20}
				},
				"required": ["q"]
			}`},
		},
	}
}

func (c *BraveSearch) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	key, err := apiKeyFor("brave_search", cred)
	if err != nil {
		return nil, err
	}
	switch op {
	case "search":
		query := url.Values{
			"q":     {strParam(params, "q")},
			"count": {strconv.Itoa(clampInt(intParamOr(params, "count", 10), 1, 20))},
		}
		header := http.Header{}
		header.Set("X-Subscription-Token", key.Key)
		header.Set("Accept", "application/json")
		return c.upstream.getJSON(ctx, "brave_search", c.baseURL+"/web/search", query, header)
	default:
		return nil, types.ErrUnknownOp("brave_search", op)
	}
}
