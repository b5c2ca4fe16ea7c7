package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

const newsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPI is the news search/headlines connector. API-key auth.
type NewsAPI struct {
	baseURL  string
	upstream *upstream
}

func NewNewsAPI() *NewsAPI {
	return &NewsAPI{baseURL: newsAPIBaseURL, upstream: newUpstream()}
}

func (c *NewsAPI) SetBaseURL(u string) { c.baseURL = u }

func (c *NewsAPI) Descriptor() Descriptor {
	return Descriptor{
		Tool: "newsapi",
		Ops: map[string]OpSchema{
			"search": {ParamSchema: `{
				"type": "object",
				"properties": {
					"q": {"type": "string", "minLength": 1},
					"language": {"type": "string"},
					"sort_by": {"type": "string", "enum": ["publishedAt", "relevancy", "popularity"]},
					"page_size": {"type": "integer", "minimum": 1, "maximum": 100}
				},
				"required": ["q"]
			}`},
			"top_headlines": {ParamSchema: `{
				"type": "object",
				"properties": {
					"country": {"type": "string"},
					"category": {"type": "string"},
					"page_size": {"type": "integer", "minimum": 1, "maximum": 100}
				}
			}`},
		},
	}
}

func (c *NewsAPI) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	key, err := apiKeyFor("newsapi", cred)
	if err != nil {
		return nil, err
	}
	pageSize := strconv.Itoa(clampInt(intParamOr(params, "page_size", 20), 1, 100))

	switch op {
	case "search":
		query := url.Values{
			"q":        {strParam(params, "q")},
			"language": {strParamOr(params, "language", "en")},
			"sortBy":   {strParamOr(params, "sort_by", "publishedAt")},
			"pageSize": {pageSize},
			"apiKey":   {key.Key},
		}
		return c.upstream.getJSON(ctx, "newsapi", c.baseURL+"/everything", query, nil)
	case "top_headlines":
		query := url.Values{
			"country":  {strParamOr(params, "country", "us")},
			"pageSize": {pageSize},
			"apiKey":   {key.Key},
		}
		if cat := strParam(params, "category"); cat != "" {
			query.Set("category", cat)
		}
		return c.upstream.getJSON(ctx, "newsapi", c.baseURL+"/top-headlines", query, nil)
	default:
		return nil, types.ErrUnknownOp("newsapi", op)
	}
}
