package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

// Market-data connectors: Polygon.io and Financial Modeling Prep. Both are
// API-key-in-query upstreams with read-only ops.

const (
	polygonBaseURL = "https://api.polygon.io"
	fmpBaseURL     = "https://financialmodelingprep.com/api/v3"
)

// ──────────────────────────────────────────────────────────────────────────────
// Polygon
// ──────────────────────────────────────────────────────────────────────────────

type Polygon struct {
	baseURL  string
	upstream *upstream
}

func NewPolygon() *Polygon {
	return &Polygon{baseURL: polygonBaseURL, upstream: newUpstream()}
}

func (c *Polygon) SetBaseURL(u string) { c.baseURL = u }

func (c *Polygon) Descriptor() Descriptor {
	tickerSchema := `{
		"type": "object",
		"properties": {
			"ticker": {"type": "string", "minLength": 1},
			"adjusted": {"type": "boolean"}
		},
		"required": ["ticker"]
	}`
	return Descriptor{
		Tool: "polygon",
		Ops: map[string]OpSchema{
			"prev_close":     {ParamSchema: tickerSchema},
			"ticker_details": {ParamSchema: tickerSchema},
		},
	}
}

func (c *Polygon) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	key, err := apiKeyFor("polygon", cred)
	if err != nil {
		return nil, err
	}
	ticker := strings.ToUpper(strParam(params, "ticker"))
	query := url.Values{"apiKey": {key.Key}}

	switch op {
	case "prev_close":
		query.Set("adjusted", strconv.FormatBool(boolParamOr(params, "adjusted", true)))
		return c.upstream.getJSON(ctx, "polygon", c.baseURL+"/v2/aggs/ticker/"+url.PathEscape(ticker)+"/prev", query, nil)
	case "ticker_details":
		return c.upstream.getJSON(ctx, "polygon", c.baseURL+"/v3/reference/tickers/"+url.PathEscape(ticker), query, nil)
	default:
		return nil, types.ErrUnknownOp("polygon", op)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// FMP
// ──────────────────────────────────────────────────────────────────────────────

type FMP struct {
	baseURL  string
	upstream *upstream
}

func NewFMP() *FMP {
	return &FMP{baseURL: fmpBaseURL, upstream: newUpstream()}
}

func (c *FMP) SetBaseURL(u string) { c.baseURL = u }

func (c *FMP) Descriptor() Descriptor {
	return Descriptor{
		Tool: "fmp",
		Ops: map[string]OpSchema{
			"quote": {ParamSchema: `{
				"type": "object",
				"properties": {"symbol": {"type": "string", "minLength": 1}},
				"required": ["symbol"]
			}`},
			"stock_news": {ParamSchema: `{
				"type": "object",
				"properties": {
					"tickers": {"type": "string", "minLength": 1},
					"limit": {"type": "integer", "minimum": 1, "maximum": 50}
				},
				"required": ["tickers"]
			}`},
		},
	}
}

func (c *FMP) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	key, err := apiKeyFor("fmp", cred)
	if err != nil {
		return nil, err
	}
	switch op {
	case "quote":
		symbol := strings.ToUpper(strParam(params, "symbol"))
		query := url.Values{"apikey": {key.Key}}
		return c.upstream.getJSON(ctx, "fmp", c.baseURL+"/quote/"+url.PathEscape(symbol), query, nil)
	case "stock_news":
		query := url.Values{
			"tickers": {strParam(params, "tickers")},
			"limit":   {strconv.Itoa(clampInt(intParamOr(params, "limit", 10), 1, 50))},
			"apikey":  {key.Key},
		}
		return c.upstream.getJSON(ctx, "fmp", c.baseURL+"/stock_news", query, nil)
	default:
		return nil, types.ErrUnknownOp("fmp", op)
	}
}
