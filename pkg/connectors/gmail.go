package connectors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Gmail is the email connector. OAuth credential; the pipeline hands it a
// fresh access token.
type Gmail struct {
	baseURL  string
	upstream *upstream
}

func NewGmail() *Gmail {
	return &Gmail{baseURL: gmailBaseURL, upstream: newUpstream()}
}

func (c *Gmail) SetBaseURL(u string) { c.baseURL = u }

func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func (c *Gmail) Descriptor() Descriptor {
	return Descriptor{
		Tool: "gmail",
		Ops: map[string]OpSchema{
			"send": {ParamSchema: `{
				"type": "object",
				"properties": {
					"to": {"type": "string", "minLength": 1},
					"subject": {"type": "string", "minLength": 1},
					"body": {"type": "string"}
				},
				"required": ["to", "subject"]
			}`},
			"list": {ParamSchema: `{
				"type": "object",
				"properties": {
					"query": {"type": "string"},
					"max_results": {"type": "integer", "minimum": 1, "maximum": 100}
				}
			}`},
		},
	}
}

func (c *Gmail) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	tok, err := oauthFor("gmail", cred)
	if err != nil {
		return nil, err
	}
	header := bearerHeader(tok.AccessToken)

	switch op {
	case "send":
		// CR/LF in a header value would let a caller smuggle extra headers
		// into the message.
		rfc822 := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
			headerValue(strParam(params, "to")), headerValue(strParam(params, "subject")), strParam(params, "body"))
		payload := map[string]any{
			"raw": base64.URLEncoding.EncodeToString([]byte(rfc822)),
		}
		return c.upstream.postJSON(ctx, "gmail", c.baseURL+"/users/me/messages/send", nil, header, payload)
	case "list":
		query := url.Values{
			"maxResults": {strconv.Itoa(clampInt(intParamOr(params, "max_results", 20), 1, 100))},
		}
		if q := strParam(params, "query"); q != "" {
			query.Set("q", q)
		}
		return c.upstream.getJSON(ctx, "gmail", c.baseURL+"/users/me/messages", query, header)
	default:
		return nil, types.ErrUnknownOp("gmail", op)
	}
}
