package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edonhq/gateway/pkg/types"
)

const maxUpstreamResponseBytes = 4 << 20 // 4 MB

// upstream is the shared HTTP client connectors use to call their third-party
// API. It normalizes transport failures and non-2xx responses into the
// gateway's error taxonomy.
type upstream struct {
	httpClient *http.Client
}

func newUpstream() *upstream {
	return &upstream{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (u *upstream) getJSON(ctx context.Context, tool, rawURL string, query url.Values, header http.Header) (json.RawMessage, error) {
	return u.do(ctx, tool, http.MethodGet, rawURL, query, header, nil)
}

func (u *upstream) postJSON(ctx context.Context, tool, rawURL string, query url.Values, header http.Header, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.ErrInternal(fmt.Sprintf("%s request marshal failed", tool))
	}
	return u.do(ctx, tool, http.MethodPost, rawURL, query, header, body)
}

func (u *upstream) do(ctx context.Context, tool, method, rawURL string, query url.Values, header http.Header, body []byte) (json.RawMessage, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, types.ErrInternal(fmt.Sprintf("%s request build failed", tool))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.ErrTimeout(tool)
		}
		return nil, &types.GatewayError{
			Kind:    types.KindUpstreamError,
			Message: fmt.Sprintf("upstream %s unreachable", tool),
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return nil, types.ErrUpstream(tool, resp.StatusCode, "response read failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.ErrUpstream(tool, resp.StatusCode, trimDetail(data))
	}

	if len(data) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(data) {
		return nil, types.ErrUpstream(tool, resp.StatusCode, "invalid JSON response")
	}
	return json.RawMessage(data), nil
}

// postBinary is like postJSON but returns the raw response bytes, for
// upstreams that answer with media instead of JSON.
func (u *upstream) postBinary(ctx context.Context, tool, rawURL string, header http.Header, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.ErrInternal(fmt.Sprintf("%s request marshal failed", tool))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.ErrInternal(fmt.Sprintf("%s request build failed", tool))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.ErrTimeout(tool)
		}
		return nil, &types.GatewayError{
			Kind:    types.KindUpstreamError,
			Message: fmt.Sprintf("upstream %s unreachable", tool),
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return nil, types.ErrUpstream(tool, resp.StatusCode, "response read failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.ErrUpstream(tool, resp.StatusCode, trimDetail(data))
	}
	return data, nil
}

func trimDetail(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

// marshalResult wraps a connector's normalized output.
func marshalResult(v any) (json.RawMessage, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, types.ErrInternal("result marshal failed")
	}
	return out, nil
}

func bearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
