// Package client is a small Go SDK for the gateway API: declare a session,
// execute actions, and poll an approval-gated action until it runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// DeclareSession declares the agent's intent for subsequent Execute calls.
func (c *Client) DeclareSession(ctx context.Context, agentID string, intent types.Intent) (*types.Session, error) {
	var sess types.Session
	if err := c.postJSON(ctx, "/v1/sessions", types.DeclareSessionRequest{
		AgentID: agentID,
		Intent:  intent,
	}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Execute submits an action for the agent's active session.
func (c *Client) Execute(ctx context.Context, agentID string, action types.Action) (*types.ExecuteResponse, error) {
	var resp types.ExecuteResponse
	if err := c.postJSON(ctx, "/execute", types.ExecuteRequest{
		Action:  action,
		AgentID: agentID,
	}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Connect stores a credential for the tool under the caller's tenant.
func (c *Client) Connect(ctx context.Context, tool string, cred credential.Credential) error {
	kind, data, err := credential.Marshal(cred)
	if err != nil {
		return err
	}
	return c.postJSON(ctx, "/integrations/"+tool+"/connect", map[string]any{
		"type":       kind,
		"credential": json.RawMessage(data),
	}, nil)
}

// ExecuteWithApproval submits the action and, if the gateway requires human
// approval, re-submits on an interval until a grant is consumed or the context
// expires.
func (c *Client) ExecuteWithApproval(ctx context.Context, agentID string, action types.Action, pollEvery time.Duration) (*types.ExecuteResponse, error) {
	resp, err := c.Execute(ctx, agentID, action)
	if err != nil {
		return nil, err
	}
	if resp.Status != "pending_approval" {
		return resp, nil
	}

	t := time.NewTicker(pollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			resp, err := c.Execute(ctx, agentID, action)
			if err != nil {
				return nil, err
			}
			if resp.Status != "pending_approval" {
				return resp, nil
			}
		}
	}
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 202 pending falls inside the success range and decodes normally.
		var apiErr types.GatewayError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
