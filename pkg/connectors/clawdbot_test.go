package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edonhq/gateway/pkg/credential"
)

func TestClawdbotInvokeForwardsArgs(t *testing.T) {
	var gotPath string
	var gotArgs map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotArgs)
		_, _ = w.Write([]byte(`{"result":"sunny"}`))
	}))
	defer srv.Close()

	c := NewClawdbot()
	data, err := c.Execute(context.Background(), "invoke", map[string]any{
		"tool": "weather",
		"args": map[string]any{"city": "Lisbon"},
	}, credential.StaticToken{BaseURL: srv.URL, Token: "cb-token"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(data) != `{"result":"sunny"}` {
		t.Errorf("unexpected output: %s", data)
	}
	if gotPath != "/v1/tools/weather/invoke" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotArgs["city"] != "Lisbon" {
		t.Errorf("args not forwarded: %v", gotArgs)
	}
}

func TestClawdbotInvokeDefaultsEmptyArgs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var args map[string]any
		_ = json.NewDecoder(r.Body).Decode(&args)
		if args == nil || len(args) != 0 {
			t.Errorf("expected empty args object, got %v", args)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClawdbot()
	if _, err := c.Execute(context.Background(), "invoke", map[string]any{"tool": "calc"},
		credential.StaticToken{BaseURL: srv.URL, Token: "cb-token"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
}
