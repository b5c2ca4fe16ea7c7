package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edonhq/gateway/pkg/types"
)

func TestUpstream_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	u := newUpstream()
	_, err := u.getJSON(context.Background(), "test", srv.URL, nil, nil)
	if kindOf(t, err) != types.KindUpstreamError {
		t.Fatalf("expected upstream_error, got %v", err)
	}
}

func TestUpstream_EmptyBodyBecomesEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	u := newUpstream()
	data, err := u.getJSON(context.Background(), "test", srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected {}, got %s", data)
	}
}

func TestUpstream_ErrorStatusCarriesTrimmedDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	u := newUpstream()
	_, err := u.getJSON(context.Background(), "test", srv.URL, nil, nil)
	ge := types.AsGatewayError(err)
	if ge.Kind != types.KindUpstreamError {
		t.Fatalf("expected upstream_error, got %v", err)
	}
	if len(ge.Detail) > 512 {
		t.Errorf("detail not trimmed: %d bytes", len(ge.Detail))
	}
}

func TestUpstream_Unreachable(t *testing.T) {
	u := newUpstream()
	_, err := u.getJSON(context.Background(), "test", "http://127.0.0.1:1", nil, nil)
	if kindOf(t, err) != types.KindUpstreamError {
		t.Fatalf("expected upstream_error, got %v", err)
	}
}

func TestUpstream_QueryAppending(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	u := newUpstream()
	if _, err := u.getJSON(context.Background(), "test", srv.URL+"/path?fixed=1",
		map[string][]string{"q": {"golang"}}, nil); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if !strings.Contains(gotURL, "fixed=1") || !strings.Contains(gotURL, "q=golang") {
		t.Errorf("query params lost: %s", gotURL)
	}
}
