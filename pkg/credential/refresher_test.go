package credential

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edonhq/gateway/pkg/types"
)

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func expiredToken(tokenURI string) *OAuth {
	return &OAuth{
		AccessToken:  "stale",
		RefreshToken: "rt-1",
		ClientID:     "cid",
		ClientSecret: "cs",
		TokenURI:     tokenURI,
		ExpiresAt:    100, // long past
	}
}

func storedResolved(t *testing.T, s *Store, tok *OAuth) Resolved {
	t.Helper()
	if err := s.Put(context.Background(), "tenant1", "gmail", tok); err != nil {
		t.Fatalf("put: %v", err)
	}
	res, err := s.Resolve(context.Background(), "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return res
}

func TestEnsureFresh_NonOAuthPassthrough(t *testing.T) {
	r := NewRefresher(NewMemoryStore())
	res := Resolved{TenantID: "tenant1", Tool: "github", Source: SourceEnv, Credential: StaticToken{BaseURL: "https://b", Token: "t"}}

	cred, err := r.EnsureFresh(context.Background(), res)
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if cred.(StaticToken).Token != "t" {
		t.Errorf("credential altered: %+v", cred)
	}
}

func TestEnsureFresh_UnexpiredPassthrough(t *testing.T) {
	r := NewRefresher(NewMemoryStore())
	r.SetClock(fixedClock(1000))
	tok := &OAuth{AccessToken: "at", ExpiresAt: 1000 + 3600}

	cred, err := r.EnsureFresh(context.Background(), Resolved{TenantID: "t", Tool: "gmail", Credential: tok})
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if cred.(*OAuth).AccessToken != "at" {
		t.Errorf("unexpired token replaced: %+v", cred)
	}
}

func TestEnsureFresh_NoRefreshMaterial(t *testing.T) {
	r := NewRefresher(NewMemoryStore())
	r.SetClock(fixedClock(1000))
	tok := &OAuth{AccessToken: "at", ExpiresAt: 500}

	_, err := r.EnsureFresh(context.Background(), Resolved{TenantID: "t", Tool: "gmail", Credential: tok})
	if err == nil {
		t.Fatal("expected error")
	}
	var ge *types.GatewayError
	if !errors.As(err, &ge) || ge.Kind != types.KindCredentialRefreshFailed {
		t.Fatalf("expected credential_refresh_failed, got %v", err)
	}
}

func TestEnsureFresh_ExchangesAndPersists(t *testing.T) {
	var gotGrant, gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotGrant = r.FormValue("grant_type")
		gotRefresh = r.FormValue("refresh_token")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-at",
			"refresh_token": "rt-2",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	r := NewRefresher(store)
	r.SetClock(fixedClock(1000))
	res := storedResolved(t, store, expiredToken(srv.URL))

	cred, err := r.EnsureFresh(context.Background(), res)
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	tok := cred.(*OAuth)
	if tok.AccessToken != "fresh-at" {
		t.Errorf("access token not replaced: %+v", tok)
	}
	if tok.RefreshToken != "rt-2" {
		t.Errorf("rotated refresh token not kept: %+v", tok)
	}
	if tok.ExpiresAt != 1000+3600 {
		t.Errorf("expires_at not derived from clock: %d", tok.ExpiresAt)
	}
	if gotGrant != "refresh_token" || gotRefresh != "rt-1" {
		t.Errorf("unexpected exchange form: grant=%s refresh=%s", gotGrant, gotRefresh)
	}

	// The refreshed token is persisted to the store.
	again, err := store.Resolve(context.Background(), "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.Credential.(*OAuth).AccessToken != "fresh-at" {
		t.Errorf("refresh not persisted: %+v", again.Credential)
	}
}

func TestEnsureFresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh-at", "expires_in": 60})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	r := NewRefresher(store)
	r.SetClock(fixedClock(1000))
	res := storedResolved(t, store, expiredToken(srv.URL))

	cred, err := r.EnsureFresh(context.Background(), res)
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if cred.(*OAuth).RefreshToken != "rt-1" {
		t.Errorf("refresh token lost: %+v", cred)
	}
}

func TestEnsureFresh_UpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	store := NewMemoryStore()
	r := NewRefresher(store)
	r.SetClock(fixedClock(1000))
	res := storedResolved(t, store, expiredToken(srv.URL))

	_, err := r.EnsureFresh(context.Background(), res)
	if err == nil {
		t.Fatal("expected error")
	}
	var ge *types.GatewayError
	if !errors.As(err, &ge) || ge.Kind != types.KindCredentialRefreshFailed {
		t.Fatalf("expected credential_refresh_failed, got %v", err)
	}
	if strings.Contains(ge.Error(), "rt-1") || strings.Contains(ge.Detail, "rt-1") {
		t.Error("refresh token leaked into error")
	}
	if !strings.Contains(ge.Detail, "invalid_grant") {
		t.Errorf("expected upstream detail, got %q", ge.Detail)
	}
}

func TestEnsureFresh_ConcurrentCallersShareOneExchange(t *testing.T) {
	var exchanges atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		exchanges.Add(1)
		time.Sleep(20 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh-at", "expires_in": 3600})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	r := NewRefresher(store)
	r.SetClock(fixedClock(1000))
	res := storedResolved(t, store, expiredToken(srv.URL))

	const callers = 50
	var wg sync.WaitGroup
	results := make([]Credential, callers)
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = r.EnsureFresh(context.Background(), res)
		}(i)
	}
	wg.Wait()

	// Even callers that miss the shared flight find the persisted token on
	// re-resolve, so the rotated refresh token is exchanged at most once.
	if got := exchanges.Load(); got != 1 {
		t.Fatalf("expected exactly one token exchange, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].(*OAuth).AccessToken != "fresh-at" {
			t.Fatalf("caller %d got stale token: %+v", i, results[i])
		}
	}
}

func TestEnsureFresh_CallerCancellationDoesNotAbortSharedFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh-at", "expires_in": 3600})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	r := NewRefresher(store)
	r.SetClock(fixedClock(1000))
	res := storedResolved(t, store, expiredToken(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.EnsureFresh(ctx, res)
		done <- err
	}()

	cancel()
	close(release)

	// The exchange runs detached from the caller context, so it completes and
	// the persisted result is visible to the next caller.
	if err := <-done; err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	again, err := store.Resolve(context.Background(), "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.Credential.(*OAuth).AccessToken != "fresh-at" {
		t.Errorf("refresh not persisted after caller cancellation: %+v", again.Credential)
	}
}
