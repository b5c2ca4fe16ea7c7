package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/edonhq/gateway/pkg/types"
)

func envMap(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func TestResolve_StoredRecordWins(t *testing.T) {
	s := NewMemoryStore()
	s.SetEnvLookup(envMap(map[string]string{"BRAVE_SEARCH_API_KEY": "env-key"}))
	if err := s.Put(context.Background(), "tenant1", "brave_search", APIKey{Key: "stored-key"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := s.Resolve(context.Background(), "tenant1", "brave_search")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source != SourceStore {
		t.Errorf("expected store source, got %s", res.Source)
	}
	key, ok := res.Credential.(APIKey)
	if !ok || key.Key != "stored-key" {
		t.Errorf("expected stored credential, got %+v", res.Credential)
	}
}

func TestResolve_EnvFallback(t *testing.T) {
	s := NewMemoryStore()
	s.SetEnvLookup(envMap(map[string]string{"BRAVE_SEARCH_API_KEY": "env-key"}))

	res, err := s.Resolve(context.Background(), "tenant1", "brave_search")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source != SourceEnv {
		t.Errorf("expected env source, got %s", res.Source)
	}
	if key := res.Credential.(APIKey); key.Key != "env-key" {
		t.Errorf("expected env key, got %+v", key)
	}
}

func TestResolve_MissingCredential(t *testing.T) {
	s := NewMemoryStore()
	s.SetEnvLookup(envMap(nil))

	_, err := s.Resolve(context.Background(), "tenant1", "brave_search")
	if err == nil {
		t.Fatal("expected error")
	}
	var ge *types.GatewayError
	if !errors.As(err, &ge) || ge.Kind != types.KindCredentialMissing {
		t.Fatalf("expected credential_missing, got %v", err)
	}
}

func TestResolve_EnvVariants(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		vars  map[string]string
		check func(t *testing.T, cred Credential)
	}{
		{
			name: "gemini alt key",
			tool: "gemini",
			vars: map[string]string{"GOOGLE_API_KEY": "g-key"},
			check: func(t *testing.T, cred Credential) {
				if cred.(APIKey).Key != "g-key" {
					t.Errorf("alt key not used: %+v", cred)
				}
			},
		},
		{
			name: "github default base url",
			tool: "github",
			vars: map[string]string{"GITHUB_TOKEN": "ghp_x"},
			check: func(t *testing.T, cred Credential) {
				tok := cred.(StaticToken)
				if tok.BaseURL != "https://api.github.com" {
					t.Errorf("expected default API URL, got %s", tok.BaseURL)
				}
			},
		},
		{
			name: "home assistant trims trailing slash",
			tool: "home_assistant",
			vars: map[string]string{
				"HOME_ASSISTANT_BASE_URL": "http://ha.local:8123/",
				"HOME_ASSISTANT_TOKEN":    "llat",
			},
			check: func(t *testing.T, cred Credential) {
				if cred.(StaticToken).BaseURL != "http://ha.local:8123" {
					t.Errorf("trailing slash kept: %+v", cred)
				}
			},
		},
		{
			name: "gmail oauth prefix",
			tool: "gmail",
			vars: map[string]string{
				"GMAIL_ACCESS_TOKEN":  "at",
				"GMAIL_REFRESH_TOKEN": "rt",
				"GMAIL_CLIENT_ID":     "cid",
				"GMAIL_CLIENT_SECRET": "cs",
				"GMAIL_TOKEN_URI":     "https://oauth2.googleapis.com/token",
			},
			check: func(t *testing.T, cred Credential) {
				tok := cred.(*OAuth)
				if tok.AccessToken != "at" || tok.RefreshToken != "rt" || tok.ClientID != "cid" {
					t.Errorf("oauth fields not populated: %+v", tok)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			s.SetEnvLookup(envMap(tt.vars))
			res, err := s.Resolve(context.Background(), "tenant1", tt.tool)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			tt.check(t, res.Credential)
		})
	}
}

func TestPut_Upserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "tenant1", "github", StaticToken{BaseURL: "https://api.github.com", Token: "old"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "tenant1", "github", StaticToken{BaseURL: "https://api.github.com", Token: "new"}); err != nil {
		t.Fatalf("put again: %v", err)
	}

	res, err := s.Resolve(ctx, "tenant1", "github")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Credential.(StaticToken).Token != "new" {
		t.Errorf("upsert did not replace token: %+v", res.Credential)
	}
}

func TestSaveRefreshed_StoredRecordUpdated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	orig := &OAuth{AccessToken: "old", RefreshToken: "rt", ClientID: "cid", TokenURI: "https://t", ExpiresAt: 1}
	if err := s.Put(ctx, "tenant1", "gmail", orig); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, _ := s.Resolve(ctx, "tenant1", "gmail")
	fresh := orig.Clone()
	fresh.AccessToken = "new"
	fresh.ExpiresAt = 9_999_999_999
	if err := s.saveRefreshed(ctx, res, fresh); err != nil {
		t.Fatalf("saveRefreshed: %v", err)
	}

	again, err := s.Resolve(ctx, "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.Source != SourceStore {
		t.Errorf("expected store source after refresh, got %s", again.Source)
	}
	if again.Credential.(*OAuth).AccessToken != "new" {
		t.Errorf("refresh not persisted: %+v", again.Credential)
	}
}

func TestSaveRefreshed_EnvDerivedCachedInMemory(t *testing.T) {
	vars := map[string]string{
		"GMAIL_ACCESS_TOKEN":  "env-at",
		"GMAIL_REFRESH_TOKEN": "rt",
		"GMAIL_CLIENT_ID":     "cid",
		"GMAIL_TOKEN_URI":     "https://t",
	}
	s := NewMemoryStore()
	s.SetEnvLookup(envMap(vars))
	ctx := context.Background()

	res, err := s.Resolve(ctx, "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fresh := res.Credential.(*OAuth).Clone()
	fresh.AccessToken = "refreshed-at"
	if err := s.saveRefreshed(ctx, res, fresh); err != nil {
		t.Fatalf("saveRefreshed: %v", err)
	}

	// The cache shadows the raw env values.
	again, err := s.Resolve(ctx, "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.Credential.(*OAuth).AccessToken != "refreshed-at" {
		t.Errorf("cached refresh not returned: %+v", again.Credential)
	}

	// A fresh store, as after restart, sees the original env values again.
	s2 := NewMemoryStore()
	s2.SetEnvLookup(envMap(vars))
	res2, err := s2.Resolve(ctx, "tenant1", "gmail")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res2.Credential.(*OAuth).AccessToken != "env-at" {
		t.Errorf("expected raw env token after restart, got %+v", res2.Credential)
	}
}
