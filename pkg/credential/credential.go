// Package credential resolves and refreshes the secret material needed to
// call a tool on behalf of a tenant. Credentials are keyed by
// (tenant_id, tool) and come in three auth styles, modeled as a closed set
// of variants so each connector only accepts the shape it understands.
package credential

import (
	"encoding/json"
	"fmt"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Variants
// ──────────────────────────────────────────────────────────────────────────────

type Kind string

const (
	KindAPIKey      Kind = "api_key"
	KindOAuth       Kind = "oauth"
	KindStaticToken Kind = "static_token"
)

// Credential is the closed union of auth styles. Only the three variant
// types in this package implement it.
type Credential interface {
	Kind() Kind
}

// APIKey is a static key presented as a query parameter or header.
type APIKey struct {
	Key string `json:"api_key"`
}

func (APIKey) Kind() Kind { return KindAPIKey }

// StaticToken is a long-lived token paired with a service base URL.
type StaticToken struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

func (StaticToken) Kind() Kind { return KindStaticToken }

// OAuth carries refreshable token material. ExpiresAt is a Unix timestamp;
// zero means the access token never expires.
type OAuth struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TokenURI     string `json:"token_uri,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

func (*OAuth) Kind() Kind { return KindOAuth }

// CanRefresh reports whether the credential carries enough material to
// exchange the refresh token.
func (t *OAuth) CanRefresh() bool {
	return t.RefreshToken != "" && t.ClientID != "" && t.TokenURI != ""
}

// ExpiredAt reports whether the token is expired at the given instant,
// applying the safety skew so a token never expires mid-flight.
func (t *OAuth) ExpiredAt(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= t.ExpiresAt-int64(skew.Seconds())
}

// Clone returns a copy so refreshes never mutate a credential observed by
// another caller.
func (t *OAuth) Clone() *OAuth {
	c := *t
	return &c
}

// ──────────────────────────────────────────────────────────────────────────────
// Serialization: store rows carry (credential_type, credential_data jsonb).
// ──────────────────────────────────────────────────────────────────────────────

// Marshal encodes a credential into its store representation.
func Marshal(cred Credential) (kind Kind, data []byte, err error) {
	raw, err := json.Marshal(cred)
	if err != nil {
		return "", nil, fmt.Errorf("credential marshal: %w", err)
	}
	return cred.Kind(), raw, nil
}

// Unmarshal decodes a store row back into the right variant.
func Unmarshal(kind Kind, data []byte) (Credential, error) {
	switch kind {
	case KindAPIKey:
		var c APIKey
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("credential unmarshal api_key: %w", err)
		}
		return c, nil
	case KindStaticToken:
		var c StaticToken
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("credential unmarshal static_token: %w", err)
		}
		return c, nil
	case KindOAuth:
		var c OAuth
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("credential unmarshal oauth: %w", err)
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("credential unmarshal: unknown kind %q", kind)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolution result
// ──────────────────────────────────────────────────────────────────────────────

// Source records where a credential came from. Refreshed tokens are written
// back to the store for stored records; env-derived refreshes live in memory
// for the process lifetime only and are lost on restart.
type Source string

const (
	SourceStore Source = "store"
	SourceEnv   Source = "env"
)

// Resolved pairs a credential with its provenance and key.
type Resolved struct {
	TenantID   string
	Tool       string
	Source     Source
	Credential Credential
}
