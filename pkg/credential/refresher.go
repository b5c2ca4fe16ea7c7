package credential

import (
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
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSkew is the safety margin before expires_at at which a token is
	// already treated as expired, so it never expires mid-flight.
	DefaultSkew = 30 * time.Second

	// DefaultRefreshTimeout bounds a single token-endpoint exchange.
	DefaultRefreshTimeout = 20 * time.Second

	maxTokenResponseBytes = 64 * 1024
)

// Refresher exchanges refresh tokens for new access tokens. Refreshes for the
// same (tenant, tool) key are single-flighted: concurrent callers share one
// in-flight exchange, because some providers rotate the refresh token on
// first use and a second concurrent exchange would strand one caller.
type Refresher struct {
	store      *Store
	group      singleflight.Group
	httpClient *http.Client
	timeout    time.Duration
	skew       time.Duration
	now        func() time.Time
}

// NewRefresher creates a Refresher over the given store. The single-flight
// group lives for the process lifetime; entries are transient per refresh.
func NewRefresher(store *Store) *Refresher {
	return &Refresher{
		store:      store,
		httpClient: &http.Client{Timeout: DefaultRefreshTimeout},
		timeout:    DefaultRefreshTimeout,
		skew:       DefaultSkew,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (r *Refresher) SetClock(now func() time.Time) { r.now = now }

// SetTimeout bounds each token-endpoint call.
func (r *Refresher) SetTimeout(d time.Duration) {
	r.timeout = d
	r.httpClient.Timeout = d
}

// EnsureFresh returns a credential safe to use right now. Non-OAuth
// credentials and unexpired tokens are returned unchanged with no I/O.
func (r *Refresher) EnsureFresh(ctx context.Context, res Resolved) (Credential, error) {
	tok, ok := res.Credential.(*OAuth)
	if !ok {
		return res.Credential, nil
	}
	if !tok.ExpiredAt(r.now(), r.skew) {
		return tok, nil
	}
	if !tok.CanRefresh() {
		return nil, types.ErrCredentialRefreshFailed("token expired and no refresh material available")
	}

	v, err, _ := r.group.Do(resolveKey(res.TenantID, res.Tool), func() (any, error) {
		return r.refresh(ctx, res, tok)
	})
	if err != nil {
		return nil, err
	}
	return v.(*OAuth), nil
}

// refresh performs the token exchange and persists the result. It runs
// detached from the triggering caller's cancellation: the result is shared
// via single-flight, so one caller's abort must not fail the others.
func (r *Refresher) refresh(callerCtx context.Context, res Resolved, tok *OAuth) (*OAuth, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), r.timeout)
	defer cancel()

	// A refresh that completed just before we joined the flight may already
	// be persisted; use it instead of burning the rotated refresh token.
	if latest, err := r.store.Resolve(ctx, res.TenantID, res.Tool); err == nil {
		if cur, ok := latest.Credential.(*OAuth); ok && !cur.ExpiredAt(r.now(), r.skew) {
			return cur, nil
		}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {tok.ClientID},
	}
	if tok.ClientSecret != "" {
		form.Set("client_secret", tok.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tok.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.ErrCredentialRefreshFailed(err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.ErrCredentialRefreshFailed("token endpoint timed out")
		}
		return nil, types.ErrCredentialRefreshFailed(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, types.ErrCredentialRefreshFailed(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.ErrCredentialRefreshFailed(
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, sanitizeUpstream(body)))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.ErrCredentialRefreshFailed("token endpoint returned invalid JSON")
	}
	if payload.AccessToken == "" {
		return nil, types.ErrCredentialRefreshFailed("token endpoint returned no access_token")
	}

	fresh := tok.Clone()
	fresh.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		fresh.RefreshToken = payload.RefreshToken
	}
	if payload.ExpiresIn > 0 {
		fresh.ExpiresAt = r.now().Unix() + payload.ExpiresIn
	} else {
		fresh.ExpiresAt = 0
	}

	if err := r.store.saveRefreshed(ctx, res, fresh); err != nil {
		return nil, types.ErrCredentialRefreshFailed(err.Error())
	}
	return fresh, nil
}

// sanitizeUpstream trims the upstream body for error detail. Token endpoints
// return error codes like invalid_grant here, never secrets.
func sanitizeUpstream(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
