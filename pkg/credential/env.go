package credential

import "strings"

// Environment fallback. Each tool maps to a fixed set of variable names; the
// fallback is consulted only when no stored record exists for the tenant.

type envSpec struct {
	kind Kind

	// api_key style
	keyVar    string
	altKeyVar string

	// static_token style
	baseURLVar string
	tokenVar   string

	// oauth style: <prefix>ACCESS_TOKEN, <prefix>REFRESH_TOKEN,
	// <prefix>CLIENT_ID, <prefix>CLIENT_SECRET, <prefix>TOKEN_URI.
	oauthPrefix string
}

var envSpecs = map[string]envSpec{
	"brave_search":    {kind: KindAPIKey, keyVar: "BRAVE_SEARCH_API_KEY"},
	"polygon":         {kind: KindAPIKey, keyVar: "POLYGON_API_KEY"},
	"fmp":             {kind: KindAPIKey, keyVar: "FMP_API_KEY"},
	"newsapi":         {kind: KindAPIKey, keyVar: "NEWSAPI_KEY"},
	"gemini":          {kind: KindAPIKey, keyVar: "GEMINI_API_KEY", altKeyVar: "GOOGLE_API_KEY"},
	"elevenlabs":      {kind: KindAPIKey, keyVar: "ELEVENLABS_API_KEY"},
	"github":          {kind: KindStaticToken, baseURLVar: "GITHUB_API_URL", tokenVar: "GITHUB_TOKEN"},
	"home_assistant":  {kind: KindStaticToken, baseURLVar: "HOME_ASSISTANT_BASE_URL", tokenVar: "HOME_ASSISTANT_TOKEN"},
	"clawdbot":        {kind: KindStaticToken, baseURLVar: "CLAWDBOT_BASE_URL", tokenVar: "CLAWDBOT_TOKEN"},
	"gmail":           {kind: KindOAuth, oauthPrefix: "GMAIL_"},
	"google_calendar": {kind: KindOAuth, oauthPrefix: "GOOGLE_CALENDAR_"},
}

const defaultGitHubAPIURL = "https://api.github.com"

// fromEnv builds the fallback credential for tool, or nil when the required
// variables are unset.
func fromEnv(tool string, getenv func(string) string) Credential {
	spec, ok := envSpecs[tool]
	if !ok {
		return nil
	}
	get := func(name string) string { return strings.TrimSpace(getenv(name)) }

	switch spec.kind {
	case KindAPIKey:
		key := get(spec.keyVar)
		if key == "" && spec.altKeyVar != "" {
			key = get(spec.altKeyVar)
		}
		if key == "" {
			return nil
		}
		return APIKey{Key: key}

	case KindStaticToken:
		base := strings.TrimRight(get(spec.baseURLVar), "/")
		token := get(spec.tokenVar)
		if base == "" && tool == "github" && token != "" {
			base = defaultGitHubAPIURL
		}
		if base == "" || token == "" {
			return nil
		}
		return StaticToken{BaseURL: base, Token: token}

	case KindOAuth:
		tok := &OAuth{
			AccessToken:  get(spec.oauthPrefix + "ACCESS_TOKEN"),
			RefreshToken: get(spec.oauthPrefix + "REFRESH_TOKEN"),
			ClientID:     get(spec.oauthPrefix + "CLIENT_ID"),
			ClientSecret: get(spec.oauthPrefix + "CLIENT_SECRET"),
			TokenURI:     get(spec.oauthPrefix + "TOKEN_URI"),
		}
		if tok.AccessToken == "" && tok.RefreshToken == "" {
			return nil
		}
		return tok
	}
	return nil
}
