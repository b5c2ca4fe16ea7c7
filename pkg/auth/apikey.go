package auth

import (
	"crypto/sha256"
	"strings"
)

// KeyStore resolves an agent's API key to its tenant. Keys are loaded once
// from API_KEYS at startup and the store is read-only after that, so lookups
// need no locking. Only SHA-256 digests are retained; the raw key material
// is dropped as soon as the store is built.
type KeyStore struct {
	tenants map[[sha256.Size]byte]string
}

// NewKeyStore parses the API_KEYS format: comma-separated "tenant:key"
// pairs, e.g. "acme:sk-live-1,globex:sk-live-2". Malformed pairs and pairs
// with an empty tenant or key are skipped.
func NewKeyStore(raw string) *KeyStore {
	ks := &KeyStore{tenants: make(map[[sha256.Size]byte]string)}
	for _, pair := range strings.Split(raw, ",") {
		tenant, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		tenant = strings.TrimSpace(tenant)
		key = strings.TrimSpace(key)
		if tenant == "" || key == "" {
			continue
		}
		ks.tenants[sha256.Sum256([]byte(key))] = tenant
	}
	return ks
}

// Lookup returns the tenant that owns apiKey.
func (ks *KeyStore) Lookup(apiKey string) (tenantID string, ok bool) {
	if apiKey == "" {
		return "", false
	}
	tenantID, ok = ks.tenants[sha256.Sum256([]byte(apiKey))]
	return tenantID, ok
}

// Len reports how many keys were accepted, so startup can warn on an empty
// or fully malformed API_KEYS value.
func (ks *KeyStore) Len() int {
	return len(ks.tenants)
}
