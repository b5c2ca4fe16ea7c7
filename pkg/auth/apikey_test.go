package auth

import "testing"

func TestKeyStoreLookup(t *testing.T) {
	ks := NewKeyStore("acme:sk-one, globex : sk-two ,broken,:sk-orphan,empty:")

	cases := []struct {
		key    string
		tenant string
		ok     bool
	}{
		{"sk-one", "acme", true},
		{"sk-two", "globex", true},
		{"sk-orphan", "", false},
		{"sk-unknown", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		tenant, ok := ks.Lookup(tc.key)
		if ok != tc.ok || tenant != tc.tenant {
			t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tc.key, tenant, ok, tc.tenant, tc.ok)
		}
	}
	if ks.Len() != 2 {
		t.Errorf("Len = %d, want 2 (malformed pairs skipped)", ks.Len())
	}
}

func TestKeyStoreEmpty(t *testing.T) {
	ks := NewKeyStore("")
	if ks.Len() != 0 {
		t.Errorf("Len = %d, want 0", ks.Len())
	}
	if _, ok := ks.Lookup("anything"); ok {
		t.Error("empty store matched a key")
	}
}
