package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON produces a stable byte representation of v. Object keys are
// sorted lexicographically; no extraneous whitespace. Chain hashes are
// computed over this form so re-serialization cannot break verification.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical json unmarshal: %w", err)
	}

	out, err := json.Marshal(sortKeys(generic))
	if err != nil {
		return nil, fmt.Errorf("canonical json re-marshal: %w", err)
	}
	return out, nil
}

// ChainHash computes the next hash in the per-tenant chain.
//
//	hash = SHA-256( prevHash || canonicalRecord )
func ChainHash(prevHash string, canonRecord []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonRecord)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain walks a sequence of records and verifies each hash link.
func VerifyChain(events []ChainEvent) error {
	return VerifyChainFrom("", events)
}

// VerifyChainFrom verifies a chain segment that continues from a known prior
// hash, as when resuming from an archive checkpoint.
func VerifyChainFrom(prev string, events []ChainEvent) error {
	for i, ev := range events {
		expected := ChainHash(prev, ev.CanonRecord)
		if ev.Hash != expected {
			return fmt.Errorf("chain broken at index %d (record %s): expected %s, got %s",
				i, ev.RecordID, expected, ev.Hash)
		}
		prev = ev.Hash
	}
	return nil
}

// ChainEvent is the minimal shape needed for verification and archiving.
type ChainEvent struct {
	RecordID    string `json:"record_id"`
	Hash        string `json:"hash"`
	CanonRecord []byte `json:"canon_record"`
	Seq         int64  `json:"seq"`
}

// sortKeys recursively sorts map keys for deterministic serialization.
func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sorted := make(orderedMap, 0, len(val))
		for _, k := range keys {
			sorted = append(sorted, kv{Key: k, Value: sortKeys(val[k])})
		}
		return sorted

	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sortKeys(item)
		}
		return out

	default:
		return val
	}
}

// orderedMap preserves insertion order during JSON marshalling.
type orderedMap []kv

type kv struct {
	Key   string
	Value any
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, item := range om {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(item.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}
