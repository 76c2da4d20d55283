package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/roach88/inlinesql/internal/queryir"
)

// Domain prefixes for content fingerprints.
// The version suffix allows the algorithm to change later.
const (
	DomainFunction = "inlinesql/function/v2"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content fingerprint of a function spec compiled
// with the given parameter markers.
//
// Two specs share a fingerprint exactly when they would compile to the same
// plan under the same markers. Source positions do not take part. Text is
// hashed as raw bytes: the compiler copies literals and identifiers into the
// query unchanged, so canonically equal spellings must not collide.
func Fingerprint(spec *FunctionSpec, markers []rune) (string, error) {
	params := make([]any, len(spec.Params))
	for i, p := range spec.Params {
		params[i] = map[string]any{"name": raw(p.Name), "type": raw(p.Type)}
	}

	obj := map[string]any{
		"name":     raw(spec.Name),
		"async":    spec.Async,
		"params":   params,
		"returns":  raw(spec.Returns.String()),
		"client":   raw(spec.ClientName()),
		"map_row":  raw(spec.MapRow),
		"map_err":  raw(spec.MapErr),
		"markers":  raw(markerSet(markers)),
		"template": canonicalTokens(spec.Template),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFunction, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(spec *FunctionSpec, markers []rune) string {
	fp, err := Fingerprint(spec, markers)
	if err != nil {
		panic(err)
	}
	return fp
}

// raw hex-encodes s so MarshalCanonical's NFC pass leaves its bytes alone.
func raw(s string) string {
	return hex.EncodeToString([]byte(s))
}

// markerSet is the sorted, duplicate-free marker string.
func markerSet(markers []rune) string {
	m := slices.Clone(markers)
	slices.Sort(m)
	return string(slices.Compact(m))
}

func canonicalTokens(tokens []queryir.Token) []any {
	out := make([]any, 0, len(tokens))
	for _, t := range tokens {
		switch tok := t.(type) {
		case queryir.Ident:
			out = append(out, map[string]any{"kind": "ident", "value": raw(tok.Name)})
		case queryir.Literal:
			out = append(out, map[string]any{"kind": "literal", "value": raw(tok.Text)})
		case queryir.Punct:
			out = append(out, map[string]any{"kind": "punct", "value": raw(string(tok.Char))})
		case queryir.Marker:
			out = append(out, map[string]any{"kind": "marker", "value": raw(tok.Name)})
		case queryir.Group:
			out = append(out, map[string]any{
				"kind":   "group",
				"delim":  tok.Delim.String(),
				"tokens": canonicalTokens(tok.Tokens),
			})
		}
	}
	return out
}
