package cache

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/c360/graphsync/errors"
)

const (
	separator = ":"

	// globMeta holds the characters with a meaning inside a pattern.
	globMeta = "*?[]{}\\"

	// encodedPrefix marks a segment stored as base64url on NATS.
	encodedPrefix = "="
)

// splitKey returns the namespace and the remaining segments of a logical key.
func splitKey(key string) (string, []string, error) {
	parts := strings.Split(key, separator)
	if len(parts) < 2 {
		return "", nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q needs a namespace and at least one segment", errors.ErrInvalidKey, key),
			"cache", "splitKey", "parse key")
	}
	for _, part := range parts {
		if part == "" || part == "*" || part == ">" {
			return "", nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q has an empty or wildcard segment", errors.ErrInvalidKey, key),
				"cache", "splitKey", "parse key")
		}
	}
	return parts[0], parts[1:], nil
}

// Pattern is a parsed invalidation glob with Redis KEYS semantics: '*'
// matches any run of characters including ':', '?' matches one character and
// '[...]' a character class. A key also matches when a leading run of its
// ':' segments matches, so "graph:*:42" covers "graph:similar_customers:42:5"
// and "graph:*" covers the whole namespace. The namespace segment is literal.
type Pattern struct {
	Namespace string
	raw       string
	glob      glob.Glob
}

// ParsePattern parses a glob such as "graph:*:42" or "docs:*".
func ParsePattern(pattern string) (Pattern, error) {
	fail := func(reason string) (Pattern, error) {
		return Pattern{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q %s", errors.ErrInvalidPattern, pattern, reason),
			"cache", "ParsePattern", "parse pattern")
	}

	ns, rest, ok := strings.Cut(pattern, separator)
	switch {
	case !ok || rest == "":
		return fail("needs a namespace and at least one segment")
	case ns == "" || strings.ContainsAny(ns, globMeta):
		return fail("must start with a literal namespace")
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return fail(err.Error())
	}
	return Pattern{Namespace: ns, raw: pattern, glob: g}, nil
}

// NamespacePattern matches every key of a namespace.
func NamespacePattern(ns string) Pattern {
	raw := ns + separator + "*"
	return Pattern{Namespace: ns, raw: raw, glob: glob.MustCompile(glob.QuoteMeta(ns) + separator + "*")}
}

// Match reports whether the logical key, or a ':'-bounded prefix of it,
// matches the pattern.
func (p Pattern) Match(key string) bool {
	if p.glob == nil {
		return false
	}
	ns, _, err := splitKey(key)
	if err != nil || ns != p.Namespace {
		return false
	}
	if p.glob.Match(key) {
		return true
	}
	for i := len(ns) + 1; i < len(key); i++ {
		if key[i] == ':' && p.glob.Match(key[:i]) {
			return true
		}
	}
	return false
}

// String renders the pattern in glob form.
func (p Pattern) String() string {
	return p.raw
}

// subjectFilters narrows a NATS KV listing to the literal segments leading
// the pattern. It returns nil when the pattern opens with a wildcard and the
// whole bucket has to be listed; Match decides the final result either way.
func (p Pattern) subjectFilters() []string {
	_, rest, _ := strings.Cut(p.raw, separator)
	segments := strings.Split(rest, separator)

	var literal []string
	for _, segment := range segments {
		if segment == "" || strings.ContainsAny(segment, globMeta) {
			break
		}
		literal = append(literal, encodeSegment(segment))
	}
	if len(literal) == 0 {
		return nil
	}

	prefix := strings.Join(literal, ".")
	if len(literal) == len(segments) {
		return []string{prefix, prefix + ".>"}
	}
	return []string{prefix + ".>"}
}

// subjectKey maps a logical key onto its key inside the namespace bucket.
func subjectKey(key string) (string, error) {
	_, segments, err := splitKey(key)
	if err != nil {
		return "", err
	}
	encoded := make([]string, len(segments))
	for i, segment := range segments {
		encoded[i] = encodeSegment(segment)
	}
	return strings.Join(encoded, "."), nil
}

// logicalKey is the inverse of subjectKey.
func logicalKey(ns, subject string) (string, error) {
	tokens := strings.Split(subject, ".")
	parts := make([]string, 0, len(tokens)+1)
	parts = append(parts, ns)
	for _, token := range tokens {
		segment, err := decodeSegment(token)
		if err != nil {
			return "", err
		}
		parts = append(parts, segment)
	}
	return strings.Join(parts, separator), nil
}

func encodeSegment(segment string) string {
	if isSubjectSafe(segment) {
		return segment
	}
	return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(segment))
}

func decodeSegment(token string) (string, error) {
	encoded, ok := strings.CutPrefix(token, encodedPrefix)
	if !ok {
		return token, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.WrapInvalid(err, "cache", "decodeSegment", "decode key segment")
	}
	return string(raw), nil
}

// isSubjectSafe reports whether a segment can be stored as-is in a KV key.
func isSubjectSafe(segment string) bool {
	if segment == "" || strings.HasPrefix(segment, encodedPrefix) {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
