// Package keys builds structured cache keys and compiles invalidation patterns.
package keys

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	tiercache "github.com/eugener/tiercache/internal"
)

// Separator joins key segments.
const Separator = ":"

// scopeSeparator joins a namespace and a key in the shared durable tier.
const scopeSeparator = "/"

// maxPatternLength bounds pattern size before compilation.
const maxPatternLength = 512

// Generate composes an "entityType:id" key.
func Generate(entityType, id string) string {
	return entityType + Separator + id
}

// Parse splits a key at its first separator. id is empty when the key has
// no separator.
func Parse(key string) (entityType, id string) {
	entityType, id, _ = strings.Cut(key, Separator)
	return entityType, id
}

// Scoped returns the durable-tier key for key in namespace, so namespaces
// sharing one store never collide.
func Scoped(namespace, key string) string {
	return namespace + scopeSeparator + key
}

// Prefix returns the durable-tier prefix covering every key in namespace.
func Prefix(namespace string) string {
	return namespace + scopeSeparator
}

// Unscope strips the namespace prefix from a durable-tier key. ok is false
// when scoped does not belong to namespace.
func Unscope(namespace, scoped string) (key string, ok bool) {
	return strings.CutPrefix(scoped, Prefix(namespace))
}

// Matcher reports whether a full key matches a compiled pattern.
type Matcher interface {
	Match(key string) bool
}

// Compile turns a glob pattern into a matcher anchored to the whole key.
// "*" matches any run of characters, including the separator.
func Compile(pattern string) (Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern: %w", tiercache.ErrValidation)
	}
	if len(pattern) > maxPatternLength {
		return nil, fmt.Errorf("pattern longer than %d bytes: %w", maxPatternLength, tiercache.ErrValidation)
	}
	for _, c := range pattern {
		if c < 32 {
			return nil, fmt.Errorf("pattern contains control characters: %w", tiercache.ErrValidation)
		}
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %v: %w", pattern, err, tiercache.ErrValidation)
	}
	return g, nil
}

// Literal reports whether pattern has no glob metacharacters.
func Literal(pattern string) bool {
	return !strings.ContainsAny(pattern, `*?[]{}\`)
}
