// Package pathnorm canonicalizes archival paths against a declared base and
// answers containment questions without prefix-string false matches.
//
// Census snapshots, hash snapshots and graph labels all spell the same file
// differently (absolute, base-relative, with or without trailing slashes, NFD
// or NFC). Every comparison in this module goes through Normalize first.
package pathnorm

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const sep = "/"

var (
	// ErrEmptyBase is returned when no base path is declared.
	ErrEmptyBase = errors.New("base path is empty")

	// ErrOutsideBase is returned when a relative path climbs above its base.
	ErrOutsideBase = errors.New("path escapes base")
)

// Normalize returns the canonical absolute form of p under base.
//
// If p already lies under base (on a separator boundary) it is only cleaned;
// otherwise p is interpreted relative to base, whether or not it carries a
// leading slash. The result is NFC-normalized, cleaned and has no trailing
// separator. Normalize(Normalize(p, b), b) == Normalize(p, b).
func Normalize(p, base string) (string, error) {
	b, err := cleanBase(base)
	if err != nil {
		return "", err
	}
	p = norm.NFC.String(filepath.ToSlash(p))

	joined := path.Clean(b + sep + strings.TrimLeft(p, sep))
	if IsTrueSubpath(strings.TrimRight(p, sep), b) {
		joined = path.Clean(p)
	}
	if !IsTrueSubpath(joined, b) {
		return "", ErrOutsideBase
	}
	return joined, nil
}

// MustNormalize is Normalize for inputs already known to be valid.
// It panics on error and is meant for tests and constant tables.
func MustNormalize(p, base string) string {
	n, err := Normalize(p, base)
	if err != nil {
		panic(err)
	}
	return n
}

// Base returns the canonical form of a base path.
func Base(base string) (string, error) {
	return cleanBase(base)
}

func cleanBase(base string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", ErrEmptyBase
	}
	b := path.Clean(norm.NFC.String(filepath.ToSlash(base)))
	if !strings.HasPrefix(b, sep) {
		b = sep + b
	}
	return b, nil
}

// IsTrueSubpath reports whether candidate equals ancestor or lies beneath it.
//
// "/data/foo/x" is a true subpath of "/data/foo"; "/data/foo2" is not, even
// though it shares the string prefix.
func IsTrueSubpath(candidate, ancestor string) bool {
	if candidate == ancestor {
		return true
	}
	if !strings.HasPrefix(candidate, ancestor) {
		return false
	}
	rest := candidate[len(ancestor):]
	if rest == "" || strings.HasPrefix(rest, sep) {
		return true
	}
	// ancestor "/" already ends in the separator.
	return strings.HasSuffix(ancestor, sep)
}

// IsPrefixCollision reports whether candidate shares ancestor as a string
// prefix without being contained in it ("/data/foo2" vs "/data/foo").
func IsPrefixCollision(candidate, ancestor string) bool {
	return strings.HasPrefix(candidate, ancestor) && !IsTrueSubpath(candidate, ancestor)
}

// Relative returns p relative to base with a leading slash, "/" for the base
// itself. Both arguments must already be normalized.
func Relative(p, base string) string {
	if p == base {
		return sep
	}
	if base == sep {
		return p
	}
	if IsTrueSubpath(p, base) {
		return p[len(base):]
	}
	return p
}

// Parent returns the parent of a normalized path, or "" for the root.
func Parent(p string) string {
	if p == sep || p == "" {
		return ""
	}
	return path.Dir(p)
}
