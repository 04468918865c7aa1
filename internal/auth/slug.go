package auth

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases and strips diacritics, so "São João" matches
// "sao joao". Shared by slug generation and order search.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Slugify turns a tenant name into a URL-safe slug: folded, non
// alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	folded := Fold(name)
	var b strings.Builder
	lastHyphen := true
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// UniqueSlug appends -2, -3, ... until taken reports the slug free.
func UniqueSlug(name string, taken func(slug string) (bool, error)) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "restaurante"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := taken(slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}
