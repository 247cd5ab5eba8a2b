package models

import (
	"fmt"
	"regexp"
	"strings"
)

// KeyKind identifies which identifier a lookup is keyed on.
type KeyKind string

const (
	KeyKindOwner   KeyKind = "owner"
	KeyKindAddress KeyKind = "address"
	KeyKindParcel  KeyKind = "parcel"
)

// IsValid reports whether the kind is one of the supported identifier kinds.
func (k KeyKind) IsValid() bool {
	switch k {
	case KeyKindOwner, KeyKindAddress, KeyKindParcel:
		return true
	}
	return false
}

// LookupKey is the normalized identifier used for deduplication and caching.
// It is an immutable value type; equality is defined on (Kind, Normalized),
// which makes it directly usable as a map key.
type LookupKey struct {
	Kind       KeyKind
	Normalized string
}

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	parcelSeparator = regexp.MustCompile(`[-./\s]`)
	addressSuffixes = map[string]string{
		"STREET":    "ST",
		"AVENUE":    "AVE",
		"BOULEVARD": "BLVD",
		"DRIVE":     "DR",
		"LANE":      "LN",
		"ROAD":      "RD",
		"COURT":     "CT",
		"PLACE":     "PL",
		"TRAIL":     "TRL",
		"CIRCLE":    "CIR",
		"HIGHWAY":   "HWY",
		"PARKWAY":   "PKWY",
	}
)

// NewLookupKey normalizes a raw identifier into a LookupKey. Normalization is
// idempotent: feeding the normalized form back in produces the same key.
func NewLookupKey(kind KeyKind, raw string) (LookupKey, error) {
	if !kind.IsValid() {
		return LookupKey{}, fmt.Errorf("unsupported lookup key kind: %q", kind)
	}

	var normalized string
	switch kind {
	case KeyKindParcel:
		normalized = normalizeParcelNumber(raw)
	case KeyKindAddress:
		normalized = normalizeSitusAddress(raw)
	case KeyKindOwner:
		normalized = normalizeOwnerName(raw)
	}

	if normalized == "" {
		return LookupKey{}, fmt.Errorf("lookup value %q normalizes to empty %s key", raw, kind)
	}

	return LookupKey{Kind: kind, Normalized: normalized}, nil
}

// String renders the key in kind:value form, used as the cache key.
func (k LookupKey) String() string {
	return string(k.Kind) + ":" + k.Normalized
}

// normalizeParcelNumber strips separators so that "0421-73-1180", "042173 1180"
// and "042173.1180" all collapse to the same account number.
func normalizeParcelNumber(raw string) string {
	return strings.ToUpper(parcelSeparator.ReplaceAllString(strings.TrimSpace(raw), ""))
}

// normalizeSitusAddress uppercases, collapses whitespace, drops punctuation and
// rewrites common street suffixes to their postal abbreviations.
func normalizeSitusAddress(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.NewReplacer(",", " ", ".", " ", "#", " ").Replace(cleaned)
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")

	words := strings.Split(cleaned, " ")
	for i, word := range words {
		if abbrev, ok := addressSuffixes[word]; ok {
			words[i] = abbrev
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// normalizeOwnerName uppercases and collapses whitespace. Owner records in the
// assessor data are stored surname-first, so word order is preserved as-is.
func normalizeOwnerName(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.NewReplacer(",", " ", ".", " ").Replace(cleaned)
	return whitespaceRun.ReplaceAllString(cleaned, " ")
}
