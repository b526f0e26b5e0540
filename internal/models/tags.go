package models

import (
	"sort"
	"strings"
)

// Reserved tag conventions. Tags carry search terms as well as
// ownership and visibility markers.
const (
	ReservedTagPrefix = "user:"
	PublicTag         = "public"

	YearTagPrefix  = "year:"
	MonthTagPrefix = "month:"
	MetaTagPrefix  = "meta:"

	MetaMissingTag   = MetaTagPrefix + "missing"
	MetaMalformedTag = MetaTagPrefix + "malformed"
)

// OwnerTag is the tag marking username as the owner of an image.
func OwnerTag(username string) string {
	return ReservedTagPrefix + strings.ToLower(username)
}

func IsOwnerTag(tag string) bool {
	return strings.HasPrefix(NormalizeTag(tag), ReservedTagPrefix)
}

// WithoutOwnerTags drops ownership markers from tags supplied by a
// caller who may not assign ownership.
func WithoutOwnerTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !IsOwnerTag(t) {
			out = append(out, t)
		}
	}
	return out
}

// NormalizeTag lower-cases and trims a tag. Empty results are dropped by
// callers.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags returns the distinct, non-empty, normalized tags in
// sorted order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsDerivedTag reports whether tag is recomputed by the metadata backfill.
func IsDerivedTag(tag string) bool {
	return strings.HasPrefix(tag, YearTagPrefix) ||
		strings.HasPrefix(tag, MonthTagPrefix) ||
		strings.HasPrefix(tag, MetaTagPrefix)
}
