// Package columns resolves legacy column names against a list of
// semantically-equivalent candidates. Legacy exports are inconsistent about
// case and spacing ("Related Asset", "related_asset", "RelatedAsset"), so
// everything is compared in a normalized form.
package columns

import "strings"

// Normalize trims a column name, lower-cases it and replaces spaces with
// underscores. No further fuzziness (no edit distance).
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Resolve returns the first actual column whose normalized form equals a
// normalized candidate, in candidate order. Returns "" when nothing matches;
// absence is an expected outcome, not an error.
func Resolve(actual []string, candidates ...string) string {
	normalized := make(map[string]string, len(actual))
	for _, col := range actual {
		if _, ok := normalized[Normalize(col)]; !ok {
			normalized[Normalize(col)] = col
		}
	}
	for _, candidate := range candidates {
		if col, ok := normalized[Normalize(candidate)]; ok {
			return col
		}
	}
	return ""
}

// Index maps each actual column by its normalized form. The first column
// wins when two normalize identically.
func Index(actual []string) map[string]string {
	normalized := make(map[string]string, len(actual))
	for _, col := range actual {
		if _, ok := normalized[Normalize(col)]; !ok {
			normalized[Normalize(col)] = col
		}
	}
	return normalized
}
