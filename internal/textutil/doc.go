// Package textutil provides the fuzzy name matching and text normalization
// shared by the tag resolver, kennel creation warnings, and attendance import.
//
// The primary use cases are:
//   - Scoring two names for similarity on a 0..1 scale (Score)
//   - Ranking candidate names against a query (TopMatches)
//   - Folding names into comparison keys and URL slugs
//
// Scores are normalized Levenshtein similarity over case-folded,
// diacritic-stripped runes. Identical names (ignoring case and runs of
// whitespace) always score 1.0 and blank input always scores 0.
package textutil
