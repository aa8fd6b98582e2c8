// Package query simplifies free-text product searches and builds the fallback
// chain used when a search comes back empty.
//
// Invariants:
// - A simplified query is a subset of the input tokens, in input order, with at
//   most Rules.MaxTokens tokens and Rules.MaxLength characters.
// - Exactly one broadened retry follows an empty simplified search.
// - At most MaxRefinements actions are produced per empty-results event.
//
// Usage:
//
//	rules := query.DefaultRules()
//	s := rules.Simplify("running shoes in size 42 brown") // "running shoes"
//	if broad, ok := s.Broaden(); ok { ... }
//	actions := query.Refinements(s, []string{s.Query, broad})
package query
