// Package timeexpr parses natural-language and structured date/interval
// expressions into concrete instants.
//
// All functions are pure: given the same input text and reference instant
// they always produce the same result, which keeps scheduling decisions
// testable. Unrecognized input yields a false ok / nil result, never a panic.
package timeexpr
