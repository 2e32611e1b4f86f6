// Package feed fetches and parses the external stock feed: a
// delimiter-separated document with a header row, reachable over
// HTTP(S). Parsing auto-detects the delimiter, tolerates UTF-8 BOMs and
// mixed line endings, and normalizes rows into a SKU to quantity
// snapshot with clamped non-negative quantities.
package feed
