package util

import "strings"

// NormalizeSymbol trims surrounding whitespace and upper-cases a gene symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols normalizes every symbol, preserving order and duplicates.
// Blank entries are dropped.
func NormalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if n := NormalizeSymbol(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
