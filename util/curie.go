package util

import "strings"

// NCBIGenePrefix is the CURIE prefix for NCBI (Entrez) gene identifiers.
const NCBIGenePrefix = "NCBIGene"

func JoinCURIE(prefix, local string) string {
	return prefix + ":" + local
}

// SplitCURIE returns the prefix and local part of a compact URI.
// A value without a colon is returned as the local part with an empty prefix.
func SplitCURIE(curie string) (prefix, local string) {
	before, after, found := strings.Cut(curie, ":")
	if !found {
		return "", curie
	}
	return before, after
}

// GeneCURIE formats an NCBI gene identifier as a CURIE, leaving values that
// already carry a prefix untouched.
func GeneCURIE(identifier string) string {
	if p, _ := SplitCURIE(identifier); p != "" {
		return identifier
	}
	return JoinCURIE(NCBIGenePrefix, identifier)
}
