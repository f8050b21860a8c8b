// Package dnsname holds domain-name string helpers shared by the codec,
// cache, authority store, and resolver.
package dnsname

import "strings"

// Canonical returns a DNS name in canonical form: lowercased, trimmed of
// surrounding whitespace, without a trailing dot. The canonical form is
// what every map in quill is keyed by.
func Canonical(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// Equal reports whether two names are the same after canonicalisation.
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// HasSuffix reports whether name falls within the domain rooted at suffix,
// respecting label boundaries: "www.example.com" has suffix "example.com"
// but "badexample.com" does not. Every name has the root ("") as a suffix.
func HasSuffix(name, suffix string) bool {
	name = Canonical(name)
	suffix = Canonical(suffix)
	if suffix == "" {
		return true
	}
	if name == suffix {
		return true
	}
	return strings.HasSuffix(name, "."+suffix)
}

// Suffixes returns the chain of parent domains for name, starting with the
// name itself and ending with the root (empty string). For
// "www.example.com" it yields ["www.example.com", "example.com", "com", ""].
func Suffixes(name string) []string {
	name = Canonical(name)
	if name == "" {
		return []string{""}
	}
	labels := strings.Split(name, ".")
	out := make([]string, 0, len(labels)+1)
	for i := range labels {
		out = append(out, strings.Join(labels[i:], "."))
	}
	out = append(out, "")
	return out
}
