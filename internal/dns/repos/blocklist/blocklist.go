// Package blocklist answers "is this name blocked" ahead of resolution.
// A bloom filter screens the common case (not blocked) without touching
// the exact set; names the filter admits are confirmed against a map so
// false positives never block real traffic.
package blocklist

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/quilldns/quill/internal/dns/common/dnsname"
)

const falsePositiveRate = 0.001

// Blocklist is immutable after construction and therefore safe for
// concurrent use without locking.
type Blocklist struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// New builds a blocklist from the given names. Names are canonicalised;
// duplicates collapse.
func New(names []string) *Blocklist {
	exact := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = dnsname.Canonical(n)
		if n == "" {
			continue
		}
		exact[n] = struct{}{}
	}

	size := uint(len(exact))
	if size == 0 {
		size = 1
	}
	filter := bloom.NewWithEstimates(size, falsePositiveRate)
	for n := range exact {
		filter.AddString(n)
	}
	return &Blocklist{filter: filter, exact: exact}
}

// Blocked reports whether the name or any parent domain is on the list,
// so blocking "ads.example.com" also blocks "tracker.ads.example.com".
// A nil blocklist blocks nothing.
func (b *Blocklist) Blocked(name string) bool {
	if b == nil {
		return false
	}
	for _, candidate := range dnsname.Suffixes(name) {
		if candidate == "" {
			return false
		}
		if !b.filter.TestString(candidate) {
			continue
		}
		if _, ok := b.exact[candidate]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of distinct blocked names.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.exact)
}
