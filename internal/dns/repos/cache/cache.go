// Package cache implements the shared in-memory record cache: per-name
// buckets of TTL-stamped records with hit counters, safe for concurrent
// readers and writers, bounded by an LRU backing store.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quilldns/quill/internal/dns/common/clock"
	"github.com/quilldns/quill/internal/dns/common/dnsname"
	"github.com/quilldns/quill/internal/dns/wire"
)

// Cache maps canonical domain names to record buckets. The LRU itself is
// thread-safe and every access passes briefly through its single lock;
// each bucket carries its own mutex so work on different names does not
// share a bucket lock, and no lock is ever held across network
// I/O — callers fetch from the cache, then go to the wire.
type Cache struct {
	lru   *lru.Cache[string, *bucket]
	clock clock.Clock
}

// bucket holds everything cached under one owner name.
type bucket struct {
	mu        sync.Mutex
	entries   map[string]entry                   // record identity → entry
	negatives map[wire.RecordType]negativeEntry  // qtype → cached NXDOMAIN
	hits      uint64
	lastQuery time.Time
}

type entry struct {
	rec        wire.Record
	insertedAt time.Time
}

type negativeEntry struct {
	insertedAt time.Time
	ttl        uint32
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.insertedAt.Add(time.Duration(e.rec.TTL) * time.Second))
}

// EntryView is one row of an Enumerate snapshot, consumed by the admin
// interface.
type EntryView struct {
	Name         string
	Type         wire.RecordType
	Value        string
	TTLRemaining uint32
	Hits         uint64
}

// New returns a cache bounded at size names.
func New(size int, clk clock.Clock) (*Cache, error) {
	backing, err := lru.New[string, *bucket](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: backing, clock: clk}, nil
}

// Insert upserts each record into the bucket for its owner name. A record
// whose (type, value) identity is already present replaces the prior
// entry, refreshing its timestamp; duplicate facts never accumulate.
// Records with TTL 0 are accepted and treated as already expired.
func (c *Cache) Insert(records []wire.Record) {
	now := c.clock.Now()
	for _, rec := range records {
		b := c.getOrCreateBucket(dnsname.Canonical(rec.Name))
		b.mu.Lock()
		b.evictExpired(now)
		b.entries[rec.Key()] = entry{rec: rec, insertedAt: now}
		b.mu.Unlock()
	}
}

// Lookup returns the unexpired records of the given type cached under
// qname, or nil. A non-empty result counts as one hit for the name.
func (c *Cache) Lookup(qname string, qtype wire.RecordType) []wire.Record {
	b, ok := c.lru.Get(dnsname.Canonical(qname))
	if !ok {
		return nil
	}
	now := c.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastQuery = now

	var out []wire.Record
	for _, e := range b.entries {
		if e.expired(now) {
			continue
		}
		if e.rec.Type != qtype {
			continue
		}
		rec := e.rec
		rec.TTL = remainingTTL(e, now)
		out = append(out, rec)
	}
	if len(out) > 0 {
		b.hits++
	}
	return out
}

// InsertNegative caches an authoritative NXDOMAIN for (qname, qtype) for
// ttl seconds.
func (c *Cache) InsertNegative(qname string, qtype wire.RecordType, ttl uint32) {
	b := c.getOrCreateBucket(dnsname.Canonical(qname))
	b.mu.Lock()
	b.negatives[qtype] = negativeEntry{insertedAt: c.clock.Now(), ttl: ttl}
	b.mu.Unlock()
}

// LookupNegative reports whether an unexpired NXDOMAIN is cached for
// (qname, qtype). A hit counts toward the name's statistics.
func (c *Cache) LookupNegative(qname string, qtype wire.RecordType) bool {
	b, ok := c.lru.Get(dnsname.Canonical(qname))
	if !ok {
		return false
	}
	now := c.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	neg, ok := b.negatives[qtype]
	if !ok {
		return false
	}
	if !now.Before(neg.insertedAt.Add(time.Duration(neg.ttl) * time.Second)) {
		delete(b.negatives, qtype)
		return false
	}
	b.hits++
	b.lastQuery = now
	return true
}

// Enumerate produces a point-in-time snapshot of every unexpired record
// for the admin interface. Expired entries encountered along the way are
// evicted.
func (c *Cache) Enumerate() []EntryView {
	now := c.clock.Now()
	var out []EntryView
	for _, name := range c.lru.Keys() {
		b, ok := c.lru.Get(name)
		if !ok {
			continue
		}
		b.mu.Lock()
		b.evictExpired(now)
		for _, e := range b.entries {
			out = append(out, EntryView{
				Name:         name,
				Type:         e.rec.Type,
				Value:        e.rec.Value(),
				TTLRemaining: remainingTTL(e, now),
				Hits:         b.hits,
			})
		}
		b.mu.Unlock()
	}
	return out
}

// Len returns the number of names currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) getOrCreateBucket(name string) *bucket {
	if b, ok := c.lru.Get(name); ok {
		return b
	}
	b := &bucket{
		entries:   make(map[string]entry),
		negatives: make(map[wire.RecordType]negativeEntry),
	}
	// Two writers may race to create the same bucket; ContainsOrAdd keeps
	// the first and both callers reload the winner.
	c.lru.ContainsOrAdd(name, b)
	if cur, ok := c.lru.Get(name); ok {
		return cur
	}
	return b
}

func (b *bucket) evictExpired(now time.Time) {
	for key, e := range b.entries {
		if e.expired(now) {
			delete(b.entries, key)
		}
	}
	for qtype, neg := range b.negatives {
		if !now.Before(neg.insertedAt.Add(time.Duration(neg.ttl) * time.Second)) {
			delete(b.negatives, qtype)
		}
	}
}

func remainingTTL(e entry, now time.Time) uint32 {
	rem := e.insertedAt.Add(time.Duration(e.rec.TTL) * time.Second).Sub(now)
	if rem <= 0 {
		return 0
	}
	return uint32(rem / time.Second)
}
