// Package authority implements the store for locally owned zones. It
// answers queries for names inside an owned zone and backs the
// administrative zone/record interface.
package authority

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/net/publicsuffix"

	"github.com/quilldns/quill/internal/dns/common/dnsname"
	"github.com/quilldns/quill/internal/dns/wire"
)

// Zone is one owned zone: its apex, the SOA metadata, and the records it
// contains keyed by (name, type, value) identity.
type Zone struct {
	Apex    string
	MName   string // primary name server
	RName   string // admin mailbox, in domain-name form
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32

	records map[string]wire.Record
}

// Summary is the administrative view of a zone.
type Summary struct {
	Apex    string `json:"apex"`
	MName   string `json:"primary_ns"`
	RName   string `json:"admin"`
	Serial  uint32 `json:"serial"`
	Refresh uint32 `json:"refresh"`
	Retry   uint32 `json:"retry"`
	Expire  uint32 `json:"expire"`
	Minimum uint32 `json:"minimum"`
	Records int    `json:"records"`
}

// Persister saves zones as they are mutated through the administrative
// interface. A nil Persister disables persistence.
type Persister interface {
	SaveZone(z *Zone) error
}

// Store holds every owned zone behind a read-write lock: queries are the
// common case, administrative writes the rare one.
type Store struct {
	mu      sync.RWMutex
	zones   map[string]*Zone
	persist Persister
}

// NewStore returns an empty authority store. persist may be nil.
func NewStore(persist Persister) *Store {
	return &Store{
		zones:   make(map[string]*Zone),
		persist: persist,
	}
}

// AddZone creates or replaces the zone container for apex. A zone equal to
// its own public suffix (e.g. "com") is refused; serving such a zone would
// shadow an entire registry.
func (s *Store) AddZone(apex, mname, rname string, refresh, retry, expire, minimum uint32) error {
	apex = dnsname.Canonical(apex)
	if apex == "" {
		return fmt.Errorf("zone apex must not be empty")
	}
	if ps, _ := publicsuffix.PublicSuffix(apex); ps == apex {
		return fmt.Errorf("refusing zone %q: apex is a public suffix", apex)
	}

	z := &Zone{
		Apex:    apex,
		MName:   dnsname.Canonical(mname),
		RName:   dnsname.Canonical(rname),
		Refresh: refresh,
		Retry:   retry,
		Expire:  expire,
		Minimum: minimum,
		records: make(map[string]wire.Record),
	}

	s.mu.Lock()
	s.zones[apex] = z
	s.mu.Unlock()

	return s.save(z)
}

// UpsertRecord adds or replaces a record in the named zone. Identity is
// (name, type, value): re-adding the same fact bumps the zone serial but
// does not duplicate the record. The record's owner name must fall inside
// the zone.
func (s *Store) UpsertRecord(apex string, rec wire.Record) error {
	apex = dnsname.Canonical(apex)
	rec.Name = dnsname.Canonical(rec.Name)

	s.mu.Lock()
	z, ok := s.zones[apex]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no such zone: %q", apex)
	}
	if !dnsname.HasSuffix(rec.Name, apex) {
		s.mu.Unlock()
		return fmt.Errorf("record %q is outside zone %q", rec.Name, apex)
	}
	z.records[rec.Name+"|"+rec.Key()] = rec
	z.Serial++
	s.mu.Unlock()

	return s.save(z)
}

// Query answers a question from authority data. The boolean reports
// whether any owned zone covers qname at all; when it does, the returned
// packet is the complete authoritative answer:
//
//   - answers carry the records whose name equals qname and whose type is
//     qtype, with CNAMEs substituted transparently;
//   - an empty answer is NXDOMAIN only when no record of any type in the
//     zone owns qname, NOERROR otherwise;
//   - negative answers carry the zone's SOA in the authority section.
//
// The longest-suffix zone wins when zones nest.
func (s *Store) Query(qname string, qtype wire.RecordType) (*wire.Packet, bool) {
	qname = dnsname.Canonical(qname)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Zone
	for _, z := range s.zones {
		if !dnsname.HasSuffix(qname, z.Apex) {
			continue
		}
		if best == nil || len(z.Apex) > len(best.Apex) {
			best = z
		}
	}
	if best == nil {
		return nil, false
	}

	packet := wire.NewPacket()
	packet.Header.AuthoritativeAnswer = true

	nameExists := false
	for _, rec := range best.records {
		if rec.Name != qname {
			continue
		}
		nameExists = true
		if rec.Type == qtype || rec.Type == wire.TypeCNAME {
			packet.Answers = append(packet.Answers, rec)
		}
	}

	if len(packet.Answers) == 0 {
		if !nameExists {
			packet.Header.Rcode = wire.RcodeNameError
		}
		packet.Authorities = append(packet.Authorities, best.soa())
	}
	return packet, true
}

// Covers reports whether any owned zone covers qname.
func (s *Store) Covers(qname string) bool {
	qname = dnsname.Canonical(qname)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, z := range s.zones {
		if dnsname.HasSuffix(qname, z.Apex) {
			return true
		}
	}
	return false
}

// Zones returns summaries of every owned zone, sorted by apex.
func (s *Store) Zones() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, Summary{
			Apex:    z.Apex,
			MName:   z.MName,
			RName:   z.RName,
			Serial:  z.Serial,
			Refresh: z.Refresh,
			Retry:   z.Retry,
			Expire:  z.Expire,
			Minimum: z.Minimum,
			Records: len(z.records),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Apex < out[j].Apex })
	return out
}

// Records returns the records of the named zone in a stable order: sorted
// by the internal "name|identity" key strings. That is owner-name order,
// except where one owner name is a string prefix of another: then the
// longer name sorts first.
func (s *Store) Records(apex string) ([]wire.Record, error) {
	apex = dnsname.Canonical(apex)

	s.mu.RLock()
	defer s.mu.RUnlock()

	z, ok := s.zones[apex]
	if !ok {
		return nil, fmt.Errorf("no such zone: %q", apex)
	}
	keys := make([]string, 0, len(z.records))
	for k := range z.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]wire.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, z.records[k])
	}
	return out, nil
}

// soa synthesises the zone's SOA record for negative answers, with the
// zone minimum doubling as the record TTL.
func (z *Zone) soa() wire.Record {
	return wire.Record{
		Name:    z.Apex,
		Type:    wire.TypeSOA,
		TTL:     z.Minimum,
		MName:   z.MName,
		RName:   z.RName,
		Serial:  z.Serial,
		Refresh: z.Refresh,
		Retry:   z.Retry,
		Expire:  z.Expire,
		Minimum: z.Minimum,
	}
}

// save persists a zone if a persister is configured. Called outside the
// store lock; the zone snapshot is taken under a read lock to keep the
// record map stable while encoding.
func (s *Store) save(z *Zone) error {
	if s.persist == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persist.SaveZone(z)
}

// restore installs a loaded zone without triggering persistence; used by
// the bolt store at boot.
func (s *Store) restore(z *Zone) {
	s.mu.Lock()
	s.zones[z.Apex] = z
	s.mu.Unlock()
}
