package wire

import (
	"fmt"
	"net/netip"

	"github.com/quilldns/quill/internal/dns/common/dnsname"
	"github.com/quilldns/quill/internal/dns/common/log"
)

// Packet is a complete DNS message: a header plus the four ordered
// sections. Section counts in the header are trusted when reading and
// recomputed from section lengths when writing.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// NewPacket returns an empty packet.
func NewPacket() *Packet {
	return &Packet{}
}

// ReadPacket parses a whole DNS message starting at the buffer cursor.
func ReadPacket(buf *PacketBuffer) (*Packet, error) {
	p := NewPacket()
	if err := p.Header.Read(buf); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	for i := 0; i < int(p.Header.Questions); i++ {
		var q Question
		if err := q.Read(buf); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		p.Questions = append(p.Questions, q)
	}

	var err error
	if p.Answers, err = readRecords(buf, p.Header.Answers); err != nil {
		return nil, fmt.Errorf("answer section: %w", err)
	}
	if p.Authorities, err = readRecords(buf, p.Header.Authorities); err != nil {
		return nil, fmt.Errorf("authority section: %w", err)
	}
	if p.Additionals, err = readRecords(buf, p.Header.Additionals); err != nil {
		return nil, fmt.Errorf("additional section: %w", err)
	}
	return p, nil
}

func readRecords(buf *PacketBuffer, count uint16) ([]Record, error) {
	var out []Record
	for i := 0; i < int(count); i++ {
		rec, err := ReadRecord(buf)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Write serialises the packet at the buffer cursor. Unknown records are
// dropped from their sections so the header counts always match what is
// actually emitted.
func (p *Packet) Write(buf *PacketBuffer) error {
	answers := writableRecords(p.Answers)
	authorities := writableRecords(p.Authorities)
	additionals := writableRecords(p.Additionals)

	p.Header.Questions = uint16(len(p.Questions))
	p.Header.Answers = uint16(len(answers))
	p.Header.Authorities = uint16(len(authorities))
	p.Header.Additionals = uint16(len(additionals))

	if err := p.Header.Write(buf); err != nil {
		return err
	}
	for i := range p.Questions {
		if err := p.Questions[i].Write(buf); err != nil {
			return err
		}
	}
	for _, section := range [][]Record{answers, authorities, additionals} {
		for i := range section {
			if _, err := section[i].Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func writableRecords(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if !r.Writable() {
			log.Debug(map[string]any{
				"name": r.Name,
				"type": uint16(r.Type),
			}, "Skipping unknown record on write")
			continue
		}
		out = append(out, r)
	}
	return out
}

// Records returns all records of the packet in section order, in a newly
// allocated slice holding copies of the records.
func (p *Packet) Records() []Record {
	out := make([]Record, 0, len(p.Answers)+len(p.Authorities)+len(p.Additionals))
	out = append(out, p.Answers...)
	out = append(out, p.Authorities...)
	out = append(out, p.Additionals...)
	return out
}

// RandomA returns the address of any A record in the answer section. The
// caller supplies pick to choose an index in [0, n); passing a randomised
// picker spreads load across equally valid answers.
func (p *Packet) RandomA(pick func(n int) int) (netip.Addr, bool) {
	var addrs []netip.Addr
	for _, rec := range p.Answers {
		if rec.Type == TypeA {
			addrs = append(addrs, rec.Addr)
		}
	}
	if len(addrs) == 0 {
		return netip.Addr{}, false
	}
	return addrs[pick(len(addrs))], true
}

// NSHosts returns the target hosts of authority-section NS records whose
// owner is a suffix of qname — the referral set for the next delegation
// hop.
func (p *Packet) NSHosts(qname string) []string {
	var hosts []string
	for _, rec := range p.Authorities {
		if rec.Type != TypeNS {
			continue
		}
		if !dnsname.HasSuffix(qname, rec.Name) {
			continue
		}
		hosts = append(hosts, rec.Host)
	}
	return hosts
}

// GlueAddrs returns the IPv4 addresses from the additional section that
// resolve NS targets returned by NSHosts — the glue that lets a resolver
// proceed without a separate lookup.
func (p *Packet) GlueAddrs(qname string) []netip.Addr {
	hosts := make(map[string]struct{})
	for _, h := range p.NSHosts(qname) {
		hosts[dnsname.Canonical(h)] = struct{}{}
	}
	var addrs []netip.Addr
	for _, rec := range p.Additionals {
		if rec.Type != TypeA {
			continue
		}
		if _, ok := hosts[dnsname.Canonical(rec.Name)]; ok {
			addrs = append(addrs, rec.Addr)
		}
	}
	return addrs
}

// SOAMinimum returns the minimum TTL of the first SOA record in the
// authority section, used to bound negative caching.
func (p *Packet) SOAMinimum() (uint32, bool) {
	for _, rec := range p.Authorities {
		if rec.Type == TypeSOA {
			return rec.Minimum, true
		}
	}
	return 0, false
}
