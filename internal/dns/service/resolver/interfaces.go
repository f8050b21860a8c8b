package resolver

import (
	"context"
	"net/netip"

	"github.com/quilldns/quill/internal/dns/wire"
)

// Authority answers queries for locally owned zones. The boolean reports
// whether any zone covers the name; when true the packet is the complete
// authoritative answer.
type Authority interface {
	Query(qname string, qtype wire.RecordType) (*wire.Packet, bool)
}

// Cache is the shared record cache consulted between the authority check
// and the outbound path.
type Cache interface {
	Insert(records []wire.Record)
	Lookup(qname string, qtype wire.RecordType) []wire.Record
	InsertNegative(qname string, qtype wire.RecordType, ttl uint32)
	LookupNegative(qname string, qtype wire.RecordType) bool
}

// Exchanger performs one DNS round trip against a chosen server.
type Exchanger interface {
	Exchange(ctx context.Context, server netip.AddrPort, qname string, qtype wire.RecordType, recursionDesired bool) (*wire.Packet, error)
}

// Blocklist reports whether a name is administratively blocked.
type Blocklist interface {
	Blocked(name string) bool
}
