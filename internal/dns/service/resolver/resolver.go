// Package resolver orchestrates query resolution across the authority
// store, the record cache, and the network, and implements the server
// loop that turns request datagrams into response datagrams.
package resolver

import (
	"context"
	"net/netip"

	"github.com/quilldns/quill/internal/dns/common/dnsname"
	"github.com/quilldns/quill/internal/dns/common/log"
	"github.com/quilldns/quill/internal/dns/metrics"
	"github.com/quilldns/quill/internal/dns/wire"
)

// Mode selects the outbound strategy, fixed at startup.
type Mode int

const (
	// ModeRecursive descends from the root servers.
	ModeRecursive Mode = iota
	// ModeForwarding sends all un-cached queries to one upstream.
	ModeForwarding
	// ModeAuthorityOnly never performs outbound queries.
	ModeAuthorityOnly
)

func (m Mode) String() string {
	switch m {
	case ModeForwarding:
		return "forwarding"
	case ModeAuthorityOnly:
		return "authority-only"
	default:
		return "recursive"
	}
}

// rootServer is a.root-servers.net; one logical root address suffices to
// enter the delegation graph.
var rootServer = netip.AddrPortFrom(netip.AddrFrom4([4]byte{198, 41, 0, 4}), 53)

// defaultMaxDepth bounds the delegation descent; a legitimate chain never
// comes close.
const defaultMaxDepth = 16

// defaultNegativeTTL applies when an NXDOMAIN carries no SOA to take the
// minimum TTL from.
const defaultNegativeTTL = 300

// Resolver resolves questions according to its mode. It is reentrant: a
// recursive descent may invoke nested Resolve calls for unglued name
// servers, all sharing the same cache.
type Resolver struct {
	mode      Mode
	forward   netip.AddrPort
	root      netip.AddrPort
	maxDepth  int
	authority Authority
	cache     Cache
	client    Exchanger
	blocklist Blocklist
	logger    log.Logger
}

// Options configures a Resolver. Authority, Cache, and Client are
// required; Forward is required in forwarding mode.
type Options struct {
	Mode      Mode
	Forward   netip.AddrPort
	Root      netip.AddrPort
	MaxDepth  int
	Authority Authority
	Cache     Cache
	Client    Exchanger
	Blocklist Blocklist
	Logger    log.Logger
}

// New returns a Resolver for the given options.
func New(opts Options) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if !opts.Root.IsValid() {
		opts.Root = rootServer
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Resolver{
		mode:      opts.Mode,
		forward:   opts.Forward,
		root:      opts.Root,
		maxDepth:  opts.MaxDepth,
		authority: opts.Authority,
		cache:     opts.Cache,
		client:    opts.Client,
		blocklist: opts.Blocklist,
		logger:    opts.Logger,
	}
}

// Mode returns the resolver's configured mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve answers a single question and returns a fully populated
// response packet. Failures never surface as errors; they are absorbed
// into the packet's response code.
func (r *Resolver) Resolve(ctx context.Context, qname string, qtype wire.RecordType) *wire.Packet {
	qname = dnsname.Canonical(qname)

	if !qtype.Known() {
		return errorPacket(wire.RcodeNotImplemented)
	}

	// Owned zones short-circuit everything else; no outbound query is
	// ever issued for a covered name.
	if pkt, ok := r.authority.Query(qname, qtype); ok {
		metrics.AuthorityAnswers.Inc()
		pkt.Header.RecursionAvailable = r.mode != ModeAuthorityOnly
		return pkt
	}

	if r.mode == ModeAuthorityOnly {
		return errorPacket(wire.RcodeRefused)
	}

	if r.cache.LookupNegative(qname, qtype) {
		metrics.CacheHits.Inc()
		return errorPacket(wire.RcodeNameError)
	}

	if answers := r.cachedAnswers(qname, qtype); len(answers) > 0 {
		metrics.CacheHits.Inc()
		pkt := wire.NewPacket()
		pkt.Header.RecursionAvailable = true
		pkt.Answers = answers
		return pkt
	}
	metrics.CacheMisses.Inc()

	if r.mode == ModeForwarding {
		return r.forwardQuery(ctx, qname, qtype)
	}
	return r.descend(ctx, qname, qtype)
}

// cachedAnswers returns the cached records for the question. Address
// queries fall back to cached CNAMEs: the alias is the answer the client
// gets, and chasing it is the client's (or a later descent's) concern.
func (r *Resolver) cachedAnswers(qname string, qtype wire.RecordType) []wire.Record {
	answers := r.cache.Lookup(qname, qtype)
	if len(answers) == 0 && (qtype == wire.TypeA || qtype == wire.TypeAAAA) {
		answers = r.cache.Lookup(qname, wire.TypeCNAME)
	}
	return answers
}

// forwardQuery sends the question to the configured upstream with
// recursion desired and caches whatever comes back.
func (r *Resolver) forwardQuery(ctx context.Context, qname string, qtype wire.RecordType) *wire.Packet {
	resp, err := r.client.Exchange(ctx, r.forward, qname, qtype, true)
	if err != nil {
		metrics.UpstreamExchanges.WithLabelValues("error").Inc()
		r.logger.Warn(map[string]any{
			"upstream": r.forward.String(),
			"name":     qname,
			"error":    err.Error(),
		}, "Forward upstream failed")
		return errorPacket(wire.RcodeServerFailure)
	}
	metrics.UpstreamExchanges.WithLabelValues("ok").Inc()

	r.cache.Insert(resp.Records())
	if resp.Header.Rcode == wire.RcodeNameError {
		r.cacheNegative(qname, qtype, resp)
	}
	return resp
}

// cacheNegative records an authoritative NXDOMAIN, bounded by the SOA
// minimum TTL when the response carries one.
func (r *Resolver) cacheNegative(qname string, qtype wire.RecordType, resp *wire.Packet) {
	ttl := uint32(defaultNegativeTTL)
	if min, ok := resp.SOAMinimum(); ok {
		ttl = min
	}
	r.cache.InsertNegative(qname, qtype, ttl)
}

// errorPacket builds a response shell carrying only a response code.
func errorPacket(rcode wire.ResponseCode) *wire.Packet {
	pkt := wire.NewPacket()
	pkt.Header.Rcode = rcode
	return pkt
}
