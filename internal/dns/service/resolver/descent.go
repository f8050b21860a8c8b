package resolver

import (
	"context"
	"math/rand/v2"
	"net/netip"

	"github.com/quilldns/quill/internal/dns/common/dnsname"
	"github.com/quilldns/quill/internal/dns/metrics"
	"github.com/quilldns/quill/internal/dns/wire"
)

// descend performs the iterative root-down resolution: query the current
// name server without recursion, follow the most specific referral it
// returns, and repeat until an answer or an authoritative negative
// arrives. Every hop's records go into the cache so later queries enter
// the delegation graph further down.
func (r *Resolver) descend(ctx context.Context, qname string, qtype wire.RecordType) *wire.Packet {
	servers := []netip.AddrPort{r.seedServer(qname)}

	for depth := 0; depth < r.maxDepth; depth++ {
		resp := r.exchangeFirst(ctx, &servers, qname, qtype)
		if resp == nil {
			// Every candidate for this hop failed.
			return errorPacket(wire.RcodeServerFailure)
		}

		r.cache.Insert(resp.Records())

		if len(resp.Answers) > 0 && resp.Header.Rcode == wire.RcodeNoError {
			return resp
		}
		if resp.Header.Rcode == wire.RcodeNameError {
			r.cacheNegative(qname, qtype, resp)
			return resp
		}

		// Referral with glue: hop straight to one of the addresses,
		// keeping the rest as fallbacks for this hop.
		if glue := resp.GlueAddrs(qname); len(glue) > 0 {
			rand.Shuffle(len(glue), func(i, j int) {
				glue[i], glue[j] = glue[j], glue[i]
			})
			servers = addrPorts(glue)
			continue
		}

		// Referral without glue: resolve one of the named servers
		// through a nested descent, then hop to it.
		hosts := resp.NSHosts(qname)
		if len(hosts) == 0 {
			// No referral at all; this response is the best we have.
			return resp
		}
		host := hosts[rand.IntN(len(hosts))]
		nested := r.Resolve(ctx, host, wire.TypeA)
		if addr, ok := nested.RandomA(rand.IntN); ok {
			servers = []netip.AddrPort{netip.AddrPortFrom(addr, 53)}
			continue
		}
		r.logger.Warn(map[string]any{
			"name": qname,
			"ns":   host,
		}, "Referred name server did not resolve")
		return resp
	}

	r.logger.Warn(map[string]any{
		"name":  qname,
		"depth": r.maxDepth,
	}, "Delegation depth exceeded")
	return errorPacket(wire.RcodeServerFailure)
}

// exchangeFirst tries the hop's candidate servers in order, consuming the
// slice, and returns the first response. Unreachable servers are logged
// and skipped; nil means the hop is exhausted.
func (r *Resolver) exchangeFirst(ctx context.Context, servers *[]netip.AddrPort, qname string, qtype wire.RecordType) *wire.Packet {
	for len(*servers) > 0 {
		srv := (*servers)[0]
		*servers = (*servers)[1:]

		resp, err := r.client.Exchange(ctx, srv, qname, qtype, false)
		if err != nil {
			metrics.UpstreamExchanges.WithLabelValues("error").Inc()
			r.logger.Warn(map[string]any{
				"server": srv.String(),
				"name":   qname,
				"error":  err.Error(),
			}, "Name server unreachable, trying next candidate")
			continue
		}
		metrics.UpstreamExchanges.WithLabelValues("ok").Inc()
		return resp
	}
	return nil
}

// seedServer picks the deepest name server already known for any suffix
// of qname, so a cache warmed with .com referrals skips the root. With a
// cold cache the descent starts at the root server.
func (r *Resolver) seedServer(qname string) netip.AddrPort {
	for _, domain := range dnsname.Suffixes(qname) {
		if domain == "" {
			break
		}
		nsRecords := r.cache.Lookup(domain, wire.TypeNS)
		if len(nsRecords) == 0 {
			continue
		}
		rand.Shuffle(len(nsRecords), func(i, j int) {
			nsRecords[i], nsRecords[j] = nsRecords[j], nsRecords[i]
		})
		for _, ns := range nsRecords {
			glue := r.cache.Lookup(ns.Host, wire.TypeA)
			if len(glue) > 0 {
				return netip.AddrPortFrom(glue[rand.IntN(len(glue))].Addr, 53)
			}
		}
	}
	return r.root
}

func addrPorts(addrs []netip.Addr) []netip.AddrPort {
	out := make([]netip.AddrPort, len(addrs))
	for i, a := range addrs {
		out[i] = netip.AddrPortFrom(a, 53)
	}
	return out
}
