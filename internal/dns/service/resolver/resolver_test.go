package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldns/quill/internal/dns/common/clock"
	"github.com/quilldns/quill/internal/dns/common/log"
	"github.com/quilldns/quill/internal/dns/repos/authority"
	"github.com/quilldns/quill/internal/dns/repos/cache"
	"github.com/quilldns/quill/internal/dns/wire"
)

var (
	rootAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{198, 41, 0, 4}), 53)
	gtldAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{192, 5, 6, 30}), 53)
	authAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{216, 239, 32, 10}), 53)
)

type exchangeCall struct {
	server netip.AddrPort
	qname  string
	qtype  wire.RecordType
	rd     bool
}

// fakeExchanger scripts upstream behaviour per (server, qname).
type fakeExchanger struct {
	mu      sync.Mutex
	calls   []exchangeCall
	respond func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error)
}

func (f *fakeExchanger) Exchange(_ context.Context, server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, exchangeCall{server, qname, qtype, rd})
	f.mu.Unlock()
	return f.respond(server, qname, qtype, rd)
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func referral(nsOwner, nsHost string, glue netip.Addr) *wire.Packet {
	p := wire.NewPacket()
	p.Authorities = []wire.Record{{Name: nsOwner, Type: wire.TypeNS, TTL: 172800, Host: nsHost}}
	if glue.IsValid() {
		p.Additionals = []wire.Record{{Name: nsHost, Type: wire.TypeA, TTL: 172800, Addr: glue}}
	}
	return p
}

func answer(name string, addr netip.Addr) *wire.Packet {
	p := wire.NewPacket()
	p.Answers = []wire.Record{{Name: name, Type: wire.TypeA, TTL: 300, Addr: addr}}
	return p
}

func nxdomain(soaOwner string, minimum uint32) *wire.Packet {
	p := wire.NewPacket()
	p.Header.Rcode = wire.RcodeNameError
	p.Authorities = []wire.Record{{
		Name: soaOwner, Type: wire.TypeSOA, TTL: minimum,
		MName: "ns1." + soaOwner, RName: "hostmaster." + soaOwner, Minimum: minimum,
	}}
	return p
}

type testEnv struct {
	resolver  *Resolver
	exchanger *fakeExchanger
	authority *authority.Store
	cache     *cache.Cache
	clock     *clock.MockClock
}

func newTestEnv(t *testing.T, mode Mode, respond func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error)) *testEnv {
	t.Helper()
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	recordCache, err := cache.New(1024, clk)
	require.NoError(t, err)

	auth := authority.NewStore(nil)
	exchanger := &fakeExchanger{respond: respond}
	if respond == nil {
		exchanger.respond = func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
			return nil, fmt.Errorf("unexpected exchange with %s for %s", server, qname)
		}
	}

	r := New(Options{
		Mode:      mode,
		Forward:   netip.AddrPortFrom(netip.AddrFrom4([4]byte{9, 9, 9, 9}), 53),
		Authority: auth,
		Cache:     recordCache,
		Client:    exchanger,
		Logger:    log.NewNoopLogger(),
	})
	return &testEnv{resolver: r, exchanger: exchanger, authority: auth, cache: recordCache, clock: clk}
}

func addTestZone(t *testing.T, env *testEnv) {
	t.Helper()
	require.NoError(t, env.authority.AddZone("local.test", "ns1.local.test", "hostmaster.local.test", 3600, 600, 86400, 300))
	require.NoError(t, env.authority.UpsertRecord("local.test", wire.Record{
		Name: "host.local.test", Type: wire.TypeA, TTL: 60,
		Addr: netip.AddrFrom4([4]byte{10, 0, 0, 5}),
	}))
}

func TestResolve_RecursiveDescent(t *testing.T) {
	target := netip.AddrFrom4([4]byte{142, 250, 1, 100})
	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		require.False(t, rd, "descent queries must not request recursion")
		switch server {
		case rootAddr:
			return referral("com", "a.gtld-servers.net", gtldAddr.Addr()), nil
		case gtldAddr:
			return referral("google.com", "ns1.google.com", authAddr.Addr()), nil
		case authAddr:
			return answer("www.google.com", target), nil
		}
		return nil, fmt.Errorf("unexpected server %s", server)
	})

	resp := env.resolver.Resolve(context.Background(), "www.google.com", wire.TypeA)

	require.Equal(t, wire.RcodeNoError, resp.Header.Rcode)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, target, resp.Answers[0].Addr)

	// Root, then the gTLD server, then the authoritative server.
	require.Equal(t, 3, env.exchanger.callCount())
	assert.Equal(t, rootAddr, env.exchanger.calls[0].server)
	assert.Equal(t, gtldAddr, env.exchanger.calls[1].server)
	assert.Equal(t, authAddr, env.exchanger.calls[2].server)
}

func TestResolve_SecondQueryServedFromCache(t *testing.T) {
	target := netip.AddrFrom4([4]byte{142, 250, 1, 100})
	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		switch server {
		case rootAddr:
			return referral("com", "a.gtld-servers.net", gtldAddr.Addr()), nil
		case gtldAddr:
			return referral("google.com", "ns1.google.com", authAddr.Addr()), nil
		default:
			return answer("google.com", target), nil
		}
	})

	first := env.resolver.Resolve(context.Background(), "google.com", wire.TypeA)
	require.Len(t, first.Answers, 1)
	upstreamCalls := env.exchanger.callCount()

	second := env.resolver.Resolve(context.Background(), "google.com", wire.TypeA)
	require.Len(t, second.Answers, 1)
	assert.Equal(t, target, second.Answers[0].Addr)
	assert.True(t, second.Header.RecursionAvailable)
	assert.Equal(t, upstreamCalls, env.exchanger.callCount(), "cache hit still went upstream")
}

func TestResolve_WarmCacheSkipsRoot(t *testing.T) {
	target := netip.AddrFrom4([4]byte{142, 250, 1, 101})
	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		switch server {
		case rootAddr:
			return referral("com", "a.gtld-servers.net", gtldAddr.Addr()), nil
		case gtldAddr:
			return referral("google.com", "ns1.google.com", authAddr.Addr()), nil
		default:
			return answer(qname, target), nil
		}
	})

	env.resolver.Resolve(context.Background(), "www.google.com", wire.TypeA)
	require.Equal(t, 3, env.exchanger.callCount())

	// The google.com delegation is cached now; a sibling name needs only
	// the authoritative server.
	env.resolver.Resolve(context.Background(), "mail.google.com", wire.TypeA)
	require.Equal(t, 4, env.exchanger.callCount())
	assert.Equal(t, authAddr, env.exchanger.calls[3].server)
}

func TestResolve_NXDomainPropagatesAndCaches(t *testing.T) {
	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		return nxdomain("xyz", 60), nil
	})

	resp := env.resolver.Resolve(context.Background(), "www.nonexistent-tld.xyz", wire.TypeA)
	assert.Equal(t, wire.RcodeNameError, resp.Header.Rcode)
	assert.Empty(t, resp.Answers)
	require.Equal(t, 1, env.exchanger.callCount(), "descent continued past an authoritative negative")

	// The negative answer is cached.
	resp = env.resolver.Resolve(context.Background(), "www.nonexistent-tld.xyz", wire.TypeA)
	assert.Equal(t, wire.RcodeNameError, resp.Header.Rcode)
	assert.Equal(t, 1, env.exchanger.callCount())

	// And it expires with the SOA minimum.
	env.clock.Advance(61 * time.Second)
	env.resolver.Resolve(context.Background(), "www.nonexistent-tld.xyz", wire.TypeA)
	assert.Equal(t, 2, env.exchanger.callCount())
}

func TestResolve_UngluedReferral(t *testing.T) {
	nsAddr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{203, 0, 113, 5}), 53)
	target := netip.AddrFrom4([4]byte{198, 51, 100, 7})

	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		switch {
		case server == rootAddr && qname == "www.example.com":
			return referral("com", "a.gtld-servers.net", gtldAddr.Addr()), nil
		case server == gtldAddr && qname == "www.example.com":
			// Delegation without glue.
			return referral("example.com", "ns.offsite.net", netip.Addr{}), nil
		case server == rootAddr && qname == "ns.offsite.net":
			// The nested resolve for the name server's own address.
			return answer("ns.offsite.net", nsAddr.Addr()), nil
		case server == nsAddr:
			return answer("www.example.com", target), nil
		}
		return nil, fmt.Errorf("unexpected exchange: %s asked %s", server, qname)
	})

	resp := env.resolver.Resolve(context.Background(), "www.example.com", wire.TypeA)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, target, resp.Answers[0].Addr)
	assert.Equal(t, 4, env.exchanger.callCount())
}

func TestResolve_RetriesNextCandidateOnFailure(t *testing.T) {
	goodAddr := netip.AddrFrom4([4]byte{192, 5, 6, 31})
	target := netip.AddrFrom4([4]byte{198, 51, 100, 9})

	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		switch server.Addr() {
		case rootAddr.Addr():
			p := wire.NewPacket()
			p.Authorities = []wire.Record{
				{Name: "com", Type: wire.TypeNS, TTL: 172800, Host: "a.gtld-servers.net"},
				{Name: "com", Type: wire.TypeNS, TTL: 172800, Host: "b.gtld-servers.net"},
			}
			p.Additionals = []wire.Record{
				{Name: "a.gtld-servers.net", Type: wire.TypeA, TTL: 172800, Addr: gtldAddr.Addr()},
				{Name: "b.gtld-servers.net", Type: wire.TypeA, TTL: 172800, Addr: goodAddr},
			}
			return p, nil
		case gtldAddr.Addr():
			return nil, fmt.Errorf("timeout")
		case goodAddr:
			return answer(qname, target), nil
		}
		return nil, fmt.Errorf("unexpected server %s", server)
	})

	resp := env.resolver.Resolve(context.Background(), "www.example.com", wire.TypeA)
	require.Equal(t, wire.RcodeNoError, resp.Header.Rcode)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, target, resp.Answers[0].Addr)
}

func TestResolve_AllCandidatesFailing(t *testing.T) {
	env := newTestEnv(t, ModeRecursive, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		return nil, fmt.Errorf("network unreachable")
	})

	resp := env.resolver.Resolve(context.Background(), "www.example.com", wire.TypeA)
	assert.Equal(t, wire.RcodeServerFailure, resp.Header.Rcode)
}

func TestResolve_DepthBounded(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	recordCache, err := cache.New(1024, clk)
	require.NoError(t, err)

	calls := 0
	exchanger := &fakeExchanger{respond: func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		calls++
		// An endless chain of referrals, each with fresh glue.
		host := fmt.Sprintf("ns%d.example.com", calls)
		return referral("com", host, netip.AddrFrom4([4]byte{10, 0, byte(calls), 1})), nil
	}}

	r := New(Options{
		Mode:      ModeRecursive,
		MaxDepth:  4,
		Authority: authority.NewStore(nil),
		Cache:     recordCache,
		Client:    exchanger,
		Logger:    log.NewNoopLogger(),
	})

	resp := r.Resolve(context.Background(), "www.example.com", wire.TypeA)
	assert.Equal(t, wire.RcodeServerFailure, resp.Header.Rcode)
	assert.Equal(t, 4, calls)
}

func TestResolve_AuthorityPrecedence(t *testing.T) {
	// The exchanger fails the test if touched: owned zones never trigger
	// outbound queries.
	env := newTestEnv(t, ModeRecursive, nil)
	addTestZone(t, env)

	resp := env.resolver.Resolve(context.Background(), "host.local.test", wire.TypeA)
	require.Len(t, resp.Answers, 1)
	assert.True(t, resp.Header.AuthoritativeAnswer)
	assert.True(t, resp.Header.RecursionAvailable)
	assert.Equal(t, 0, env.exchanger.callCount())
}

func TestResolve_AuthorityOnlyMode(t *testing.T) {
	env := newTestEnv(t, ModeAuthorityOnly, nil)
	addTestZone(t, env)

	// Owned name answers authoritatively.
	resp := env.resolver.Resolve(context.Background(), "host.local.test", wire.TypeA)
	require.Len(t, resp.Answers, 1)
	assert.True(t, resp.Header.AuthoritativeAnswer)
	assert.False(t, resp.Header.RecursionAvailable)

	// Anything else is refused without upstream traffic.
	resp = env.resolver.Resolve(context.Background(), "example.com", wire.TypeA)
	assert.Equal(t, wire.RcodeRefused, resp.Header.Rcode)
	assert.Empty(t, resp.Answers)
	assert.Equal(t, 0, env.exchanger.callCount())
}

func TestResolve_ForwardingMode(t *testing.T) {
	upstream := netip.AddrPortFrom(netip.AddrFrom4([4]byte{9, 9, 9, 9}), 53)
	target := netip.AddrFrom4([4]byte{142, 250, 1, 102})

	env := newTestEnv(t, ModeForwarding, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		assert.Equal(t, upstream, server)
		assert.True(t, rd, "forwarded query must request recursion")
		return answer(qname, target), nil
	})

	resp := env.resolver.Resolve(context.Background(), "google.com", wire.TypeA)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, target, resp.Answers[0].Addr)
	require.Equal(t, 1, env.exchanger.callCount())

	// The forwarded answer was cached.
	env.resolver.Resolve(context.Background(), "google.com", wire.TypeA)
	assert.Equal(t, 1, env.exchanger.callCount())
}

func TestResolve_ForwardingUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, ModeForwarding, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		return nil, fmt.Errorf("upstream down")
	})

	resp := env.resolver.Resolve(context.Background(), "google.com", wire.TypeA)
	assert.Equal(t, wire.RcodeServerFailure, resp.Header.Rcode)
}

func TestResolve_ForwardingPreservesRcode(t *testing.T) {
	env := newTestEnv(t, ModeForwarding, func(server netip.AddrPort, qname string, qtype wire.RecordType, rd bool) (*wire.Packet, error) {
		return nxdomain("example.com", 60), nil
	})

	resp := env.resolver.Resolve(context.Background(), "gone.example.com", wire.TypeA)
	assert.Equal(t, wire.RcodeNameError, resp.Header.Rcode)
}

func TestResolve_UnknownTypeNotImplemented(t *testing.T) {
	env := newTestEnv(t, ModeRecursive, nil)
	resp := env.resolver.Resolve(context.Background(), "example.com", wire.RecordType(16))
	assert.Equal(t, wire.RcodeNotImplemented, resp.Header.Rcode)
	assert.Equal(t, 0, env.exchanger.callCount())
}

func TestResolve_CachedCNAMEAnswersAddressQuery(t *testing.T) {
	env := newTestEnv(t, ModeRecursive, nil)
	env.cache.Insert([]wire.Record{{
		Name: "alias.example.com", Type: wire.TypeCNAME, TTL: 300, Host: "real.example.com",
	}})

	resp := env.resolver.Resolve(context.Background(), "alias.example.com", wire.TypeA)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, wire.TypeCNAME, resp.Answers[0].Type)
	assert.Equal(t, 0, env.exchanger.callCount())
}
