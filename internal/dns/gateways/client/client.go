// Package client implements the outbound side of the resolver: sending a
// single DNS query over UDP to a chosen server and reading back the
// response. Sockets are per-call (ephemeral port); response IDs are
// matched to the outstanding request.
package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"github.com/quilldns/quill/internal/dns/common/log"
	"github.com/quilldns/quill/internal/dns/wire"
)

const defaultTimeout = 5 * time.Second

// DialFunc creates the network connection for one exchange; injectable
// for tests.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Client performs one-shot DNS exchanges.
type Client struct {
	timeout time.Duration
	dial    DialFunc
	logger  log.Logger
}

// Options configures a Client. Zero values select the defaults: a 5s
// timeout and the standard dialer.
type Options struct {
	Timeout time.Duration
	Dial    DialFunc
	Logger  log.Logger
}

// New returns a Client ready for use.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Client{timeout: opts.Timeout, dial: opts.Dial, logger: opts.Logger}
}

// Exchange sends a single question to server and returns the parsed
// response. recursionDesired selects between stub queries (true, used in
// forwarding mode) and iterative queries (false, used during descent).
// The context deadline bounds the whole round trip; without one the
// client's default timeout applies.
func (c *Client) Exchange(ctx context.Context, server netip.AddrPort, qname string, qtype wire.RecordType, recursionDesired bool) (*wire.Packet, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	query := wire.NewPacket()
	query.Header.ID = uint16(rand.Uint32())
	query.Header.RecursionDesired = recursionDesired
	query.Questions = append(query.Questions, wire.Question{
		Name:  qname,
		Type:  qtype,
		Class: wire.ClassIN,
	})

	out := wire.NewPacketBuffer()
	if err := query.Write(out); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	conn, err := c.dial(ctx, "udp", server.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(out.Bytes()); err != nil {
		return nil, fmt.Errorf("send to %s: %w", server, err)
	}

	reply := make([]byte, wire.PacketSize)
	n, err := conn.Read(reply)
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", server, err)
	}

	resp, err := wire.ReadPacket(wire.PacketBufferFrom(reply[:n]))
	if err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", server, err)
	}
	if resp.Header.ID != query.Header.ID {
		return nil, fmt.Errorf("reply from %s: id mismatch: sent %d, got %d",
			server, query.Header.ID, resp.Header.ID)
	}

	c.logger.Debug(map[string]any{
		"server":  server.String(),
		"name":    qname,
		"type":    qtype.String(),
		"rcode":   resp.Header.Rcode.String(),
		"answers": len(resp.Answers),
	}, "Upstream exchange complete")

	return resp, nil
}
