package resolver

import (
	"context"
	"net"

	"github.com/quilldns/quill/internal/dns/metrics"
	"github.com/quilldns/quill/internal/dns/wire"
)

// HandleDatagram is the server loop: parse the request, resolve its first
// question, and serialise the response. Parse failures produce a FORMERR
// reply with the request's ID echoed; resolver failures have already been
// absorbed into the result's response code. The response ID always equals
// the request ID.
func (r *Resolver) HandleDatagram(ctx context.Context, data []byte, client net.Addr) []byte {
	req, err := wire.ReadPacket(wire.PacketBufferFrom(data))
	if err != nil {
		r.logger.Warn(map[string]any{
			"client": clientString(client),
			"error":  err.Error(),
			"size":   len(data),
		}, "Failed to parse DNS request")
		formerr := replyShell(rawID(data), r.mode)
		formerr.Header.Rcode = wire.RcodeFormatError
		return r.encode(formerr)
	}

	return r.encode(r.buildResponse(ctx, req))
}

// buildResponse produces the response packet for a parsed request.
func (r *Resolver) buildResponse(ctx context.Context, req *wire.Packet) *wire.Packet {
	resp := replyShell(req.Header.ID, r.mode)
	resp.Header.RecursionDesired = req.Header.RecursionDesired

	if req.Header.Opcode != 0 {
		resp.Header.Rcode = wire.RcodeNotImplemented
		return resp
	}
	if len(req.Questions) == 0 {
		resp.Header.Rcode = wire.RcodeFormatError
		return resp
	}

	q := req.Questions[0]
	resp.Questions = append(resp.Questions, q)

	if r.blocklist != nil && r.blocklist.Blocked(q.Name) {
		metrics.BlockedQueries.Inc()
		resp.Header.Rcode = wire.RcodeNameError
		return resp
	}

	result := r.Resolve(ctx, q.Name, q.Type)
	resp.Header.Rcode = result.Header.Rcode
	resp.Header.AuthoritativeAnswer = result.Header.AuthoritativeAnswer
	resp.Answers = result.Answers
	resp.Authorities = result.Authorities
	resp.Additionals = result.Additionals

	r.logger.Debug(map[string]any{
		"id":      resp.Header.ID,
		"name":    q.Name,
		"type":    q.Type.String(),
		"rcode":   resp.Header.Rcode.String(),
		"answers": len(resp.Answers),
	}, "Resolved request")
	return resp
}

// encode serialises a response, falling back to a bare SERVFAIL header
// (which always fits) if the packet overflows the 512-byte budget.
func (r *Resolver) encode(resp *wire.Packet) []byte {
	rcode := resp.Header.Rcode
	buf := wire.NewPacketBuffer()
	if err := resp.Write(buf); err != nil {
		r.logger.Error(map[string]any{
			"id":    resp.Header.ID,
			"error": err.Error(),
		}, "Failed to encode DNS response")
		fallback := replyShell(resp.Header.ID, r.mode)
		fallback.Header.Rcode = wire.RcodeServerFailure
		buf = wire.NewPacketBuffer()
		if err := fallback.Write(buf); err != nil {
			return nil
		}
		rcode = wire.RcodeServerFailure
	}
	metrics.QueriesTotal.WithLabelValues(rcode.String()).Inc()

	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// replyShell returns an empty response with the given ID and the flags
// every reply shares.
func replyShell(id uint16, mode Mode) *wire.Packet {
	pkt := wire.NewPacket()
	pkt.Header.ID = id
	pkt.Header.Response = true
	pkt.Header.RecursionAvailable = mode != ModeAuthorityOnly
	return pkt
}

// rawID extracts the request ID from an unparseable datagram when at
// least the ID field arrived; FORMERR replies echo it so the client can
// match the failure to its query.
func rawID(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return uint16(data[0])<<8 | uint16(data[1])
}

func clientString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
