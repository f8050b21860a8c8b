package client

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilldns/quill/internal/dns/common/log"
	"github.com/quilldns/quill/internal/dns/wire"
)

// fakeServer answers each UDP query using respond, which receives the
// parsed query and returns the reply packet (or nil to stay silent).
func fakeServer(t *testing.T, respond func(q *wire.Packet) *wire.Packet) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			query, err := wire.ReadPacket(wire.PacketBufferFrom(buf[:n]))
			if err != nil {
				continue
			}
			reply := respond(query)
			if reply == nil {
				continue
			}
			out := wire.NewPacketBuffer()
			if err := reply.Write(out); err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(out.Bytes(), addr)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func TestClient_Exchange(t *testing.T) {
	server := fakeServer(t, func(q *wire.Packet) *wire.Packet {
		reply := wire.NewPacket()
		reply.Header.ID = q.Header.ID
		reply.Header.Response = true
		reply.Questions = q.Questions
		reply.Answers = []wire.Record{{
			Name: q.Questions[0].Name, Type: wire.TypeA, TTL: 300,
			Addr: netip.AddrFrom4([4]byte{192, 0, 2, 1}),
		}}
		return reply
	})

	c := New(Options{Logger: log.NewNoopLogger()})
	resp, err := c.Exchange(context.Background(), server, "example.com", wire.TypeA, true)
	require.NoError(t, err)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "example.com", resp.Answers[0].Name)
	assert.Equal(t, netip.AddrFrom4([4]byte{192, 0, 2, 1}), resp.Answers[0].Addr)
}

func TestClient_RecursionDesiredFlag(t *testing.T) {
	var sawRD bool
	server := fakeServer(t, func(q *wire.Packet) *wire.Packet {
		sawRD = q.Header.RecursionDesired
		reply := wire.NewPacket()
		reply.Header.ID = q.Header.ID
		reply.Header.Response = true
		return reply
	})

	c := New(Options{Logger: log.NewNoopLogger()})
	_, err := c.Exchange(context.Background(), server, "example.com", wire.TypeA, false)
	require.NoError(t, err)
	assert.False(t, sawRD, "iterative query carried RD=1")

	_, err = c.Exchange(context.Background(), server, "example.com", wire.TypeA, true)
	require.NoError(t, err)
	assert.True(t, sawRD, "stub query missing RD")
}

func TestClient_Timeout(t *testing.T) {
	server := fakeServer(t, func(q *wire.Packet) *wire.Packet {
		return nil // never answer
	})

	c := New(Options{Timeout: 100 * time.Millisecond, Logger: log.NewNoopLogger()})
	start := time.Now()
	_, err := c.Exchange(context.Background(), server, "example.com", wire.TypeA, false)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_RejectsMismatchedID(t *testing.T) {
	server := fakeServer(t, func(q *wire.Packet) *wire.Packet {
		reply := wire.NewPacket()
		reply.Header.ID = q.Header.ID + 1
		reply.Header.Response = true
		return reply
	})

	c := New(Options{Timeout: 500 * time.Millisecond, Logger: log.NewNoopLogger()})
	_, err := c.Exchange(context.Background(), server, "example.com", wire.TypeA, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id mismatch")
}

func TestClient_ContextCancellation(t *testing.T) {
	server := fakeServer(t, func(q *wire.Packet) *wire.Packet {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(Options{Logger: log.NewNoopLogger()})
	_, err := c.Exchange(ctx, server, "example.com", wire.TypeA, false)
	require.Error(t, err)
}
