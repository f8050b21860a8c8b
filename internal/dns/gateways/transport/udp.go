// Package transport provides the network-facing shells of the server. It
// moves raw datagrams between sockets and the server loop; all DNS logic
// stays behind the Handler interface.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/quilldns/quill/internal/dns/common/log"
)

// Handler is the server loop: it receives one raw request datagram and
// returns the raw response datagram, or nil when no response should be
// sent. The handler owns all parsing so it can synthesise FORMERR replies
// for datagrams the codec rejects.
type Handler interface {
	HandleDatagram(ctx context.Context, data []byte, client net.Addr) []byte
}

// UDPTransport serves DNS over UDP. Each inbound datagram is dispatched
// to its own goroutine, so slow recursive descents never block the read
// loop.
type UDPTransport struct {
	addr   string
	conn   *net.UDPConn
	logger log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport creates a UDP transport bound to addr when started.
func NewUDPTransport(addr string, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:   addr,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start binds the socket and begins the read loop.
func (t *UDPTransport) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("udp transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", t.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   conn.LocalAddr().String(),
	}, "DNS transport started")

	go t.listenLoop(ctx, handler)
	return nil
}

// Stop closes the socket; in-flight handlers run to completion.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stopCh)
	t.running = false

	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	t.logger.Info(map[string]any{"address": t.addr}, "DNS transport stopped")
	return err
}

// Address returns the bound address, useful when the configured port was
// 0.
func (t *UDPTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

func (t *UDPTransport) listenLoop(ctx context.Context, handler Handler) {
	buffer := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		n, clientAddr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			t.mu.Lock()
			running := t.running
			t.mu.Unlock()
			if !running {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])
		go t.handlePacket(ctx, packet, clientAddr, handler)
	}
}

func (t *UDPTransport) handlePacket(ctx context.Context, data []byte, clientAddr *net.UDPAddr, handler Handler) {
	response := handler.HandleDatagram(ctx, data, clientAddr)
	if response == nil {
		return
	}
	if _, err := t.conn.WriteToUDP(response, clientAddr); err != nil {
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
	}
}
