package ice

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v4/packetio"
)

// udpMuxMaxBufferSize caps how much unread data a single muxed connection
// may hold before Push starts dropping packets (mirrors the teacher's
// mux.Endpoint SetLimitSize guard: a stalled reader must not grow without
// bound).
const udpMuxMaxBufferSize = 1024 * 1024

// udpMuxedConn is the net.PacketConn UDPMux.GetConn hands back for one
// ufrag (spec §9 "bounded SPSC queue per conn"). Reads are served out of a
// packetio.Buffer the same way the teacher's internal/mux.Endpoint reads
// out of its own; since a packetio.Buffer only carries the payload, the
// source net.Addr of every push is length-prefixed ahead of the payload so
// ReadFrom can still hand it back.
type udpMuxedConn struct {
	mux   *UDPMux
	ufrag string

	buffer *packetio.Buffer

	closeOnce sync.Once
	closed    chan struct{}
}

func newUDPMuxedConn(mux *UDPMux, ufrag string) *udpMuxedConn {
	c := &udpMuxedConn{
		mux:    mux,
		ufrag:  ufrag,
		buffer: packetio.NewBuffer(),
		closed: make(chan struct{}),
	}
	c.buffer.SetLimitSize(udpMuxMaxBufferSize)
	return c
}

// push enqueues an inbound datagram read by the mux's single readLoop.
func (c *udpMuxedConn) push(buf []byte, addr net.Addr) error {
	addrStr := addr.String()
	if len(addrStr) > 0xFFFF {
		return io.ErrShortBuffer
	}
	packet := make([]byte, 2+len(addrStr)+len(buf))
	binary.BigEndian.PutUint16(packet, uint16(len(addrStr)))
	copy(packet[2:], addrStr)
	copy(packet[2+len(addrStr):], buf)
	_, err := c.buffer.Write(packet)
	return err
}

func (c *udpMuxedConn) ReadFrom(p []byte) (int, net.Addr, error) {
	packet := make([]byte, receiveMTU+net.IPv6len*2+8)
	n, err := c.buffer.Read(packet)
	if err != nil {
		return 0, nil, err
	}
	if n < 2 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	addrLen := int(binary.BigEndian.Uint16(packet[:2]))
	if n < 2+addrLen {
		return 0, nil, io.ErrUnexpectedEOF
	}
	addrStr := string(packet[2 : 2+addrLen])
	payload := packet[2+addrLen : n]

	addr, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		return 0, nil, err
	}
	return copy(p, payload), addr, nil
}

// WriteTo sends through the mux's shared socket, never taking ownership of
// it (spec §9 "a muxed conn writes through the shared socket, but never for
// ownership").
func (c *udpMuxedConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}
	return c.mux.writeTo(p, addr)
}

func (c *udpMuxedConn) LocalAddr() net.Addr { return c.mux.LocalAddr() }

func (c *udpMuxedConn) SetDeadline(t time.Time) error     { return c.buffer.SetReadDeadline(t) }
func (c *udpMuxedConn) SetReadDeadline(t time.Time) error { return c.buffer.SetReadDeadline(t) }
func (c *udpMuxedConn) SetWriteDeadline(time.Time) error  { return nil }

func (c *udpMuxedConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mux.RemoveConnByUfrag(c.ufrag)
		_ = c.buffer.Close()
	})
	return nil
}

// closeInternal is called by the mux itself when tearing a conn down
// (RemoveConnByUfrag already holds/held the mux's own bookkeeping lock, so
// this must not call back into RemoveConnByUfrag).
func (c *udpMuxedConn) closeInternal() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.buffer.Close()
	})
}
