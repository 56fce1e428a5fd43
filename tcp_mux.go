package ice

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"github.com/pion/transport/v4/packetio"
)

// TCPMux is the passive side of ICE-TCP host gathering (RFC 6544 §4.5,
// spec §9c "thinner TCP coverage: passive host candidates only"). One TCP
// listener is opened per local IP the first time it's needed and shared by
// every ufrag gathered on that IP, the same sharing UDPMux gives UDP host
// candidates; accepted connections are routed to a ufrag's muxed conn by
// reading the first framed STUN Binding Request's USERNAME, mirroring
// UDPMux.dispatch's two-pass (address, then USERNAME) matching.
//
// Every byte on the wire is framed per RFC 4571: a 2-byte big-endian
// length prefix ahead of each STUN/application packet, required because
// TCP carries no datagram boundaries of its own.
type TCPMux struct {
	log logging.LeveledLogger

	mu        sync.Mutex
	listeners map[string]net.Listener // keyed by local IP string
	ufragMap  map[string]*tcpMuxedConn

	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// TCPMuxConfig collects the arguments to NewTCPMuxDefault.
type TCPMuxConfig struct {
	LoggerFactory logging.LoggerFactory
}

// NewTCPMuxDefault creates an empty TCPMux; listeners are opened lazily by
// GetConn, one per distinct local IP (spec §4.1 "opportunistic: only if a
// TCPMux is configured").
func NewTCPMuxDefault(config TCPMuxConfig) *TCPMux {
	factory := config.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	return &TCPMux{
		log:       factory.NewLogger("ice"),
		listeners: make(map[string]net.Listener),
		ufragMap:  make(map[string]*tcpMuxedConn),
		closedCh:  make(chan struct{}),
	}
}

// GetConn returns the muxed PacketConn for ufrag on ip, opening (or
// reusing) a passive listener on ip, and the port it ended up bound to.
func (m *TCPMux) GetConn(ufrag string, ip net.IP) (net.PacketConn, int, error) {
	select {
	case <-m.closedCh:
		return nil, 0, ErrClosed
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ln, ok := m.listeners[ip.String()]
	if !ok {
		var err error
		if ln, err = net.Listen("tcp", net.JoinHostPort(ip.String(), "0")); err != nil {
			return nil, 0, err
		}
		m.listeners[ip.String()] = ln
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.acceptLoop(ln)
		}()
	}

	conn, ok := m.ufragMap[ufrag]
	if !ok {
		conn = newTCPMuxedConn(m, ufrag, ln.Addr())
		m.ufragMap[ufrag] = conn
	}

	port := 0
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	return conn, port, nil
}

// RemoveConnByUfrag tears down the muxed conn for ufrag, closing every
// accepted connection it owned.
func (m *TCPMux) RemoveConnByUfrag(ufrag string) {
	if ufrag == "" {
		return
	}
	m.mu.Lock()
	conn, ok := m.ufragMap[ufrag]
	if ok {
		delete(m.ufragMap, ufrag)
	}
	m.mu.Unlock()
	if ok {
		conn.closeInternal()
	}
}

// Close shuts down every listener, muxed conn, and accepted connection.
func (m *TCPMux) Close() error {
	m.closeOnce.Do(func() {
		close(m.closedCh)
		m.mu.Lock()
		for _, ln := range m.listeners {
			_ = ln.Close()
		}
		conns := make([]*tcpMuxedConn, 0, len(m.ufragMap))
		for _, c := range m.ufragMap {
			conns = append(conns, c)
		}
		m.listeners = make(map[string]net.Listener)
		m.ufragMap = make(map[string]*tcpMuxedConn)
		m.mu.Unlock()

		for _, c := range conns {
			c.closeInternal()
		}
		m.wg.Wait()
	})
	return nil
}

func (m *TCPMux) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			m.log.Debugf("tcp mux accept loop exiting on %s: %v", ln.Addr(), err)
			return
		}
		go m.handleConn(conn)
	}
}

// handleConn reads exactly one RFC 4571 frame to learn the ufrag from the
// STUN Binding Request's USERNAME (same parsing UDPMux.dispatch uses),
// then forwards every subsequent frame to that ufrag's muxed conn.
func (m *TCPMux) handleConn(conn net.Conn) {
	first, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	if !isStunBindingRequest(first) {
		_ = conn.Close()
		return
	}
	ufrag, err := localUfragFromSTUNBytes(first)
	if err != nil {
		_ = conn.Close()
		return
	}

	m.mu.Lock()
	muxed, ok := m.ufragMap[ufrag]
	m.mu.Unlock()
	if !ok {
		// No Agent has gathered this ufrag on this listener yet.
		_ = conn.Close()
		return
	}

	muxed.addConn(conn)
	if err := muxed.push(first, conn.RemoteAddr()); err != nil {
		m.log.Debugf("tcp mux: dropping first frame from %s: %v", conn.RemoteAddr(), err)
	}

	buf := make([]byte, receiveMTU)
	for {
		n, err := readFrameInto(conn, buf)
		if err != nil {
			muxed.removeConn(conn)
			return
		}
		if err := muxed.push(append([]byte(nil), buf[:n]...), conn.RemoteAddr()); err != nil {
			m.log.Debugf("tcp mux: dropping frame from %s: %v", conn.RemoteAddr(), err)
		}
	}
}

// readFrame reads one RFC 4571 length-prefixed frame from conn.
func readFrame(conn net.Conn) ([]byte, error) {
	buf := make([]byte, receiveMTU)
	n, err := readFrameInto(conn, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func readFrameInto(conn net.Conn, out []byte) (int, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return 0, err
	}
	frameLen := int(binary.BigEndian.Uint16(lenBuf[:]))
	if frameLen > len(out) {
		// Drain and drop an oversized frame rather than desyncing the stream.
		if _, err := io.CopyN(io.Discard, conn, int64(frameLen)); err != nil {
			return 0, err
		}
		return 0, io.ErrShortBuffer
	}
	if _, err := io.ReadFull(conn, out[:frameLen]); err != nil {
		return 0, err
	}
	return frameLen, nil
}

func writeFrame(conn net.Conn, p []byte) (int, error) {
	if len(p) > 0xFFFF {
		return 0, io.ErrShortBuffer
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	n, err := conn.Write(p)
	return n, err
}

// isStunBindingRequest and localUfragFromSTUNBytes duplicate the tiny
// amount of STUN header parsing UDPMux.dispatch does, rather than sharing
// code across a decoded-vs-raw-bytes split; both read only the fixed STUN
// header plus the USERNAME attribute.
func isStunBindingRequest(buf []byte) bool {
	if !stun.IsMessage(buf) {
		return false
	}
	msg := &stun.Message{Raw: buf}
	if err := msg.Decode(); err != nil {
		return false
	}
	return msg.Type.Method == stun.MethodBinding && msg.Type.Class == stun.ClassRequest
}

func localUfragFromSTUNBytes(buf []byte) (string, error) {
	msg := &stun.Message{Raw: buf}
	if err := msg.Decode(); err != nil {
		return "", err
	}
	return localUfragFromUsername(msg)
}

// tcpMuxedConn is the net.PacketConn GetConn hands back for one ufrag: a
// fan-in over every accepted TCP connection that ufrag has received a
// STUN Binding Request on, read out through a single packetio.Buffer the
// same way udpMuxedConn is (spec §9 "bounded SPSC queue per conn").
type tcpMuxedConn struct {
	mux       *TCPMux
	ufrag     string
	localAddr net.Addr

	buffer *packetio.Buffer

	mu     sync.Mutex
	byAddr map[string]net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

func newTCPMuxedConn(mux *TCPMux, ufrag string, localAddr net.Addr) *tcpMuxedConn {
	c := &tcpMuxedConn{
		mux:       mux,
		ufrag:     ufrag,
		localAddr: localAddr,
		buffer:    packetio.NewBuffer(),
		byAddr:    make(map[string]net.Conn),
		closed:    make(chan struct{}),
	}
	c.buffer.SetLimitSize(udpMuxMaxBufferSize)
	return c
}

func (c *tcpMuxedConn) addConn(conn net.Conn) {
	c.mu.Lock()
	c.byAddr[conn.RemoteAddr().String()] = conn
	c.mu.Unlock()
}

func (c *tcpMuxedConn) removeConn(conn net.Conn) {
	c.mu.Lock()
	if existing, ok := c.byAddr[conn.RemoteAddr().String()]; ok && existing == conn {
		delete(c.byAddr, conn.RemoteAddr().String())
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *tcpMuxedConn) push(buf []byte, addr net.Addr) error {
	addrStr := addr.String()
	packet := make([]byte, 2+len(addrStr)+len(buf))
	binary.BigEndian.PutUint16(packet, uint16(len(addrStr)))
	copy(packet[2:], addrStr)
	copy(packet[2+len(addrStr):], buf)
	_, err := c.buffer.Write(packet)
	return err
}

func (c *tcpMuxedConn) ReadFrom(p []byte) (int, net.Addr, error) {
	packet := make([]byte, receiveMTU+64)
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

	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, nil, err
	}
	return copy(p, payload), addr, nil
}

func (c *tcpMuxedConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}
	c.mu.Lock()
	conn, ok := c.byAddr[addr.String()]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("ice: no TCP connection accepted from %s yet", addr)
	}
	return writeFrame(conn, p)
}

func (c *tcpMuxedConn) LocalAddr() net.Addr { return c.localAddr }

func (c *tcpMuxedConn) SetDeadline(t time.Time) error     { return c.buffer.SetReadDeadline(t) }
func (c *tcpMuxedConn) SetReadDeadline(t time.Time) error { return c.buffer.SetReadDeadline(t) }
func (c *tcpMuxedConn) SetWriteDeadline(time.Time) error  { return nil }

func (c *tcpMuxedConn) Close() error {
	c.mux.RemoveConnByUfrag(c.ufrag)
	return nil
}

func (c *tcpMuxedConn) closeInternal() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		conns := make([]net.Conn, 0, len(c.byAddr))
		for _, conn := range c.byAddr {
			conns = append(conns, conn)
		}
		c.byAddr = make(map[string]net.Conn)
		c.mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
		_ = c.buffer.Close()
	})
}
