package ice

import (
	"io"
	"net"
	"strings"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// UDP/TCP Mux (C3): UDPMux demultiplexes a single shared UDP socket into
// one net.PacketConn per local ufrag, the way the teacher's internal/mux
// demultiplexes one DTLS/SRTP socket by first-byte content (RFC 7983)
// except the routing key here is the ICE USERNAME, not the packet's first
// byte (spec §4.1 "udp_mux ... one socket is shared across many Agents").
//
// Inbound packets are matched in two passes, grounded on the retrieved
// libp2p-adjacent UDPMux: first by source address (once a candidate pair
// on this ufrag has exchanged at least one packet with that address),
// falling back to parsing the STUN USERNAME attribute on the first packet
// from a new address.
type UDPMux struct {
	log  logging.LeveledLogger
	conn net.PacketConn

	mu       sync.Mutex
	ufragMap map[string]*udpMuxedConn
	addrMap  map[string]*udpMuxedConn

	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// UDPMuxConfig collects the arguments to NewUDPMuxDefault, mirroring the
// teacher's mux.Config shape (one shared conn, one logger).
type UDPMuxConfig struct {
	Conn          net.PacketConn
	LoggerFactory logging.LoggerFactory
}

// NewUDPMuxDefault creates a UDPMux bound to an already-listening conn
// (spec §6 "udp_mux: an externally supplied demultiplexer").
func NewUDPMuxDefault(config UDPMuxConfig) *UDPMux {
	factory := config.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	m := &UDPMux{
		log:      factory.NewLogger("ice"),
		conn:     config.Conn,
		ufragMap: make(map[string]*udpMuxedConn),
		addrMap:  make(map[string]*udpMuxedConn),
		closedCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.readLoop()
	}()
	return m
}

// LocalAddr returns the shared socket's address.
func (m *UDPMux) LocalAddr() net.Addr { return m.conn.LocalAddr() }

// GetConn returns the muxed conn for ufrag, creating it if this is the
// first candidate gathered under that ufrag (spec §4.1 host gathering
// calls this before the first candidate can be announced).
func (m *UDPMux) GetConn(ufrag string) (net.PacketConn, error) {
	select {
	case <-m.closedCh:
		return nil, ErrClosed
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.ufragMap[ufrag]; ok {
		return c, nil
	}
	c := newUDPMuxedConn(m, ufrag)
	m.ufragMap[ufrag] = c
	return c, nil
}

// RemoveConnByUfrag tears down the muxed conn for ufrag, unbinding every
// address it had learned (called from Agent.Close/Restart, spec §4.8).
func (m *UDPMux) RemoveConnByUfrag(ufrag string) {
	if ufrag == "" {
		return
	}
	m.mu.Lock()
	c, ok := m.ufragMap[ufrag]
	if ok {
		delete(m.ufragMap, ufrag)
		for addr, cc := range m.addrMap {
			if cc == c {
				delete(m.addrMap, addr)
			}
		}
	}
	m.mu.Unlock()
	if ok {
		c.closeInternal()
	}
}

// Close shuts down the shared socket and every muxed conn still open on
// it.
func (m *UDPMux) Close() error {
	m.closeOnce.Do(func() {
		close(m.closedCh)
		m.mu.Lock()
		conns := make([]*udpMuxedConn, 0, len(m.ufragMap))
		for _, c := range m.ufragMap {
			conns = append(conns, c)
		}
		m.ufragMap = make(map[string]*udpMuxedConn)
		m.addrMap = make(map[string]*udpMuxedConn)
		m.mu.Unlock()

		for _, c := range conns {
			c.closeInternal()
		}
		_ = m.conn.Close()
		m.wg.Wait()
	})
	return nil
}

func (m *UDPMux) writeTo(buf []byte, addr net.Addr) (int, error) {
	return m.conn.WriteTo(buf, addr)
}

func (m *UDPMux) readLoop() {
	buf := make([]byte, receiveMTU)
	for {
		n, addr, err := m.conn.ReadFrom(buf)
		if err != nil {
			m.log.Debugf("udp mux read loop exiting: %v", err)
			return
		}
		m.dispatch(append([]byte(nil), buf[:n]...), addr)
	}
}

func (m *UDPMux) dispatch(buf []byte, addr net.Addr) {
	m.mu.Lock()
	conn, ok := m.addrMap[addr.String()]
	m.mu.Unlock()
	if ok {
		if err := conn.push(buf, addr); err != nil {
			m.log.Debugf("udp mux: dropping packet from %s: %v", addr, err)
		}
		return
	}

	if !stun.IsMessage(buf) {
		return
	}
	msg := &stun.Message{Raw: buf}
	if err := msg.Decode(); err != nil {
		return
	}
	if msg.Type.Method != stun.MethodBinding || msg.Type.Class != stun.ClassRequest {
		return
	}
	ufrag, err := localUfragFromUsername(msg)
	if err != nil {
		m.log.Tracef("udp mux: no routable USERNAME from %s: %v", addr, err)
		return
	}

	m.mu.Lock()
	conn, ok = m.ufragMap[ufrag]
	if ok {
		m.addrMap[addr.String()] = conn
	}
	m.mu.Unlock()
	if !ok {
		// No Agent has called GetConn(ufrag) yet; the check is dropped,
		// same as an unrecognized USERNAME on a non-muxed socket.
		return
	}
	if err := conn.push(buf, addr); err != nil {
		m.log.Debugf("udp mux: dropping packet from %s: %v", addr, err)
	}
}

// localUfragFromUsername extracts the responder's ufrag from a USERNAME
// attribute shaped "localUfrag:remoteUfrag" (RFC 8445 §7.1.2, matching how
// Agent.pingCandidate builds outbound checks and how
// internalstun.AssertUsername validates inbound ones).
func localUfragFromUsername(m *stun.Message) (string, error) {
	var username stun.Username
	if err := username.GetFrom(m); err != nil {
		return "", err
	}
	idx := strings.IndexByte(string(username), ':')
	if idx == -1 {
		return "", io.ErrUnexpectedEOF
	}
	return string(username)[:idx], nil
}
