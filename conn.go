package ice

import (
	"net"
	"time"

	internalstun "github.com/webrtcproto/ice/internal/stun"
)

// connMaxBufferSize caps how much unread application data the façade holds;
// once it is full, the buffer's Write returns an error and
// deliverApplicationData logs it and drops the payload (mirrors
// udpMuxedConn's use of the same packetio.Buffer pattern).
const connMaxBufferSize = 1024 * 1024

// deliverApplicationData pushes a non-STUN payload received on the selected
// pair's remote candidate into the façade's read buffer (spec §3 "shared
// reference to the Agent's read/write façade", §8 scenario 1: a payload
// written on one side is received byte-identical on the other).
func (a *Agent) deliverApplicationData(buf []byte, local Candidate, remote net.Addr) {
	pair := a.getSelectedPair()
	if pair == nil || !pair.Local.Equal(local) {
		return
	}
	ip, port, _, ok := internalstun.ParseAddr(remote)
	if !ok {
		return
	}
	if pair.Remote.Address() != ip.String() || pair.Remote.Port() != port {
		return
	}
	if _, err := a.dataBuffer.Write(buf); err != nil {
		a.log.Warnf("Failed to buffer application data: %v", err)
	}
}

// Read blocks until application data arrives on the selected pair or the
// agent is closed, returning a terminal error forever after Close (spec §3
// Ownership: "when the Agent closes, that façade fails subsequent
// operations with a terminal error").
func (a *Agent) Read(p []byte) (int, error) {
	n, err := a.dataBuffer.Read(p)
	if err != nil {
		if closeErr := a.ok(); closeErr != nil {
			return n, closeErr
		}
	}
	return n, err
}

// Write sends p to the remote candidate of the currently selected pair.
// The pair is re-read on every call so a reselection mid-flight is atomic:
// a given Write call uses either the old or the new pair, never a torn mix
// of the two (spec §4.6 "rebinding the selected pair on reselection is
// atomic").
func (a *Agent) Write(p []byte) (int, error) {
	if err := a.ok(); err != nil {
		return 0, err
	}
	pair := a.getSelectedPair()
	if pair == nil {
		return 0, ErrNoCandidatePairs
	}
	return pair.Local.writeTo(p, pair.Remote.addr())
}

// Conn returns a net.Conn-shaped view of the agent's selected pair. It is
// safe to call before any pair has been selected; Read/Write block or fail
// the same way the Agent's own methods do.
func (a *Agent) Conn() net.Conn { return agentConn{a} }

// agentConn adapts Agent's Read/Write/Close to net.Conn so upper layers can
// hold a single reference without reaching into the rest of this package's
// API.
type agentConn struct{ a *Agent }

func (c agentConn) Read(p []byte) (int, error)  { return c.a.Read(p) }
func (c agentConn) Write(p []byte) (int, error) { return c.a.Write(p) }
func (c agentConn) Close() error                { return c.a.Close() }

func (c agentConn) LocalAddr() net.Addr {
	if pair := c.a.getSelectedPair(); pair != nil {
		return pair.Local.addr()
	}
	return nil
}

func (c agentConn) RemoteAddr() net.Addr {
	if pair := c.a.getSelectedPair(); pair != nil {
		return pair.Remote.addr()
	}
	return nil
}

// Deadlines are not supported; the façade's liveness semantics are driven
// entirely by the keepalive/failure detector (C7), not per-call timeouts.
func (c agentConn) SetDeadline(time.Time) error      { return nil }
func (c agentConn) SetReadDeadline(time.Time) error  { return nil }
func (c agentConn) SetWriteDeadline(time.Time) error { return nil }
