package ice

import (
	"net"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/test"
	"github.com/stretchr/testify/require"
)

func newUDPMuxForTest(t *testing.T) (*UDPMux, net.Addr) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	mux := NewUDPMuxDefault(UDPMuxConfig{Conn: conn, LoggerFactory: logging.NewDefaultLoggerFactory()})
	t.Cleanup(func() { _ = mux.Close() })
	return mux, conn.LocalAddr()
}

func TestUDPMuxGetConnReturnsSameConnForSameUfrag(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux, _ := newUDPMuxForTest(t)

	a, err := mux.GetConn("ufrag1")
	require.NoError(t, err)
	b, err := mux.GetConn("ufrag1")
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := mux.GetConn("ufrag2")
	require.NoError(t, err)
	require.NotSame(t, a, c)
}

func TestUDPMuxRoutesByUsernameThenByAddress(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux, muxAddr := newUDPMuxForTest(t)

	conn, err := mux.GetConn("responder")
	require.NoError(t, err)

	peer, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	msg, err := newBindingRequest("responder:requester", "pwd", 100, true, 1, false)
	require.NoError(t, err)

	_, err = peer.WriteTo(msg.Raw, muxAddr)
	require.NoError(t, err)

	buf := make([]byte, receiveMTU)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, from, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, msg.Raw, buf[:n])
	require.Equal(t, peer.LocalAddr().String(), from.String())

	// A second packet from the same address must now be routed purely by
	// address, without needing to be a parseable STUN message.
	_, err = peer.WriteTo([]byte("not stun"), muxAddr)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, from, err = conn.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "not stun", string(buf[:n]))
	require.Equal(t, peer.LocalAddr().String(), from.String())
}

func TestUDPMuxDropsUnroutablePacket(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux, muxAddr := newUDPMuxForTest(t)

	conn, err := mux.GetConn("responder")
	require.NoError(t, err)

	peer, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	// USERNAME names a ufrag nobody has called GetConn for yet.
	msg, err := newBindingRequest("someone-else:requester", "pwd", 100, true, 1, false)
	require.NoError(t, err)
	_, err = peer.WriteTo(msg.Raw, muxAddr)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, receiveMTU)
	_, _, err = conn.ReadFrom(buf)
	require.Error(t, err, "packet addressed to a different ufrag must not be delivered here")
}

func TestUDPMuxRemoveConnByUfrag(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux, _ := newUDPMuxForTest(t)

	conn, err := mux.GetConn("ufrag1")
	require.NoError(t, err)

	mux.RemoveConnByUfrag("ufrag1")

	buf := make([]byte, receiveMTU)
	_, _, err = conn.ReadFrom(buf)
	require.Error(t, err)

	again, err := mux.GetConn("ufrag1")
	require.NoError(t, err)
	require.NotSame(t, conn, again, "removing a ufrag must allow it to be re-acquired as a fresh conn")
}

func TestUDPMuxCloseUnblocksConns(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux, _ := newUDPMuxForTest(t)
	conn, err := mux.GetConn("ufrag1")
	require.NoError(t, err)

	require.NoError(t, mux.Close())

	_, err = conn.WriteTo([]byte("x"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	require.Error(t, err)

	_, err = mux.GetConn("ufrag2")
	require.ErrorIs(t, err, ErrClosed)
}
