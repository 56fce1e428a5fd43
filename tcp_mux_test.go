package ice

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/test"
	"github.com/stretchr/testify/require"
)

func newTCPMuxForTest(t *testing.T) *TCPMux {
	t.Helper()
	mux := NewTCPMuxDefault(TCPMuxConfig{LoggerFactory: logging.NewDefaultLoggerFactory()})
	t.Cleanup(func() { _ = mux.Close() })
	return mux
}

func TestTCPMuxGetConnSharesListenerPerIP(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux := newTCPMuxForTest(t)
	ip := net.ParseIP("127.0.0.1")

	_, port1, err := mux.GetConn("ufrag1", ip)
	require.NoError(t, err)
	_, port2, err := mux.GetConn("ufrag2", ip)
	require.NoError(t, err)
	require.Equal(t, port1, port2, "two ufrags on the same IP must share one listener/port")
}

func TestTCPMuxAcceptRoutesByUsername(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux := newTCPMuxForTest(t)
	ip := net.ParseIP("127.0.0.1")

	conn, port, err := mux.GetConn("responder", ip)
	require.NoError(t, err)

	dialConn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer dialConn.Close()

	msg, err := newBindingRequest("responder:requester", "pwd", 100, true, 1, false)
	require.NoError(t, err)
	_, err = writeFrame(dialConn, msg.Raw)
	require.NoError(t, err)

	buf := make([]byte, receiveMTU)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, from, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, msg.Raw, buf[:n])
	require.Equal(t, dialConn.LocalAddr().String(), from.String())

	// WriteTo must now be able to reach the dialer back through the
	// accepted connection.
	_, err = conn.WriteTo([]byte("reply"), from)
	require.NoError(t, err)

	reply, err := readFrame(dialConn)
	require.NoError(t, err)
	require.Equal(t, "reply", string(reply))
}

func TestTCPMuxRejectsUnknownUfrag(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux := newTCPMuxForTest(t)
	ip := net.ParseIP("127.0.0.1")

	_, port, err := mux.GetConn("responder", ip)
	require.NoError(t, err)

	dialConn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer dialConn.Close()

	msg, err := newBindingRequest("someone-else:requester", "pwd", 100, true, 1, false)
	require.NoError(t, err)
	_, err = writeFrame(dialConn, msg.Raw)
	require.NoError(t, err)

	require.NoError(t, dialConn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	buf := make([]byte, 16)
	_, err = dialConn.Read(buf)
	require.Error(t, err, "the mux must close the connection instead of routing it")
}

func TestTCPMuxWriteToUnknownPeerErrors(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	mux := newTCPMuxForTest(t)
	conn, _, err := mux.GetConn("responder", net.ParseIP("127.0.0.1"))
	require.NoError(t, err)

	_, err = conn.WriteTo([]byte("x"), &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	require.Error(t, err)
}
