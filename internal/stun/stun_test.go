package stun

import (
	"net"
	"testing"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/require"
)

func TestAssertUsernameMatches(t *testing.T) {
	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.NewUsername("responder:requester"))
	require.NoError(t, err)
	require.NoError(t, AssertUsername(msg, "responder:requester"))
}

func TestAssertUsernameMismatch(t *testing.T) {
	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.NewUsername("responder:requester"))
	require.NoError(t, err)
	require.Error(t, AssertUsername(msg, "someone-else:requester"))
}

func TestAssertUsernameMissing(t *testing.T) {
	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	require.NoError(t, err)
	require.Error(t, AssertUsername(msg, "a:b"))
}

func TestParseAddrUDP(t *testing.T) {
	ip, port, isTCP, ok := ParseAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000})
	require.True(t, ok)
	require.False(t, isTCP)
	require.Equal(t, 5000, port)
	require.True(t, net.ParseIP("127.0.0.1").Equal(ip))
}

func TestParseAddrTCP(t *testing.T) {
	ip, port, isTCP, ok := ParseAddr(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5001})
	require.True(t, ok)
	require.True(t, isTCP)
	require.Equal(t, 5001, port)
	require.True(t, net.ParseIP("127.0.0.1").Equal(ip))
}

func TestParseAddrUnsupported(t *testing.T) {
	_, _, _, ok := ParseAddr(&net.UnixAddr{Name: "/tmp/sock"})
	require.False(t, ok)
}
