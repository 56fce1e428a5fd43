package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidatePriorityOrdering(t *testing.T) {
	host, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "192.168.1.1", Port: 19216, Component: component1, LocalPreference: 65535,
	})
	require.NoError(t, err)

	srflx, err := NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
		Network: "udp", Address: "1.2.3.4", Port: 12340, Component: component1, LocalPreference: 65535,
		RelAddr: "192.168.1.1", RelPort: 19216, ServerAddress: "stun:example.com",
	})
	require.NoError(t, err)

	prflx, err := NewCandidatePeerReflexive(&CandidatePeerReflexiveConfig{
		Network: "udp", Address: "1.2.3.5", Port: 12341, Component: component1,
		RelAddr: "192.168.1.1", RelPort: 19216, Priority: candidatePriority(CandidateTypePeerReflexive, 65535, component1),
	})
	require.NoError(t, err)

	relay, err := NewCandidateRelay(&CandidateRelayConfig{
		Network: "udp", Address: "4.3.2.1", Port: 43210, Component: component1, LocalPreference: 65535,
		RelAddr: "4.3.2.1", RelPort: 43210, ServerAddress: "turn:example.com",
	})
	require.NoError(t, err)

	// RFC 8445 §5.1.2.2 default type preference: host > prflx > srflx > relay.
	require.Greater(t, host.Priority(), prflx.Priority())
	require.Greater(t, prflx.Priority(), srflx.Priority())
	require.Greater(t, srflx.Priority(), relay.Priority())
}

func TestCandidatePriorityLocalPreferenceBreaksTies(t *testing.T) {
	first, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "192.168.1.1", Port: 1, Component: component1, LocalPreference: 65535,
	})
	require.NoError(t, err)
	second, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "192.168.1.2", Port: 2, Component: component1, LocalPreference: 65534,
	})
	require.NoError(t, err)

	require.Greater(t, first.Priority(), second.Priority())
}

func TestCandidateHostSetIPPreservesAddress(t *testing.T) {
	cand, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "abc123.local", Port: 5000, Component: component1, LocalPreference: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "abc123.local", cand.Address())

	require.NoError(t, cand.setIP(net.ParseIP("10.0.0.5")))
	require.Equal(t, "abc123.local", cand.Address(), "Address() must keep the mDNS name after setIP")

	udpAddr, ok := cand.addr().(*net.UDPAddr)
	require.True(t, ok)
	require.True(t, udpAddr.IP.Equal(net.ParseIP("10.0.0.5")))
	require.Equal(t, 5000, udpAddr.Port)
}

func TestCandidateRelayBaseFallsBackToSelf(t *testing.T) {
	relay, err := NewCandidateRelay(&CandidateRelayConfig{
		Network: "udp", Address: "4.3.2.1", Port: 43210, Component: component1,
		RelAddr: "4.3.2.1", RelPort: 43210, ServerAddress: "turn:example.com",
	})
	require.NoError(t, err)
	require.Equal(t, Candidate(relay), relay.base())
}

func TestCandidateEqual(t *testing.T) {
	a, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "1.1.1.1", Port: 1, Component: component1})
	require.NoError(t, err)
	b, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "1.1.1.1", Port: 1, Component: component1})
	require.NoError(t, err)
	c, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "1.1.1.2", Port: 1, Component: component1})
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestCandidateBaseWriteToReadFromRequireConn(t *testing.T) {
	cand, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "1.1.1.1", Port: 1, Component: component1})
	require.NoError(t, err)

	_, err = cand.writeTo(nil, &net.UDPAddr{})
	require.ErrorIs(t, err, ErrConnClosed)

	_, _, err = cand.readFrom(nil)
	require.ErrorIs(t, err, ErrConnClosed)
}
