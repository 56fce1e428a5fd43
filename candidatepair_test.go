package ice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairPriorityControllingVsControlled(t *testing.T) {
	local, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "192.168.1.1", Port: 19216, Component: component1, LocalPreference: 65535,
	})
	require.NoError(t, err)
	remote, err := NewCandidateRelay(&CandidateRelayConfig{
		Network: "udp", Address: "1.2.3.4", Port: 12340, Component: component1, LocalPreference: 1,
		RelAddr: "4.3.2.1", RelPort: 43210, ServerAddress: "turn:example.com",
	})
	require.NoError(t, err)

	pair := newCandidatePair(local, remote, true)

	controlling := pair.Priority(true)
	controlled := pair.Priority(false)
	require.NotZero(t, controlling)
	require.NotZero(t, controlled)
	require.NotEqual(t, controlling, controlled, "swapping roles must change which side is G vs D")
}

func TestPairPriorityFormula(t *testing.T) {
	local, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "192.168.1.1", Port: 1, Component: component1, LocalPreference: 65535,
	})
	require.NoError(t, err)
	remote, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "192.168.1.2", Port: 2, Component: component1, LocalPreference: 65534,
	})
	require.NoError(t, err)

	g, d := uint64(local.Priority()), uint64(remote.Priority())
	min, max := g, d
	if min > max {
		min, max = max, min
	}
	want := min<<32 + max*2
	if g > d {
		want++
	}
	require.Equal(t, want, pairPriority(local, remote, true))
}

func TestPairEqualEndpoints(t *testing.T) {
	local, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "1.1.1.1", Port: 1, Component: component1})
	require.NoError(t, err)
	remote, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "2.2.2.2", Port: 2, Component: component1})
	require.NoError(t, err)
	other, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "3.3.3.3", Port: 3, Component: component1})
	require.NoError(t, err)

	pair := newCandidatePair(local, remote, true)
	require.True(t, pair.equalEndpoints(local, remote))
	require.False(t, pair.equalEndpoints(local, other))
}

func TestPairStateAndNominatedAccessors(t *testing.T) {
	local, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "1.1.1.1", Port: 1, Component: component1})
	require.NoError(t, err)
	remote, err := NewCandidateHost(&CandidateHostConfig{Network: "udp", Address: "2.2.2.2", Port: 2, Component: component1})
	require.NoError(t, err)

	pair := newCandidatePair(local, remote, true)
	require.Equal(t, CandidatePairStateWaiting, pair.State())
	require.False(t, pair.Nominated())

	pair.state = CandidatePairStateSucceeded
	pair.nominated = true
	require.Equal(t, CandidatePairStateSucceeded, pair.State())
	require.True(t, pair.Nominated())
}
