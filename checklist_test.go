package ice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHost(t *testing.T, addr string, port int, localPref uint16) *CandidateHost {
	t.Helper()
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: addr, Port: port, Component: component1, LocalPreference: localPref,
	})
	require.NoError(t, err)
	return c
}

func TestChecklistAddPrunesDuplicatePairs(t *testing.T) {
	var cl checklist

	local := mustHost(t, "192.168.1.1", 1, 65535)
	remote := mustHost(t, "192.168.1.2", 2, 65535)

	added := cl.add([]Candidate{local}, []Candidate{remote}, true)
	require.Len(t, added, 1)
	require.Len(t, cl.pairs, 1)

	// Re-adding the same (local, remote) combination must not duplicate it.
	added = cl.add([]Candidate{local}, []Candidate{remote}, true)
	require.Empty(t, added)
	require.Len(t, cl.pairs, 1)
}

func TestChecklistAddSkipsIncompatibleFamilies(t *testing.T) {
	var cl checklist

	local := mustHost(t, "192.168.1.1", 1, 65535)
	remoteV6, err := NewCandidateHost(&CandidateHostConfig{
		Network: "udp", Address: "fe80::1", Port: 2, Component: component1, LocalPreference: 65535,
	})
	require.NoError(t, err)

	added := cl.add([]Candidate{local}, []Candidate{remoteV6}, true)
	require.Empty(t, added)
}

func TestChecklistSortAndPruneOrdersByDescendingPriority(t *testing.T) {
	var cl checklist

	remote := mustHost(t, "192.168.1.100", 100, 65535)
	low := mustHost(t, "192.168.1.1", 1, 1)
	high := mustHost(t, "192.168.1.2", 2, 65535)

	cl.add([]Candidate{low, high}, []Candidate{remote}, true)

	require.Len(t, cl.pairs, 2)
	require.Equal(t, high, cl.pairs[0].Local)
	require.Equal(t, low, cl.pairs[1].Local)
}

func TestChecklistSrflxPrunedInFavorOfHostWithSameBase(t *testing.T) {
	var cl checklist

	remote := mustHost(t, "192.168.1.100", 100, 65535)
	base := mustHost(t, "192.168.1.1", 1, 65535)
	srflx, err := NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
		Network: "udp", Address: "1.2.3.4", Port: 1234, Component: component1, LocalPreference: 65534,
		RelAddr: "192.168.1.1", RelPort: 1, ServerAddress: "stun:example.com", Base: base,
	})
	require.NoError(t, err)

	cl.add([]Candidate{base, srflx}, []Candidate{remote}, true)

	for _, p := range cl.pairs {
		require.NotEqual(t, CandidateTypeServerReflexive, p.Local.Type(),
			"srflx pair sharing a base with a host pair to the same remote must be pruned")
	}
}

func TestChecklistBestWaitingAndBestValid(t *testing.T) {
	var cl checklist

	remote := mustHost(t, "192.168.1.100", 100, 65535)
	low := mustHost(t, "192.168.1.1", 1, 1)
	high := mustHost(t, "192.168.1.2", 2, 65535)

	cl.add([]Candidate{low, high}, []Candidate{remote}, true)

	require.Nil(t, cl.bestValid(true))
	waiting := cl.bestWaiting(true)
	require.NotNil(t, waiting)
	require.Equal(t, high, waiting.Local)

	waiting.state = CandidatePairStateSucceeded
	require.Equal(t, waiting, cl.bestValid(true))
}

func TestChecklistAllFailedAndAllTerminal(t *testing.T) {
	var cl checklist
	require.False(t, cl.allFailed())
	require.False(t, cl.allTerminal())

	remote := mustHost(t, "192.168.1.100", 100, 65535)
	local := mustHost(t, "192.168.1.1", 1, 65535)
	cl.add([]Candidate{local}, []Candidate{remote}, true)

	require.False(t, cl.allFailed())
	require.False(t, cl.allTerminal())

	cl.pairs[0].state = CandidatePairStateFailed
	require.True(t, cl.allFailed())
	require.True(t, cl.allTerminal())
}

func TestChecklistReset(t *testing.T) {
	var cl checklist
	remote := mustHost(t, "192.168.1.100", 100, 65535)
	local := mustHost(t, "192.168.1.1", 1, 65535)
	cl.add([]Candidate{local}, []Candidate{remote}, true)
	require.NotEmpty(t, cl.pairs)

	cl.reset()
	require.Empty(t, cl.pairs)
}
