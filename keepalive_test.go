package ice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newKeepaliveTestAgent(t *testing.T) *Agent {
	t.Helper()
	a, err := NewAgent(&AgentConfig{
		KeepaliveInterval: durPtr(0), // keepalives disabled for every test using this helper
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func durPtr(d time.Duration) *time.Duration { return &d }

func TestCheckKeepaliveNoopWithoutSelectedPair(t *testing.T) {
	a := newKeepaliveTestAgent(t)
	a.checkKeepalive() // must not panic with no selected pair
}

func TestValidateSelectedPairReturnsFalseWithoutSelectedPair(t *testing.T) {
	a := newKeepaliveTestAgent(t)
	require.False(t, a.validateSelectedPair())
}

// TestValidateSelectedPairTransitionsToDisconnectedThenFailed pins spec §8
// scenario 5's timing precisely: with disconnected_timeout=20ms and
// failed_timeout=100ms (the spec's 5s/25s ratio scaled down for a fast
// test), both timeouts are measured from the same last-activity instant,
// not stacked, so Failed lands at ~100ms of silence, not
// disconnected_timeout+failed_timeout.
func TestValidateSelectedPairTransitionsToDisconnectedThenFailed(t *testing.T) {
	a, err := NewAgent(&AgentConfig{
		DisconnectedTimeout: durPtr(20 * time.Millisecond),
		FailedTimeout:       durPtr(100 * time.Millisecond),
	})
	require.NoError(t, err)
	defer a.Close()

	local := mustHost(t, "127.0.0.1", 1000, 100)
	remote := mustHost(t, "127.0.0.2", 2000, 100)
	remote.seen(false) // seed lastReceivedAt so "since" starts from now, not the zero Time
	pair := newCandidatePair(local, remote, true)
	a.setSelectedPair(pair)
	require.Equal(t, ConnectionStateConnected, a.connectionState)

	time.Sleep(40 * time.Millisecond)
	require.True(t, a.validateSelectedPair())
	require.Equal(t, ConnectionStateDisconnected, a.connectionState, "past disconnected_timeout (20ms) but short of failed_timeout (100ms)")

	time.Sleep(80 * time.Millisecond) // cumulative silence ~120ms, past failed_timeout (100ms)
	require.True(t, a.validateSelectedPair())
	require.Equal(t, ConnectionStateFailed, a.connectionState, "failed_timeout is measured from last activity, not from entering Disconnected")
}

func TestMaybeCompletePromotesConnectedToCompleted(t *testing.T) {
	a, err := NewAgent(&AgentConfig{})
	require.NoError(t, err)
	defer a.Close()

	local := mustHost(t, "127.0.0.1", 1000, 100)
	remote := mustHost(t, "127.0.0.2", 2000, 100)
	pair := a.addPair(local, remote)
	pair.state = CandidatePairStateFailed // every other pair is this one; already terminal

	a.setSelectedPair(pair)
	require.Equal(t, ConnectionStateConnected, a.connectionState)

	a.maybeComplete()
	require.Equal(t, ConnectionStateCompleted, a.connectionState)
}
