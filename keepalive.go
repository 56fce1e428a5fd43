package ice

import "time"

// checkKeepalive sends a STUN Binding request (not an indication, so it
// also refreshes consent per RFC 7675) on the selected pair if nothing has
// been sent, or nothing has been received, in the last keepalive_interval
// (spec §4.7).
func (a *Agent) checkKeepalive() {
	pair := a.getSelectedPair()
	if pair == nil || a.keepaliveInterval == 0 {
		return
	}
	if time.Since(pair.Local.lastSent()) > a.keepaliveInterval ||
		time.Since(pair.Remote.lastReceived()) > a.keepaliveInterval {
		a.selector.PingCandidate(pair.Local, pair.Remote)
	}
}

// maybeComplete promotes Connected to Completed once the nomination
// sequence is exhausted: the selected pair is nominated and every other
// pair on the checklist has reached a terminal state, so no higher-priority
// candidate can still arrive (spec §4.6). This state has no analogue in the
// reference agent, which stops at Connected; it is derived directly from
// the liveness/state-progression rules of spec §4.6.
func (a *Agent) maybeComplete() {
	if a.connectionState != ConnectionStateConnected {
		return
	}
	pair := a.getSelectedPair()
	if pair == nil || !pair.Nominated() {
		return
	}
	if a.checklist.allTerminal() {
		a.updateConnectionState(ConnectionStateCompleted)
	}
}

// validateSelectedPair re-derives the connection state from how long it has
// been since the selected pair last saw traffic, implementing the
// Disconnected/Failed transitions of spec §4.6/§4.7. Returns false if there
// is no selected pair to validate.
func (a *Agent) validateSelectedPair() bool {
	pair := a.getSelectedPair()
	if pair == nil {
		return false
	}

	since := time.Since(pair.Remote.lastReceived())

	switch {
	case a.failedTimeout != 0 && since > a.failedTimeout:
		a.updateConnectionState(ConnectionStateFailed)
	case a.disconnectedTimeout != 0 && since > a.disconnectedTimeout:
		a.updateConnectionState(ConnectionStateDisconnected)
	default:
		if a.connectionState == ConnectionStateDisconnected {
			a.updateConnectionState(ConnectionStateConnected)
		}
	}
	return true
}
