// Package stun holds small STUN helpers specific to how the ICE agent uses
// github.com/pion/stun/v3: USERNAME assertion and net.Addr<->STUN family
// plumbing that don't belong in the public API. Grounded on the
// stunx.AssertUsername helper referenced by the vendored pion/ice v2
// agent.go (internal/stun package imported as "stunx").
package stun

import (
	"fmt"
	"net"

	"github.com/pion/stun/v3"
)

// AssertUsername checks that m carries a USERNAME attribute exactly equal
// to expected, returning an error otherwise. Used on the inbound-request
// path (spec §4.4): "verify USERNAME matches local_ufrag:<peer>".
func AssertUsername(m *stun.Message, expected string) error {
	var username stun.Username
	if err := username.GetFrom(m); err != nil {
		return fmt.Errorf("stun: no USERNAME attribute: %w", err)
	}
	if string(username) != expected {
		return fmt.Errorf("stun: USERNAME %q != expected %q", username, expected)
	}
	return nil
}

// ParseAddr splits a net.Addr into (ip, port, isTCP). Supports *net.UDPAddr
// and *net.TCPAddr, the only two kinds the agent's sockets hand back.
func ParseAddr(addr net.Addr) (ip net.IP, port int, isTCP bool, ok bool) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP, a.Port, false, true
	case *net.TCPAddr:
		return a.IP, a.Port, true, true
	default:
		return nil, 0, false, false
	}
}
