package ice

import (
	"fmt"
	"net"
	"strings"
)

// NetworkType represents the type of network (address family x transport)
// used in the ICE transport.
type NetworkType int

const (
	// NetworkTypeUDP4 indicates UDP over IPv4.
	NetworkTypeUDP4 NetworkType = iota + 1
	// NetworkTypeUDP6 indicates UDP over IPv6.
	NetworkTypeUDP6
	// NetworkTypeTCP4 indicates TCP over IPv4.
	NetworkTypeTCP4
	// NetworkTypeTCP6 indicates TCP over IPv6.
	NetworkTypeTCP6
)

func (t NetworkType) String() string {
	switch t {
	case NetworkTypeUDP4:
		return "udp4"
	case NetworkTypeUDP6:
		return "udp6"
	case NetworkTypeTCP4:
		return "tcp4"
	case NetworkTypeTCP6:
		return "tcp6"
	default:
		return "unknown"
	}
}

// IsUDP reports whether the network type carries UDP traffic.
func (t NetworkType) IsUDP() bool { return t == NetworkTypeUDP4 || t == NetworkTypeUDP6 }

// IsTCP reports whether the network type carries TCP traffic.
func (t NetworkType) IsTCP() bool { return t == NetworkTypeTCP4 || t == NetworkTypeTCP6 }

// IsReliable reports whether the underlying transport is TCP.
func (t NetworkType) IsReliable() bool { return t.IsTCP() }

// NetworkShort returns the short network identifier used by net.Dial/net.ListenPacket.
func (t NetworkType) NetworkShort() string {
	switch t {
	case NetworkTypeUDP4, NetworkTypeUDP6:
		return "udp"
	case NetworkTypeTCP4, NetworkTypeTCP6:
		return "tcp"
	default:
		return ""
	}
}

func parseNetworkType(s string, ip net.IP) (NetworkType, error) {
	isIPv6 := ip.To4() == nil
	switch strings.ToLower(s) {
	case "udp", "udp4", "udp6":
		if isIPv6 {
			return NetworkTypeUDP6, nil
		}
		return NetworkTypeUDP4, nil
	case "tcp", "tcp4", "tcp6":
		if isIPv6 {
			return NetworkTypeTCP6, nil
		}
		return NetworkTypeTCP4, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrAddressParseFailed, s)
	}
}

// TCPType is the ICE TCP candidate type (RFC 6544 §4.5).
type TCPType int

const (
	// TCPTypeUnspecified indicates the candidate is not TCP.
	TCPTypeUnspecified TCPType = iota
	// TCPTypeActive dials out; it never accepts inbound connections and is
	// never probed by the remote side.
	TCPTypeActive
	// TCPTypePassive only accepts inbound connections.
	TCPTypePassive
	// TCPTypeSimultaneousOpen both dials and accepts.
	TCPTypeSimultaneousOpen
)

func (t TCPType) String() string {
	switch t {
	case TCPTypeActive:
		return "active"
	case TCPTypePassive:
		return "passive"
	case TCPTypeSimultaneousOpen:
		return "so"
	default:
		return "unspecified"
	}
}
