package ice

import (
	"fmt"
	"net"
)

// CandidateHost is a candidate obtained by binding directly to a local
// interface address.
type CandidateHost struct {
	candidateBase
}

// CandidateHostConfig configures NewCandidateHost.
type CandidateHostConfig struct {
	Network         string
	Address         string
	Port            int
	Component       uint16
	LocalPreference uint16
	TCPType         TCPType
	// Conn, when non-nil, is the already-bound socket this candidate reads
	// and writes through (set by the gatherer after a successful bind).
	Conn net.PacketConn
}

// NewCandidateHost builds a host candidate. mDNS name substitution (spec
// §4.1) happens in the gatherer, not here: by the time a CandidateHost
// exists its Address may already be a "<uuid>.local" name.
func NewCandidateHost(cfg *CandidateHostConfig) (*CandidateHost, error) {
	// A gathered mDNS host candidate carries a "<uuid>.local" name instead
	// of an IP; assume the address family the caller configured in that
	// case since the name itself carries no family information.
	parseIP := net.ParseIP(cfg.Address)
	if parseIP == nil {
		parseIP = net.IPv4zero
	}
	networkType, err := parseNetworkType(cfg.Network, parseIP)
	if err != nil {
		return nil, err
	}

	c := &CandidateHost{candidateBase: candidateBase{
		networkType:   networkType,
		candidateType: CandidateTypeHost,
		component:     cfg.Component,
		address:       cfg.Address,
		port:          cfg.Port,
		tcpType:       cfg.TCPType,
		conn:          cfg.Conn,
	}}
	c.foundationOverride = computeFoundation(CandidateTypeHost, cfg.Address, "", networkType.NetworkShort())
	c.candidateID = candidatePriorityFoundation(c.foundationOverride, cfg.LocalPreference, cfg.Component)
	if ip := net.ParseIP(cfg.Address); ip != nil {
		c.resolvedAddr = &net.UDPAddr{IP: ip, Port: cfg.Port}
	}
	c.priorityValue = candidatePriority(CandidateTypeHost, cfg.LocalPreference, cfg.Component)
	return c, nil
}

// candidatePriorityFoundation is a helper id combining foundation, local
// preference and component
// so findPair-style equality checks stay cheap; it is NOT the RFC priority.
func candidatePriorityFoundation(foundation string, localPreference, component uint16) string {
	return fmt.Sprintf("%s-%d-%d", foundation, localPreference, component)
}

func (c *CandidateHost) base() Candidate { return c }

// setIP replaces the resolved address family/IP once an mDNS name has been
// resolved to a concrete source address (spec §4.1 remote mDNS resolution).
// The candidate's Address() string (the original ".local" name) is left
// untouched; only the conn-facing resolvedAddr changes.
func (c *CandidateHost) setIP(ip net.IP) error {
	networkType, err := parseNetworkType(c.networkType.NetworkShort(), ip)
	if err != nil {
		return err
	}
	c.networkType = networkType
	c.resolvedAddr = &net.UDPAddr{IP: ip, Port: c.port}
	return nil
}

func (c *CandidateHost) Equal(other Candidate) bool { return candidateEqual(c, other) }

func (c *CandidateHost) String() string {
	return fmt.Sprintf("host(%s) %s:%d", c.networkType, c.address, c.port)
}
