package ice

import (
	"fmt"
	"net"
)

// CandidateServerReflexive is a candidate learned from a STUN Binding
// response: the XOR-MAPPED-ADDRESS a STUN server observed for us.
type CandidateServerReflexive struct {
	candidateBase
}

// CandidateServerReflexiveConfig configures NewCandidateServerReflexive.
type CandidateServerReflexiveConfig struct {
	Network         string
	Address         string
	Port            int
	Component       uint16
	LocalPreference uint16
	RelAddr         string
	RelPort         int
	// ServerAddress groups the foundation by which STUN server produced
	// this reflexive mapping (spec §3 "Foundation").
	ServerAddress string
	Conn          net.PacketConn
	// Base is the host candidate this srflx mapping was discovered through,
	// used by checklist pruning (spec §3). May be nil if unknown.
	Base Candidate
}

// NewCandidateServerReflexive builds a srflx candidate.
func NewCandidateServerReflexive(cfg *CandidateServerReflexiveConfig) (*CandidateServerReflexive, error) {
	ip := net.ParseIP(cfg.Address)
	if ip == nil {
		return nil, ErrAddressParseFailed
	}
	networkType, err := parseNetworkType(cfg.Network, ip)
	if err != nil {
		return nil, err
	}

	c := &CandidateServerReflexive{candidateBase: candidateBase{
		networkType:   networkType,
		candidateType: CandidateTypeServerReflexive,
		component:     cfg.Component,
		address:       cfg.Address,
		port:          cfg.Port,
		conn:          cfg.Conn,
		relatedAddress: &CandidateRelatedAddress{Address: cfg.RelAddr, Port: cfg.RelPort},
		resolvedAddr:  &net.UDPAddr{IP: ip, Port: cfg.Port},
		baseCandidate: cfg.Base,
	}}
	c.foundationOverride = computeFoundation(CandidateTypeServerReflexive, cfg.RelAddr, cfg.ServerAddress, networkType.NetworkShort())
	c.candidateID = candidatePriorityFoundation(c.foundationOverride, cfg.LocalPreference, cfg.Component)
	c.priorityValue = candidatePriority(CandidateTypeServerReflexive, cfg.LocalPreference, cfg.Component)
	return c, nil
}

func (c *CandidateServerReflexive) base() Candidate {
	if c.baseCandidate != nil {
		return c.baseCandidate
	}
	return c
}

func (c *CandidateServerReflexive) Equal(other Candidate) bool { return candidateEqual(c, other) }

func (c *CandidateServerReflexive) String() string {
	return fmt.Sprintf("srflx(%s) %s:%d %s", c.networkType, c.address, c.port, c.relatedAddress)
}
