package ice

import (
	"fmt"
	"net"
)

// CandidatePeerReflexive is a candidate discovered because an inbound
// Binding request arrived from a source address not already in the
// checklist (spec §4.4 "PRFLX discovery path").
type CandidatePeerReflexive struct {
	candidateBase
}

// CandidatePeerReflexiveConfig configures NewCandidatePeerReflexive.
type CandidatePeerReflexiveConfig struct {
	Network   string
	Address   string
	Port      int
	Component uint16
	RelAddr   string
	RelPort   int
	// Priority is taken verbatim from the inbound request's PRIORITY
	// attribute (spec §4.4), not recomputed from a local preference.
	Priority uint32
	// Conn is the local candidate's socket the inbound request arrived on;
	// a prflx remote candidate has no socket of its own.
	Conn net.PacketConn
}

// NewCandidatePeerReflexive builds a prflx candidate for the PRFLX
// discovery path.
func NewCandidatePeerReflexive(cfg *CandidatePeerReflexiveConfig) (*CandidatePeerReflexive, error) {
	ip := net.ParseIP(cfg.Address)
	if ip == nil {
		return nil, ErrAddressParseFailed
	}
	networkType, err := parseNetworkType(cfg.Network, ip)
	if err != nil {
		return nil, err
	}

	c := &CandidatePeerReflexive{candidateBase: candidateBase{
		networkType:   networkType,
		candidateType: CandidateTypePeerReflexive,
		component:     cfg.Component,
		address:       cfg.Address,
		port:          cfg.Port,
		relatedAddress: &CandidateRelatedAddress{Address: cfg.RelAddr, Port: cfg.RelPort},
		resolvedAddr:  &net.UDPAddr{IP: ip, Port: cfg.Port},
		priorityValue: cfg.Priority,
		conn:          cfg.Conn,
	}}
	c.foundationOverride = computeFoundation(CandidateTypePeerReflexive, cfg.Address, "", networkType.NetworkShort())
	c.candidateID = candidatePriorityFoundation(c.foundationOverride, 0, cfg.Component)
	return c, nil
}

func (c *CandidatePeerReflexive) base() Candidate { return c }

func (c *CandidatePeerReflexive) Equal(other Candidate) bool { return candidateEqual(c, other) }

func (c *CandidatePeerReflexive) String() string {
	return fmt.Sprintf("prflx(%s) %s:%d", c.networkType, c.address, c.port)
}
