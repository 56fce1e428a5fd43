package ice

import (
	"fmt"
	"net"
)

// CandidateRelay is a candidate allocated on a TURN server; RelatedAddress
// carries the server-reflexive mapping the TURN allocation observed (spec
// §3 "related-address ... for relay: the mapped srflx").
type CandidateRelay struct {
	candidateBase

	// onClose releases the TURN client and the UDP socket it runs over when
	// the candidate is closed; candidateBase.conn holds the relayed conn.
	onClose func() error
}

// CandidateRelayConfig configures NewCandidateRelay.
type CandidateRelayConfig struct {
	Network         string
	Address         string
	Port            int
	Component       uint16
	LocalPreference uint16
	RelAddr         string
	RelPort         int
	ServerAddress   string
	Conn            net.PacketConn
	OnClose         func() error
	// Base is the host candidate the TURN allocation was requested through.
	Base Candidate
}

// NewCandidateRelay builds a relay candidate.
func NewCandidateRelay(cfg *CandidateRelayConfig) (*CandidateRelay, error) {
	ip := net.ParseIP(cfg.Address)
	if ip == nil {
		return nil, ErrAddressParseFailed
	}
	networkType, err := parseNetworkType(cfg.Network, ip)
	if err != nil {
		return nil, err
	}

	c := &CandidateRelay{candidateBase: candidateBase{
		networkType:   networkType,
		candidateType: CandidateTypeRelay,
		component:     cfg.Component,
		address:       cfg.Address,
		port:          cfg.Port,
		conn:          cfg.Conn,
		relatedAddress: &CandidateRelatedAddress{Address: cfg.RelAddr, Port: cfg.RelPort},
		resolvedAddr:  &net.UDPAddr{IP: ip, Port: cfg.Port},
		baseCandidate: cfg.Base,
	}, onClose: cfg.OnClose}
	c.foundationOverride = computeFoundation(CandidateTypeRelay, cfg.RelAddr, cfg.ServerAddress, networkType.NetworkShort())
	c.candidateID = candidatePriorityFoundation(c.foundationOverride, cfg.LocalPreference, cfg.Component)
	c.priorityValue = candidatePriority(CandidateTypeRelay, cfg.LocalPreference, cfg.Component)
	return c, nil
}

func (c *CandidateRelay) base() Candidate {
	if c.baseCandidate != nil {
		return c.baseCandidate
	}
	return c
}

func (c *CandidateRelay) Equal(other Candidate) bool { return candidateEqual(c, other) }

func (c *CandidateRelay) close() error {
	err := c.candidateBase.close()
	if c.onClose != nil {
		if relErr := c.onClose(); relErr != nil && err == nil {
			err = relErr
		}
	}
	return err
}

func (c *CandidateRelay) String() string {
	return fmt.Sprintf("relay(%s) %s:%d %s", c.networkType, c.address, c.port, c.relatedAddress)
}
