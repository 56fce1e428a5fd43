package ice

import (
	"net"
	"strconv"
	"time"

	"github.com/pion/logging"
)

// MulticastDNSMode controls how a local host candidate's IP is announced.
type MulticastDNSMode int

const (
	// MulticastDNSModeDisabled means mDNS is not used at all.
	MulticastDNSModeDisabled MulticastDNSMode = iota + 1
	// MulticastDNSModeQueryOnly means the agent resolves remote ".local"
	// candidates but does not replace its own host IPs.
	MulticastDNSModeQueryOnly
	// MulticastDNSModeQueryAndGather means the agent also replaces its own
	// host candidate IPs with a "<uuid>.local" name and answers queries for
	// it (spec §4.1).
	MulticastDNSModeQueryAndGather
)

// URLSchemeType is the scheme of a configured STUN/TURN URL.
type URLSchemeType int

const (
	// SchemeTypeSTUN is "stun:".
	SchemeTypeSTUN URLSchemeType = iota + 1
	// SchemeTypeSTUNS is "stuns:".
	SchemeTypeSTUNS
	// SchemeTypeTURN is "turn:".
	SchemeTypeTURN
	// SchemeTypeTURNS is "turns:".
	SchemeTypeTURNS
)

// URL is a parsed STUN/TURN server URL (spec §6 "urls").
type URL struct {
	Scheme   URLSchemeType
	Host     string
	Port     int
	Username string
	Password string
	Proto    string // "udp" or "tcp", for TURN
}

// IsTURN reports whether this URL names a TURN server.
func (u *URL) IsTURN() bool { return u.Scheme == SchemeTypeTURN || u.Scheme == SchemeTypeTURNS }

func (u *URL) String() string {
	scheme := "stun"
	switch u.Scheme {
	case SchemeTypeSTUNS:
		scheme = "stuns"
	case SchemeTypeTURN:
		scheme = "turn"
	case SchemeTypeTURNS:
		scheme = "turns"
	}
	return scheme + ":" + net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// Default timing values (spec §6).
const (
	defaultCheckInterval          = 200 * time.Millisecond
	defaultDisconnectedTimeout    = 5 * time.Second
	defaultFailedTimeout          = 25 * time.Second
	defaultKeepaliveInterval      = 2 * time.Second
	defaultMaxBindingRequests     = 7
	defaultHostAcceptanceMinWait  = 0
	defaultSrflxAcceptanceMinWait = 500 * time.Millisecond
	defaultPrflxAcceptanceMinWait = 1000 * time.Millisecond
	defaultRelayAcceptanceMinWait = 2000 * time.Millisecond
)

// AgentConfig configures a new Agent. Every field mirrors a recognized
// option from spec §6; initWithDefaults fills the zero values in.
type AgentConfig struct {
	Urls []*URL

	// PortMin/PortMax bound the ephemeral range used for host UDP sockets;
	// zero/zero means any free port. Ignored when UDPMux is set.
	PortMin uint16
	PortMax uint16

	LocalUfrag string
	LocalPwd   string

	MulticastDNSMode     MulticastDNSMode
	MulticastDNSHostName string

	DisconnectedTimeout *time.Duration
	FailedTimeout       *time.Duration
	KeepaliveInterval   *time.Duration
	CheckInterval       *time.Duration

	NetworkTypes   []NetworkType
	CandidateTypes []CandidateType

	MaxBindingRequests *uint16

	IsControlling bool
	Lite          bool

	// EnableUseCandidateOnNomination sets USE-CANDIDATE on every check
	// instead of only the nominating one ("aggressive nomination", spec
	// §4.6, off by default).
	EnableUseCandidateOnNomination bool

	NAT1To1IPCandidateType CandidateType
	NAT1To1IPs             []string

	HostAcceptanceMinWait  *time.Duration
	SrflxAcceptanceMinWait *time.Duration
	PrflxAcceptanceMinWait *time.Duration
	RelayAcceptanceMinWait *time.Duration

	InterfaceFilter func(string) bool
	IPFilter        func(net.IP) bool

	InsecureSkipVerify bool
	IncludeLoopback    bool

	Net Net

	UDPMux *UDPMux
	TCPMux *TCPMux

	LoggerFactory logging.LoggerFactory
}

func durOrDefault(p *time.Duration, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return *p
}

func u16OrDefault(p *uint16, def uint16) uint16 {
	if p == nil {
		return def
	}
	return *p
}

// initWithDefaults copies every config field onto the agent, filling in
// defaults for anything the caller left zero (mirrors the reference
// agent's initWithDefaults).
func (c *AgentConfig) initWithDefaults(a *Agent) {
	a.maxBindingRequests = u16OrDefault(c.MaxBindingRequests, defaultMaxBindingRequests)

	a.disconnectedTimeout = durOrDefault(c.DisconnectedTimeout, defaultDisconnectedTimeout)
	a.failedTimeout = durOrDefault(c.FailedTimeout, defaultFailedTimeout)
	a.keepaliveInterval = durOrDefault(c.KeepaliveInterval, defaultKeepaliveInterval)
	a.checkInterval = durOrDefault(c.CheckInterval, defaultCheckInterval)

	a.hostAcceptanceMinWait = durOrDefault(c.HostAcceptanceMinWait, defaultHostAcceptanceMinWait)
	a.srflxAcceptanceMinWait = durOrDefault(c.SrflxAcceptanceMinWait, defaultSrflxAcceptanceMinWait)
	a.prflxAcceptanceMinWait = durOrDefault(c.PrflxAcceptanceMinWait, defaultPrflxAcceptanceMinWait)
	a.relayAcceptanceMinWait = durOrDefault(c.RelayAcceptanceMinWait, defaultRelayAcceptanceMinWait)

	if len(c.CandidateTypes) == 0 {
		a.candidateTypes = []CandidateType{CandidateTypeHost, CandidateTypeServerReflexive, CandidateTypeRelay}
	} else {
		a.candidateTypes = c.CandidateTypes
	}

	if len(c.NetworkTypes) == 0 {
		a.networkTypes = []NetworkType{NetworkTypeUDP4, NetworkTypeUDP6}
	} else {
		a.networkTypes = c.NetworkTypes
	}

	a.isControlling = c.IsControlling
	a.enableUseCandidateOnNomination = c.EnableUseCandidateOnNomination
	a.interfaceFilter = c.InterfaceFilter
	a.ipFilter = c.IPFilter
	a.insecureSkipVerify = c.InsecureSkipVerify
	a.includeLoopback = c.IncludeLoopback
}

// initExtIPMapping constructs the agent's NAT 1:1 mapper, rejecting mDNS
// gathering combined with it (spec §6 "mDNS must not be combined with
// 1-to-1 NAT host mapping").
func (c *AgentConfig) initExtIPMapping(a *Agent) error {
	if len(c.NAT1To1IPs) == 0 {
		return nil
	}
	if a.mDNSMode == MulticastDNSModeQueryAndGather {
		return ErrMulticastDNSWithNAT1To1IPMapping
	}
	mapper, err := newExternalIPMapper(c.NAT1To1IPCandidateType, c.NAT1To1IPs)
	if err != nil {
		return err
	}
	a.extIPMapper = mapper
	return nil
}
