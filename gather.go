package ice

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/turn/v4"
)

// Candidate Gatherer (C1). Triggered by GatherCandidates; enumerates the
// configured candidate types concurrently, announcing each discovered
// candidate through addLocalCandidate as it's produced (spec §4.1).

const (
	// stunGatherTimeout bounds how long a single STUN/TURN gather attempt
	// waits for a response before the candidate is simply skipped (spec
	// §4.1 "a single STUN/TURN failure does NOT fail gathering; it only
	// suppresses that candidate").
	stunGatherTimeout = 5 * time.Second

	// defaultLocalPreference seeds the RFC 8445 §5.1.2.2 local-preference
	// term; candidates gathered later from the same base get a strictly
	// lower value so Candidate.Priority keeps the ordering invariant of
	// spec §3 ("priority strictly orders candidates of the same type from
	// the same base").
	defaultLocalPreference = 65535

	// component1 is the only RTP component this implementation gathers
	// against (spec §3 "Component is always 1 in this implementation").
	component1 uint16 = 1
)

// GatherCandidates starts asynchronous candidate gathering (spec §4.1
// `gather()`). Calling it while already gathering, or after Close, is a
// ConfigInvalid-class error; it never fails for network reasons (spec §7
// "User-visible failure on gather() occurs only for ConfigInvalid or
// double-gather").
func (a *Agent) GatherCandidates() error {
	var startErr error
	runErr := a.run(a.context(), func(_ context.Context, agent *Agent) {
		if agent.gatheringState == GatheringStateGathering {
			startErr = ErrMultipleStart
			return
		}

		agent.gatheringState = GatheringStateGathering
		if agent.connectionState == ConnectionStateNew {
			agent.updateConnectionState(ConnectionStateGathering)
		}

		gatherCtx, cancel := context.WithCancel(context.Background())
		agent.gatherCandidateCancel = cancel
		agent.gatherCandidateDone = make(chan struct{})

		go agent.gatherCandidatesRoutine(gatherCtx)
	})
	if runErr != nil {
		return runErr
	}
	return startErr
}

func (a *Agent) gatherCandidatesRoutine(ctx context.Context) {
	defer close(a.gatherCandidateDone)

	var wg sync.WaitGroup
	for _, t := range a.candidateTypes {
		switch t {
		case CandidateTypeHost:
			wg.Add(1)
			go func() { defer wg.Done(); a.gatherCandidatesLocal(ctx) }()
		case CandidateTypeServerReflexive:
			wg.Add(1)
			go func() { defer wg.Done(); a.gatherCandidatesSrflx(ctx) }()
		case CandidateTypeRelay:
			wg.Add(1)
			go func() { defer wg.Done(); a.gatherCandidatesRelay(ctx) }()
		}
	}
	wg.Wait()

	if err := a.run(a.context(), func(_ context.Context, agent *Agent) {
		agent.gatheringState = GatheringStateComplete
		agent.candidateNotifier.EnqueueCandidate(nil) // spec §6 "None signals end-of-gathering"
	}); err != nil {
		a.log.Debugf("Failed to finalize gathering: %v", err)
	}
}

// localInterface is one (IP, NetworkType) combination eligible for host
// candidate gathering, after the interface/IP filters and the
// network-types/include-loopback settings are applied (spec §4.1).
type localInterface struct {
	ip          net.IP
	networkType NetworkType
}

func (a *Agent) localInterfaces(networkTypes []NetworkType) ([]localInterface, error) {
	ifaces, err := a.net.Interfaces()
	if err != nil {
		return nil, err
	}

	wantUDP := containsNetworkType(NetworkTypeUDP4, networkTypes) || containsNetworkType(NetworkTypeUDP6, networkTypes)
	wantTCP := containsNetworkType(NetworkTypeTCP4, networkTypes) || containsNetworkType(NetworkTypeTCP6, networkTypes)

	var out []localInterface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if a.interfaceFilter != nil && !a.interfaceFilter(iface.Name) {
			continue
		}
		addrs, addrErr := iface.Addrs()
		if addrErr != nil {
			a.log.Warnf("Failed to get addresses for interface %s: %v", iface.Name, addrErr)
			continue
		}
		for _, addr := range addrs {
			ip := addrIP(addr)
			if ip == nil {
				continue
			}
			if ip.IsLoopback() && !a.includeLoopback {
				continue
			}
			if a.ipFilter != nil && !a.ipFilter(ip) {
				continue
			}
			isIPv6 := ip.To4() == nil
			switch {
			case !isIPv6 && wantUDP:
				out = append(out, localInterface{ip: ip, networkType: NetworkTypeUDP4})
			case isIPv6 && wantUDP:
				out = append(out, localInterface{ip: ip, networkType: NetworkTypeUDP6})
			}
			if wantTCP {
				// TCP host candidates reuse the same priority/pair machinery
				// (spec §9c); only passive is gathered, since the agent
				// never dials out proactively for a bare host candidate.
				if !isIPv6 {
					out = append(out, localInterface{ip: ip, networkType: NetworkTypeTCP4})
				} else {
					out = append(out, localInterface{ip: ip, networkType: NetworkTypeTCP6})
				}
			}
		}
	}
	return out, nil
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPNet:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}

func containsNetworkType(t NetworkType, types []NetworkType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// gatherCandidatesLocal implements the "Host" branch of spec §4.1: bind UDP
// (optionally via the configured UDPMux/TCPMux, else a fresh socket in
// [port_min,port_max]), apply mDNS/NAT-1:1 rewriting, and announce.
func (a *Agent) gatherCandidatesLocal(ctx context.Context) {
	ifaces, err := a.localInterfaces(a.networkTypes)
	if err != nil {
		a.log.Warnf("Failed to enumerate local interfaces: %v", err)
		return
	}

	var localPref int32 = defaultLocalPreference
	nextPref := func() uint16 { return uint16(atomic.AddInt32(&localPref, -1) + 1) }

	for _, li := range ifaces {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if li.networkType.IsTCP() {
			a.gatherTCPHostCandidate(ctx, li, nextPref())
			continue
		}
		a.gatherUDPHostCandidate(ctx, li, nextPref())
	}
}

func (a *Agent) gatherUDPHostCandidate(ctx context.Context, li localInterface, localPref uint16) {
	var conn net.PacketConn
	var port int
	var err error

	switch {
	case a.udpMux != nil:
		conn, err = a.udpMux.GetConn(a.localUfrag)
		if err == nil {
			if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
				port = udpAddr.Port
			}
		}
	default:
		conn, err = listenUDPInRange(a.net, li.ip, a.portMin, a.portMax)
		if err == nil {
			if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
				port = udpAddr.Port
			}
		}
	}
	if err != nil {
		a.log.Warnf("Failed to listen on %s: %v", li.ip, err)
		return
	}

	address := li.ip.String()
	if a.mDNSMode == MulticastDNSModeQueryAndGather {
		address = a.mDNSName
	}

	hostCfg := &CandidateHostConfig{
		Network:         li.networkType.NetworkShort(),
		Address:         address,
		Port:            port,
		Component:       component1,
		LocalPreference: localPref,
		Conn:            conn,
	}
	cand, err := NewCandidateHost(hostCfg)
	if err != nil {
		a.log.Warnf("Failed to create host candidate: %v", err)
		_ = conn.Close()
		return
	}
	// setIP keeps the announced Address (possibly an mDNS name) while
	// giving the candidate a real resolvedAddr to read/write through.
	if address != li.ip.String() {
		if err := cand.setIP(li.ip); err != nil {
			a.log.Warnf("Failed to bind resolved address for %s: %v", address, err)
			_ = conn.Close()
			return
		}
	}

	a.applyNAT1To1ToHost(cand, li.ip)

	if err := a.addLocalCandidate(ctx, cand); err != nil {
		a.log.Debugf("Failed to add host candidate %s: %v", cand, err)
		_ = conn.Close()
	}
}

func (a *Agent) gatherTCPHostCandidate(ctx context.Context, li localInterface, localPref uint16) {
	if a.tcpMux == nil {
		// Without a configured listener there is nothing to accept
		// connections on; TCP host gathering is opportunistic (spec §9c).
		return
	}
	conn, port, err := a.tcpMux.GetConn(a.localUfrag, li.ip)
	if err != nil {
		a.log.Warnf("Failed to acquire TCP mux conn for %s: %v", li.ip, err)
		return
	}

	hostCfg := &CandidateHostConfig{
		Network:         li.networkType.NetworkShort(),
		Address:         li.ip.String(),
		Port:            port,
		Component:       component1,
		LocalPreference: localPref,
		TCPType:         TCPTypePassive,
		Conn:            conn,
	}
	cand, err := NewCandidateHost(hostCfg)
	if err != nil {
		a.log.Warnf("Failed to create TCP host candidate: %v", err)
		_ = conn.Close()
		return
	}
	if err := a.addLocalCandidate(ctx, cand); err != nil {
		a.log.Debugf("Failed to add TCP host candidate %s: %v", cand, err)
		_ = conn.Close()
	}
}

// applyNAT1To1ToHost rewrites cand's announced address in place when the
// configured mapping type is Host (spec §4.1 "NAT 1-to-1 mapping"). The
// ServerReflexive mapping type is handled separately by
// gatherCandidatesSrflx, which synthesizes a second candidate instead of
// mutating the host one.
func (a *Agent) applyNAT1To1ToHost(cand *CandidateHost, local net.IP) {
	if a.extIPMapper == nil || a.extIPMapper.candidateType != mappingCandidateTypeHost {
		return
	}
	ext, err := a.extIPMapper.findExternalIP(local.String())
	if err != nil {
		a.log.Tracef("No NAT 1:1 mapping for %s: %v", local, err)
		return
	}
	if err := cand.setIP(ext); err != nil {
		a.log.Warnf("Failed to rewrite host candidate to external IP %s: %v", ext, err)
		return
	}
	cand.address = ext.String()
}

// gatherCandidatesSrflx implements the "Server Reflexive" branch of spec
// §4.1: a plain STUN Binding request to each configured STUN URL from each
// host base, reading XOR-MAPPED-ADDRESS back as the srflx mapping. When a
// ServerReflexive NAT 1:1 mapping is configured, the external IP is
// synthesized directly instead of asking a server.
func (a *Agent) gatherCandidatesSrflx(ctx context.Context) {
	ifaces, err := a.localInterfaces([]NetworkType{NetworkTypeUDP4, NetworkTypeUDP6})
	if err != nil {
		a.log.Warnf("Failed to enumerate local interfaces for srflx gathering: %v", err)
		return
	}

	urls := a.stunURLs()
	if len(urls) == 0 && a.extIPMapper == nil {
		return
	}

	var localPref int32 = defaultLocalPreference
	nextPref := func() uint16 { return uint16(atomic.AddInt32(&localPref, -1) + 1) }

	for _, li := range ifaces {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if a.extIPMapper != nil && a.extIPMapper.candidateType == mappingCandidateTypeServerReflexive {
			a.gatherSrflxFromNAT1To1(ctx, li, nextPref())
			continue
		}
		for _, u := range urls {
			a.gatherSrflxFromURL(ctx, li, u, nextPref())
		}
	}
}

func (a *Agent) stunURLs() []*URL {
	var out []*URL
	for _, u := range a.urls {
		if u.Scheme == SchemeTypeSTUN || u.Scheme == SchemeTypeSTUNS {
			out = append(out, u)
		}
	}
	return out
}

func (a *Agent) gatherSrflxFromNAT1To1(ctx context.Context, li localInterface, localPref uint16) {
	ext, err := a.extIPMapper.findExternalIP(li.ip.String())
	if err != nil {
		a.log.Tracef("No NAT 1:1 srflx mapping for %s: %v", li.ip, err)
		return
	}
	conn, err := listenUDPInRange(a.net, li.ip, a.portMin, a.portMax)
	if err != nil {
		a.log.Warnf("Failed to listen for synthesized srflx candidate: %v", err)
		return
	}
	port := 0
	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		port = udpAddr.Port
	}
	baseCand, err := NewCandidateHost(&CandidateHostConfig{
		Network:         li.networkType.NetworkShort(),
		Address:         li.ip.String(),
		Port:            port,
		Component:       component1,
		LocalPreference: localPref,
		Conn:            conn,
	})
	if err != nil {
		_ = conn.Close()
		return
	}
	srflx, err := NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
		Network:         li.networkType.NetworkShort(),
		Address:         ext.String(),
		Port:            port,
		Component:       component1,
		LocalPreference: localPref,
		RelAddr:         li.ip.String(),
		RelPort:         port,
		ServerAddress:   "nat1to1",
		Conn:            conn,
		Base:            baseCand,
	})
	if err != nil {
		a.log.Warnf("Failed to synthesize NAT 1:1 srflx candidate: %v", err)
		_ = conn.Close()
		return
	}
	if err := a.addLocalCandidate(ctx, srflx); err != nil {
		a.log.Debugf("Failed to add synthesized srflx candidate %s: %v", srflx, err)
		_ = conn.Close()
	}
}

func (a *Agent) gatherSrflxFromURL(ctx context.Context, li localInterface, u *URL, localPref uint16) {
	conn, err := listenUDPInRange(a.net, li.ip, a.portMin, a.portMax)
	if err != nil {
		a.log.Warnf("Failed to listen for srflx gathering on %s: %v", li.ip, err)
		return
	}
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	basePort := 0
	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		basePort = udpAddr.Port
	}

	serverAddr, err := a.net.ResolveUDPAddr("udp", net.JoinHostPort(u.Host, fmt.Sprint(u.Port)))
	if err != nil {
		a.log.Warnf("Failed to resolve STUN server %s: %v", u, err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, stunGatherTimeout)
	defer cancel()

	mappedIP, mappedPort, err := stunRequestMappedAddr(reqCtx, conn, serverAddr)
	if err != nil {
		a.log.Warnf("STUN gather from %s failed: %v", u, err)
		return
	}

	srflx, err := NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
		Network:         li.networkType.NetworkShort(),
		Address:         mappedIP.String(),
		Port:            mappedPort,
		Component:       component1,
		LocalPreference: localPref,
		RelAddr:         li.ip.String(),
		RelPort:         basePort,
		ServerAddress:   u.String(),
		Conn:            conn,
	})
	if err != nil {
		a.log.Warnf("Failed to create srflx candidate from %s: %v", u, err)
		return
	}
	if err := a.addLocalCandidate(ctx, srflx); err != nil {
		a.log.Debugf("Failed to add srflx candidate %s: %v", srflx, err)
		return
	}
	conn = nil // ownership transferred into the candidate
}

// stunRequestMappedAddr sends a STUN Binding request (no credentials: a
// bare STUN server needs none) and waits for the XOR-MAPPED-ADDRESS in the
// response, resending the same request with a read timeout that starts at
// bindingRequestRTO and doubles after each miss, for at most
// defaultMaxBindingRequests attempts or until ctx expires.
func stunRequestMappedAddr(ctx context.Context, conn net.PacketConn, server net.Addr) (net.IP, int, error) {
	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	if err != nil {
		return nil, 0, err
	}

	type result struct {
		ip   net.IP
		port int
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		buf := make([]byte, receiveMTU)
		rto := bindingRequestRTO
		for attempt := 0; attempt < defaultMaxBindingRequests; attempt++ {
			if _, err := conn.WriteTo(msg.Raw, server); err != nil {
				resCh <- result{err: err}
				return
			}
			deadline := time.Now().Add(rto)
			if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
				deadline = dl
			}
			_ = conn.SetReadDeadline(deadline)
			n, _, readErr := conn.ReadFrom(buf)
			if readErr != nil {
				rto *= 2
				select {
				case <-ctx.Done():
					resCh <- result{err: ctx.Err()}
					return
				default:
					continue
				}
			}
			resp := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
			if err := resp.Decode(); err != nil {
				continue
			}
			if resp.TransactionID != msg.TransactionID {
				continue
			}
			var xorAddr stun.XORMappedAddress
			if err := xorAddr.GetFrom(resp); err != nil {
				resCh <- result{err: fmt.Errorf("%w: %w", ErrSTUNGatherTimeout, err)}
				return
			}
			resCh <- result{ip: xorAddr.IP, port: xorAddr.Port}
			return
		}
		resCh <- result{err: ErrSTUNGatherTimeout}
	}()

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-resCh:
		return r.ip, r.port, r.err
	}
}

// gatherCandidatesRelay implements the "Relay" branch of spec §4.1: open one
// TURN allocation per configured TURN URL over a fresh UDP socket; the
// allocation's own XOR-MAPPED-ADDRESS becomes the related srflx address.
func (a *Agent) gatherCandidatesRelay(ctx context.Context) {
	for _, u := range a.urls {
		if !u.IsTURN() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		a.gatherRelayFromURL(ctx, u)
	}
}

func (a *Agent) gatherRelayFromURL(ctx context.Context, u *URL) {
	turnServerAddr := net.JoinHostPort(u.Host, fmt.Sprint(u.Port))

	// Only UDP TURN allocations are gathered; turn_proto "tcp" (a TURN
	// control connection carried over TCP/TLS to the server, independent
	// of the relayed transport) is left unimplemented, matching the
	// thinner TCP coverage spec §9c calls out.
	conn, err := a.net.ListenPacket("udp4", ":0")
	if err != nil {
		a.log.Warnf("Failed to listen for TURN(udp) %s: %v", u, err)
		return
	}

	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: turnServerAddr,
		TURNServerAddr: turnServerAddr,
		Conn:           conn,
		Username:       u.Username,
		Password:       u.Password,
		Software:       "webrtcproto/ice",
	})
	if err != nil {
		a.log.Warnf("Failed to create TURN client for %s: %v", u, err)
		_ = conn.Close()
		return
	}
	if err := client.Listen(); err != nil {
		a.log.Warnf("Failed to start TURN client for %s: %v", u, err)
		client.Close()
		return
	}

	relayConn, err := client.Allocate()
	if err != nil {
		a.log.Warnf("Failed to allocate TURN relay on %s: %v", u, err)
		client.Close()
		return
	}

	relayAddr, ok := relayConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		a.log.Warnf("Unexpected TURN relay address type from %s", u)
		client.Close()
		return
	}

	mappedAddr, err := client.SendBindingRequest()
	var relIP net.IP
	var relPort int
	if err == nil {
		if udpMapped, ok2 := mappedAddr.(*net.UDPAddr); ok2 {
			relIP, relPort = udpMapped.IP, udpMapped.Port
		}
	}
	if relIP == nil {
		relIP, relPort = relayAddr.IP, relayAddr.Port
	}

	relay, err := NewCandidateRelay(&CandidateRelayConfig{
		Network:         "udp",
		Address:         relayAddr.IP.String(),
		Port:            relayAddr.Port,
		Component:       component1,
		LocalPreference: defaultLocalPreference,
		RelAddr:         relIP.String(),
		RelPort:         relPort,
		ServerAddress:   u.String(),
		Conn:            newRelayConnAdapter(relayConn, client),
		OnClose: func() error {
			client.Close()
			return conn.Close()
		},
	})
	if err != nil {
		a.log.Warnf("Failed to create relay candidate for %s: %v", u, err)
		client.Close()
		_ = conn.Close()
		return
	}

	if err := a.addLocalCandidate(ctx, relay); err != nil {
		a.log.Debugf("Failed to add relay candidate %s: %v", relay, err)
		client.Close()
		_ = conn.Close()
	}
}

// relayConnAdapter permits a relay candidate's WriteTo to create the peer
// permission a TURN relay requires before the first send to a new peer,
// transparently to the connectivity-check code that just calls WriteTo
// (spec §6 "the agent consumes ... create_permission(peer)").
type relayConnAdapter struct {
	relayConn net.PacketConn
	client    *turn.Client

	mu        sync.Mutex
	permitted map[string]struct{}
}

func newRelayConnAdapter(relayConn net.PacketConn, client *turn.Client) *relayConnAdapter {
	return &relayConnAdapter{
		relayConn: relayConn,
		client:    client,
		permitted: make(map[string]struct{}),
	}
}

func (r *relayConnAdapter) ReadFrom(p []byte) (int, net.Addr, error) { return r.relayConn.ReadFrom(p) }

func (r *relayConnAdapter) WriteTo(p []byte, addr net.Addr) (int, error) {
	key := addr.String()
	r.mu.Lock()
	_, ok := r.permitted[key]
	r.mu.Unlock()
	if !ok {
		if err := r.client.CreatePermission(addr); err != nil {
			return 0, fmt.Errorf("turn: create permission for %s: %w", addr, err)
		}
		r.mu.Lock()
		r.permitted[key] = struct{}{}
		r.mu.Unlock()
	}
	return r.relayConn.WriteTo(p, addr)
}

func (r *relayConnAdapter) Close() error                       { return r.relayConn.Close() }
func (r *relayConnAdapter) LocalAddr() net.Addr                { return r.relayConn.LocalAddr() }
func (r *relayConnAdapter) SetDeadline(t time.Time) error      { return r.relayConn.SetDeadline(t) }
func (r *relayConnAdapter) SetReadDeadline(t time.Time) error  { return r.relayConn.SetReadDeadline(t) }
func (r *relayConnAdapter) SetWriteDeadline(t time.Time) error { return r.relayConn.SetWriteDeadline(t) }
