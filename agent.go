package ice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	internalatomic "github.com/webrtcproto/ice/internal/atomic"
	internalstun "github.com/webrtcproto/ice/internal/stun"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"github.com/pion/transport/v4/packetio"
	"github.com/pion/transport/v4/vnet"
)

// task is one closure queued onto the agent's single-threaded loop (spec §5
// "the agent's logical core is a single-threaded cooperative task").
type task struct {
	fn   func(context.Context, *Agent)
	done chan struct{}
}

// Agent implements RFC 8445 Interactive Connectivity Establishment. All
// mutable state (candidate lists, checklist, timers, selected pair) is
// owned exclusively by the agent loop goroutine; every other goroutine
// reaches it only through run().
type Agent struct {
	chanTask   chan task
	afterRunFn []func(context.Context)
	muAfterRun sync.Mutex

	tieBreaker uint64
	lite       bool

	connectionState ConnectionState
	gatheringState  GatheringState

	mDNSMode MulticastDNSMode
	mDNSName string
	mDNSConn *mdnsConn

	muHaveStarted sync.Mutex
	startedCh     <-chan struct{}
	startedFn     func()
	isControlling bool

	maxBindingRequests uint16

	hostAcceptanceMinWait  time.Duration
	srflxAcceptanceMinWait time.Duration
	prflxAcceptanceMinWait time.Duration
	relayAcceptanceMinWait time.Duration

	portMin uint16
	portMax uint16

	candidateTypes []CandidateType
	networkTypes   []NetworkType

	disconnectedTimeout time.Duration
	failedTimeout       time.Duration
	keepaliveInterval   time.Duration
	checkInterval       time.Duration

	enableUseCandidateOnNomination bool

	localUfrag      string
	localPwd        string
	localCandidates map[NetworkType][]Candidate

	remoteUfrag      string
	remotePwd        string
	remoteCandidates map[NetworkType][]Candidate

	checklist checklist
	selector  pairCandidateSelector

	connectivityLoopStarted bool

	selectedPair atomic.Value // *CandidatePair

	urls []*URL

	// 1:1 D-NAT mapping (spec §4.1).
	extIPMapper *externalIPMapper

	transactions transactionTable

	done         chan struct{}
	taskLoopDone chan struct{}
	closeOnce    sync.Once
	err          internalatomic.Error

	gatherCandidateCancel context.CancelFunc
	gatherCandidateDone   chan struct{}

	connectionStateNotifier       *handlerNotifier
	candidateNotifier             *handlerNotifier
	selectedCandidatePairNotifier *handlerNotifier

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	net Net

	udpMux *UDPMux
	tcpMux *TCPMux

	interfaceFilter func(string) bool
	ipFilter        func(net.IP) bool
	includeLoopback bool

	insecureSkipVerify bool

	// dataBuffer holds inbound non-STUN application payloads for the public
	// Conn façade (spec §3 "shared reference to the Agent's read/write
	// façade"); grounded on udpMuxedConn's identical use of packetio.Buffer.
	dataBuffer *packetio.Buffer
}

// run executes fn on the agent loop and blocks until it completes.
func (a *Agent) run(ctx context.Context, fn func(context.Context, *Agent)) error {
	if err := a.ok(); err != nil {
		return err
	}
	done := make(chan struct{})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case a.chanTask <- task{fn, done}:
		<-done
		return nil
	}
}

func (a *Agent) ok() error {
	select {
	case <-a.done:
		return a.getErr()
	default:
	}
	return nil
}

func (a *Agent) getErr() error {
	if err := a.err.Load(); err != nil {
		return err
	}
	return ErrClosed
}

// afterRun registers fn to run once the current task loop iteration
// finishes, outside of the chanTask serialization — used for operations
// (like waiting on the gatherer to stop) that would otherwise deadlock
// against the loop they're queued from.
func (a *Agent) afterRun(fn func(context.Context)) {
	a.muAfterRun.Lock()
	a.afterRunFn = append(a.afterRunFn, fn)
	a.muAfterRun.Unlock()
}

func (a *Agent) getAfterRunFn() []func(context.Context) {
	a.muAfterRun.Lock()
	defer a.muAfterRun.Unlock()
	fns := a.afterRunFn
	a.afterRunFn = nil
	return fns
}

func (a *Agent) context() context.Context { return context.Background() }

func (a *Agent) taskLoop() {
	after := func() {
		for {
			fns := a.getAfterRunFn()
			if len(fns) == 0 {
				return
			}
			for _, fn := range fns {
				fn(a.context())
			}
		}
	}
	defer func() {
		a.deleteAllCandidates()
		a.startedFn()
		a.closeMulticastConn()
		a.updateConnectionState(ConnectionStateClosed)
		after()
		close(a.taskLoopDone)
	}()

	for {
		select {
		case <-a.done:
			return
		case t := <-a.chanTask:
			t.fn(a.context(), a)
			close(t.done)
			after()
		}
	}
}

// NewAgent creates a new Agent from config.
func NewAgent(config *AgentConfig) (*Agent, error) { //nolint:gocognit
	if config.PortMax < config.PortMin {
		return nil, ErrPort
	}

	mDNSName := config.MulticastDNSHostName
	var err error
	if mDNSName == "" {
		if mDNSName, err = generateMulticastDNSName(); err != nil {
			return nil, err
		}
	}
	if !strings.HasSuffix(mDNSName, ".local") || len(strings.Split(mDNSName, ".")) != 2 {
		return nil, ErrInvalidMulticastDNSHostName
	}

	mDNSMode := config.MulticastDNSMode
	if mDNSMode == 0 {
		mDNSMode = MulticastDNSModeQueryOnly
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("ice")

	startedCtx, startedFn := context.WithCancel(context.Background())

	a := &Agent{
		chanTask:              make(chan task),
		tieBreaker:            generateTieBreaker(),
		lite:                  config.Lite,
		gatheringState:        GatheringStateNew,
		connectionState:       ConnectionStateNew,
		localCandidates:       make(map[NetworkType][]Candidate),
		remoteCandidates:      make(map[NetworkType][]Candidate),
		urls:                  config.Urls,
		done:                  make(chan struct{}),
		taskLoopDone:          make(chan struct{}),
		startedCh:             startedCtx.Done(),
		startedFn:             startedFn,
		portMin:               config.PortMin,
		portMax:               config.PortMax,
		loggerFactory:         loggerFactory,
		log:                   log,
		net:                   config.Net,
		udpMux:                config.UDPMux,
		tcpMux:                config.TCPMux,
		mDNSMode:              mDNSMode,
		mDNSName:              mDNSName,
		gatherCandidateCancel: func() {},
		dataBuffer:            packetio.NewBuffer(),
	}
	a.dataBuffer.SetLimitSize(connMaxBufferSize)

	a.connectionStateNotifier = newHandlerNotifier()
	a.candidateNotifier = newHandlerNotifier()
	a.selectedCandidatePairNotifier = newHandlerNotifier()

	if a.net == nil {
		a.net, err = newDefaultNet()
		if err != nil {
			return nil, fmt.Errorf("failed to create network: %w", err)
		}
	} else if _, isVirtual := a.net.(*vnet.Net); isVirtual {
		a.log.Warn("Virtual network is enabled")
	}

	if a.mDNSConn, a.mDNSMode, err = createMulticastDNS(a.net, mDNSMode, mDNSName, log); err != nil {
		log.Warnf("Failed to initialize mDNS %s: %v", mDNSName, err)
	}

	config.initWithDefaults(a)

	if a.lite && (len(a.candidateTypes) != 1 || a.candidateTypes[0] != CandidateTypeHost) {
		a.closeMulticastConn()
		return nil, ErrLiteUsingNonHostCandidates
	}

	if len(config.Urls) > 0 && !containsCandidateType(CandidateTypeServerReflexive, a.candidateTypes) &&
		!containsCandidateType(CandidateTypeRelay, a.candidateTypes) {
		a.closeMulticastConn()
		return nil, ErrUselessUrlsProvided
	}

	if err = config.initExtIPMapping(a); err != nil {
		a.closeMulticastConn()
		return nil, err
	}

	go a.taskLoop()

	if err := a.Restart(config.LocalUfrag, config.LocalPwd); err != nil {
		a.closeMulticastConn()
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

func containsCandidateType(t CandidateType, types []CandidateType) bool {
	for _, c := range types {
		if c == t {
			return true
		}
	}
	return false
}

// Restart restarts the agent with new credentials (auto-generated if
// empty), clearing all candidates and pairs (spec §4.2 "restart(clear_local,
// clear_remote)").
func (a *Agent) Restart(ufrag, pwd string) error {
	if ufrag == "" {
		var err error
		if ufrag, err = generateUfrag(); err != nil {
			return err
		}
	}
	if pwd == "" {
		var err error
		if pwd, err = generatePwd(); err != nil {
			return err
		}
	}
	if ufragBits(ufrag) < minUfragBits {
		return ErrLocalUfragInsufficientBits
	}
	if pwdBits(pwd) < minPwdBits {
		return ErrLocalPwdInsufficientBits
	}

	return a.run(a.context(), func(ctx context.Context, agent *Agent) {
		if agent.gatheringState == GatheringStateGathering {
			agent.gatherCandidateCancel()
		}
		agent.removeUfragFromMux()
		agent.localUfrag = ufrag
		agent.localPwd = pwd
		agent.remoteUfrag = ""
		agent.remotePwd = ""
		agent.gatheringState = GatheringStateNew
		agent.checklist.reset()
		agent.transactions.reset()
		agent.setSelectedPair(nil)
		agent.deleteAllCandidates()
		if agent.selector != nil {
			agent.selector.Start()
		}
		if agent.connectionState != ConnectionStateNew {
			agent.updateConnectionState(ConnectionStateChecking)
		}
	})
}

// SetRemoteCredentials records the remote ufrag/pwd (spec §3 "Credentials").
func (a *Agent) SetRemoteCredentials(remoteUfrag, remotePwd string) error {
	switch {
	case remoteUfrag == "":
		return ErrRemoteUfragEmpty
	case remotePwd == "":
		return ErrRemotePwdEmpty
	}
	return a.run(a.context(), func(ctx context.Context, agent *Agent) {
		agent.remoteUfrag = remoteUfrag
		agent.remotePwd = remotePwd
		agent.maybeStartChecking()
	})
}

// maybeStartChecking transitions New/Gathering -> Checking once remote
// credentials are set and at least one pair exists (spec §4.6), assigning a
// role selector exactly once per connection attempt.
func (a *Agent) maybeStartChecking() {
	if a.remoteUfrag == "" || a.remotePwd == "" {
		return
	}
	if a.connectionState != ConnectionStateNew && a.connectionState != ConnectionStateGathering {
		return
	}
	if len(a.checklist.pairs) == 0 {
		return
	}
	a.startSelector()
	a.updateConnectionState(ConnectionStateChecking)
	a.requestConnectivityCheck()
}

func (a *Agent) startSelector() {
	if a.selector != nil {
		return
	}
	var base pairCandidateSelector
	if a.isControlling {
		base = &controllingSelector{agent: a, log: a.log}
	} else {
		base = &controlledSelector{agent: a, log: a.log}
	}
	if a.lite {
		base = &liteSelector{pairCandidateSelector: base}
	}
	a.selector = base
	a.selector.Start()
	if !a.connectivityLoopStarted {
		a.connectivityLoopStarted = true
		go a.connectivityChecks()
	}
}

// SetIsControlling sets the agent's role before checks start; callers
// (e.g. an SDP layer) decide this from the offer/answer exchange, which is
// out of scope here (spec §1 Non-goals).
func (a *Agent) SetIsControlling(isControlling bool) error {
	return a.run(a.context(), func(ctx context.Context, agent *Agent) {
		agent.isControlling = isControlling
	})
}

func (a *Agent) connectivityChecks() {
	t := time.NewTimer(a.checkInterval)
	defer t.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-t.C:
			if err := a.run(a.context(), func(ctx context.Context, agent *Agent) {
				agent.tick()
			}); err != nil {
				return
			}
			t.Reset(a.tickInterval())
		}
	}
}

// tickInterval is the minimum of every configured timer so the loop runs at
// least as often as the fastest thing it must check (spec §4.5's
// check_interval plus the keepalive/disconnect/failed timers).
func (a *Agent) tickInterval() time.Duration {
	interval := a.checkInterval
	smaller := func(d time.Duration) {
		if d > 0 && d < interval {
			interval = d
		}
	}
	smaller(a.keepaliveInterval)
	smaller(a.disconnectedTimeout)
	smaller(a.failedTimeout)
	return interval
}

func (a *Agent) tick() {
	switch a.connectionState {
	case ConnectionStateFailed, ConnectionStateClosed:
		return
	}
	if a.selector != nil {
		a.selector.ContactCandidates()
	}
	a.checkKeepalive()
	a.validateSelectedPair()
	a.maybeComplete()
}

func (a *Agent) requestConnectivityCheck() {
	// Run one round of the selector's checks now instead of waiting for the
	// next tick; the goroutine loop still owns subsequent scheduling.
	if a.selector != nil {
		a.selector.ContactCandidates()
	}
}

func (a *Agent) updateConnectionState(newState ConnectionState) {
	if a.connectionState == newState {
		return
	}
	if newState == ConnectionStateFailed {
		a.removeUfragFromMux()
		a.checklist.reset()
		a.transactions.reset()
		a.setSelectedPair(nil)
		a.deleteAllCandidates()
	}
	a.log.Infof("Setting new connection state: %s", newState)
	a.connectionState = newState
	a.connectionStateNotifier.EnqueueConnectionState(newState)
}

func (a *Agent) setSelectedPair(p *CandidatePair) {
	old, _ := a.selectedPair.Load().(*CandidatePair)
	if p == nil {
		a.selectedPair.Store((*CandidatePair)(nil))
		a.log.Tracef("Unset selected candidate pair")
		return
	}
	p.nominated = true
	a.selectedPair.Store(p)
	a.log.Tracef("Set selected candidate pair: %s", p)
	a.updateConnectionState(ConnectionStateConnected)
	a.selectedCandidatePairNotifier.EnqueueSelectedCandidatePair(old, p)
}

func (a *Agent) getSelectedPair() *CandidatePair {
	p, _ := a.selectedPair.Load().(*CandidatePair)
	return p
}

// GetSelectedCandidatePair returns the currently selected pair, or nil if
// none has been selected yet.
func (a *Agent) GetSelectedCandidatePair() (*CandidatePair, error) {
	if err := a.ok(); err != nil {
		return nil, err
	}
	return a.getSelectedPair(), nil
}

// OnConnectionStateChange sets the callback fired on every connection
// state transition (spec §5 "on_connection_state_change(State)").
func (a *Agent) OnConnectionStateChange(f func(ConnectionState)) error {
	return a.run(a.context(), func(_ context.Context, agent *Agent) {
		agent.connectionStateNotifier.connectionStateFunc = f
	})
}

// OnSelectedCandidatePairChange sets the callback fired whenever the
// selected pair changes (spec §5 "on_selected_candidate_pair_change(old,
// new)").
func (a *Agent) OnSelectedCandidatePairChange(f func(old, new *CandidatePair)) error {
	return a.run(a.context(), func(_ context.Context, agent *Agent) {
		agent.selectedCandidatePairNotifier.candidatePairFunc = f
	})
}

// OnCandidate sets the callback fired once per gathered local candidate;
// a nil Candidate signals end-of-gathering (spec §5 "on_candidate(Option
// <Candidate>)").
func (a *Agent) OnCandidate(f func(Candidate)) error {
	return a.run(a.context(), func(_ context.Context, agent *Agent) {
		agent.candidateNotifier.candidateFunc = f
	})
}

func (a *Agent) addPair(local, remote Candidate) *CandidatePair {
	added := a.checklist.add([]Candidate{local}, []Candidate{remote}, a.isControlling)
	if len(added) == 0 {
		return a.checklist.find(local, remote)
	}
	return added[0]
}

func (a *Agent) findPair(local, remote Candidate) *CandidatePair {
	return a.checklist.find(local, remote)
}

// AddRemoteCandidate adds a remote candidate and pairs it against every
// compatible local candidate (spec §4.2 "add_remote(c)").
func (a *Agent) AddRemoteCandidate(c Candidate) error {
	if c == nil {
		return nil
	}
	if c.Type() == CandidateTypeHost && strings.HasSuffix(c.Address(), ".local") {
		if a.mDNSMode == MulticastDNSModeDisabled {
			a.log.Warnf("Remote mDNS candidate added, but mDNS is disabled: (%s)", c.Address())
			return nil
		}
		hostCandidate, ok := c.(*CandidateHost)
		if !ok {
			return ErrAddressParseFailed
		}
		go a.resolveAndAddMulticastCandidate(hostCandidate)
		return nil
	}
	return a.run(a.context(), func(ctx context.Context, agent *Agent) {
		agent.addRemoteCandidate(c)
	})
}

func (a *Agent) addRemoteCandidate(c Candidate) {
	set := a.remoteCandidates[c.NetworkType()]
	for _, candidate := range set {
		if candidate.Equal(c) {
			return
		}
	}
	a.remoteCandidates[c.NetworkType()] = append(set, c)

	if localCandidates, ok := a.localCandidates[c.NetworkType()]; ok {
		for _, lc := range localCandidates {
			a.addPair(lc, c)
		}
	}
	a.maybeStartChecking()
	a.requestConnectivityCheck()
}

func (a *Agent) resolveAndAddMulticastCandidate(c *CandidateHost) {
	if a.mDNSConn == nil {
		return
	}
	ip, err := a.mDNSConn.query(context.Background(), c.Address())
	if err != nil {
		a.log.Warnf("Failed to discover mDNS candidate %s: %v", c.Address(), err)
		return
	}
	if err := c.setIP(ip); err != nil {
		a.log.Warnf("Failed to discover mDNS candidate %s: %v", c.Address(), err)
		return
	}
	if err := a.run(a.context(), func(ctx context.Context, agent *Agent) {
		agent.addRemoteCandidate(c)
	}); err != nil {
		a.log.Warnf("Failed to add mDNS candidate %s: %v", c.Address(), err)
	}
}

// addLocalCandidate registers a freshly gathered local candidate, pairs it
// against every compatible remote candidate, and announces it.
func (a *Agent) addLocalCandidate(ctx context.Context, c Candidate) error {
	return a.run(ctx, func(ctx context.Context, agent *Agent) {
		set := agent.localCandidates[c.NetworkType()]
		for _, candidate := range set {
			if candidate.Equal(c) {
				a.log.Debugf("Ignore duplicate candidate: %s", c)
				_ = c.close()
				return
			}
		}
		agent.localCandidates[c.NetworkType()] = append(set, c)
		go agent.recvLoop(c)

		if remoteCandidates, ok := agent.remoteCandidates[c.NetworkType()]; ok {
			for _, rc := range remoteCandidates {
				agent.addPair(c, rc)
			}
		}
		agent.candidateNotifier.EnqueueCandidate(c)
		agent.maybeStartChecking()
		agent.requestConnectivityCheck()
	})
}

// recvLoop reads datagrams from a local candidate's socket for the
// lifetime of the agent, handing each to handleInbound (spec §5 "one reader
// per listening UDP socket ... forwarding parsed messages to the agent
// loop").
func (a *Agent) recvLoop(local Candidate) {
	buf := make([]byte, receiveMTU)
	for {
		n, srcAddr, err := local.readFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if err := a.run(a.context(), func(ctx context.Context, agent *Agent) {
			agent.handleInboundPacket(data, local, srcAddr)
		}); err != nil {
			return
		}
	}
}

const receiveMTU = 1500

func (a *Agent) handleInboundPacket(buf []byte, local Candidate, remote net.Addr) {
	if stun.IsMessage(buf) {
		m := &stun.Message{Raw: append([]byte(nil), buf...)}
		if err := m.Decode(); err != nil {
			a.log.Tracef("Failed to decode STUN message from %s: %v", remote, err)
			return
		}
		a.handleInbound(m, local, remote)
		return
	}
	// Non-STUN application traffic: refresh liveness for the known remote
	// candidate on this pair (spec §4.7) and, if it arrived on the selected
	// pair, hand it to the public Conn façade.
	if rc := a.findRemoteCandidate(local.NetworkType(), remote); rc != nil {
		rc.seen(false)
	}
	a.deliverApplicationData(buf, local, remote)
}

func (a *Agent) findRemoteCandidate(networkType NetworkType, addr net.Addr) Candidate {
	ip, port, _, ok := internalstun.ParseAddr(addr)
	if !ok {
		return nil
	}
	for _, c := range a.remoteCandidates[networkType] {
		if c.Address() == ip.String() && c.Port() == port {
			return c
		}
	}
	return nil
}

// handleInbound processes a decoded STUN message from a remote candidate
// (spec §4.4).
func (a *Agent) handleInbound(m *stun.Message, local Candidate, remote net.Addr) { //nolint:gocognit
	if m.Type.Method != stun.MethodBinding ||
		!(m.Type.Class == stun.ClassSuccessResponse || m.Type.Class == stun.ClassErrorResponse ||
			m.Type.Class == stun.ClassRequest || m.Type.Class == stun.ClassIndication) {
		return
	}

	// Requests carrying our own role's attribute are a role conflict and are
	// resolved by the selector; other classes with that attribute are dropped.
	if m.Type.Class != stun.ClassRequest {
		if a.isControlling {
			if m.Contains(attrICEControlling) {
				return
			}
		} else if m.Contains(attrICEControlled) {
			return
		}
	}

	remoteCandidate := a.findRemoteCandidate(local.NetworkType(), remote)

	switch m.Type.Class {
	case stun.ClassSuccessResponse:
		if err := stun.MessageIntegrity([]byte(a.remotePwd)).Check(m); err != nil {
			a.log.Warnf("Discard message from (%s): %v", remote, err)
			return
		}
		if remoteCandidate == nil {
			a.log.Warnf("Discard success message from (%s), no such remote", remote)
			return
		}
		a.selector.HandleSuccessResponse(m, local, remoteCandidate, remote)

	case stun.ClassErrorResponse:
		if tr, _, ok := a.transactions.take(m.TransactionID); ok && tr.pair != nil {
			tr.pair.state = CandidatePairStateFailed
		}

	case stun.ClassRequest:
		if err := internalstun.AssertUsername(m, a.localUfrag+":"+a.remoteUfrag); err != nil {
			a.log.Warnf("Discard message from (%s): %v", remote, err)
			return
		}
		if err := stun.MessageIntegrity([]byte(a.localPwd)).Check(m); err != nil {
			a.sendBindingError(m, local, remote)
			return
		}

		if remoteCandidate == nil {
			ip, port, isTCP, ok := internalstun.ParseAddr(remote)
			if !ok {
				a.log.Errorf("Failed to parse remote addr for prflx candidate: %s", remote)
				return
			}
			network := "udp"
			if isTCP {
				network = "tcp"
			}
			var priority priorityAttr
			if err := priority.GetFrom(m); err != nil {
				a.log.Warnf("Inbound request missing PRIORITY attribute from %s", remote)
				return
			}
			prflx, err := NewCandidatePeerReflexive(&CandidatePeerReflexiveConfig{
				Network:   network,
				Address:   ip.String(),
				Port:      port,
				Component: local.Component(),
				Priority:  uint32(priority),
			})
			if err != nil {
				a.log.Errorf("Failed to create peer-reflexive candidate: %v", err)
				return
			}
			a.log.Debugf("Adding a new peer-reflexive candidate: %s", remote)
			a.addRemoteCandidate(prflx)
			remoteCandidate = prflx
		}

		a.selector.HandleBindingRequest(m, local, remoteCandidate)
	}

	if remoteCandidate != nil {
		remoteCandidate.seen(false)
	}
}

func (a *Agent) sendBindingError(request *stun.Message, local Candidate, remote net.Addr) {
	out, err := newBindingError(request, stun.CodeUnauthorized)
	if err != nil {
		a.log.Warnf("Failed to build Binding error response: %v", err)
		return
	}
	if _, err := local.writeTo(out.Raw, remote); err != nil {
		a.log.Warnf("Failed to send Binding error response: %v", err)
	}
}

// GetLocalCandidates returns every gathered local candidate.
func (a *Agent) GetLocalCandidates() ([]Candidate, error) {
	var res []Candidate
	err := a.run(a.context(), func(ctx context.Context, agent *Agent) {
		for _, set := range agent.localCandidates {
			res = append(res, set...)
		}
	})
	return res, err
}

// GetRemoteCandidates returns every known remote candidate.
func (a *Agent) GetRemoteCandidates() ([]Candidate, error) {
	var res []Candidate
	err := a.run(a.context(), func(ctx context.Context, agent *Agent) {
		for _, set := range agent.remoteCandidates {
			res = append(res, set...)
		}
	})
	return res, err
}

// GetLocalUserCredentials returns the local ufrag/pwd.
func (a *Agent) GetLocalUserCredentials() (frag, pwd string, err error) {
	err = a.run(a.context(), func(ctx context.Context, agent *Agent) {
		frag = agent.localUfrag
		pwd = agent.localPwd
	})
	return frag, pwd, err
}

// GetRemoteUserCredentials returns the remote ufrag/pwd.
func (a *Agent) GetRemoteUserCredentials() (frag, pwd string, err error) {
	err = a.run(a.context(), func(ctx context.Context, agent *Agent) {
		frag = agent.remoteUfrag
		pwd = agent.remotePwd
	})
	return frag, pwd, err
}

func (a *Agent) removeUfragFromMux() {
	if a.udpMux != nil && a.localUfrag != "" {
		a.udpMux.RemoveConnByUfrag(a.localUfrag)
	}
	if a.tcpMux != nil && a.localUfrag != "" {
		a.tcpMux.RemoveConnByUfrag(a.localUfrag)
	}
}

func (a *Agent) deleteAllCandidates() {
	for nt, cs := range a.localCandidates {
		for _, c := range cs {
			if err := c.close(); err != nil {
				a.log.Warnf("Failed to close candidate %s: %v", c, err)
			}
		}
		delete(a.localCandidates, nt)
	}
	for nt, cs := range a.remoteCandidates {
		for _, c := range cs {
			if err := c.close(); err != nil {
				a.log.Warnf("Failed to close candidate %s: %v", c, err)
			}
		}
		delete(a.remoteCandidates, nt)
	}
}

func (a *Agent) closeMulticastConn() {
	if a.mDNSConn != nil {
		if err := a.mDNSConn.close(); err != nil {
			a.log.Warnf("Failed to close mDNS conn: %v", err)
		}
	}
}

// Close releases every resource the agent owns. Idempotent (spec §5
// "close() is idempotent").
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if e := a.ok(); e != nil {
			if errors.Is(e, ErrClosed) {
				return
			}
		}
		a.afterRun(func(context.Context) {
			if a.gatherCandidateCancel != nil {
				a.gatherCandidateCancel()
			}
			if a.gatherCandidateDone != nil {
				<-a.gatherCandidateDone
			}
		})
		a.err.Store(ErrClosed)
		a.removeUfragFromMux()
		close(a.done)
		<-a.taskLoopDone
		a.connectionStateNotifier.Close()
		a.candidateNotifier.Close()
		a.selectedCandidatePairNotifier.Close()
		_ = a.dataBuffer.Close()
	})
	return err
}
