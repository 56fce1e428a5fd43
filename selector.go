package ice

import (
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
)

// pairCandidateSelector is the Role & Selection state machine (C6) coupled
// to the Connectivity Check Scheduler (C5): it decides which pairs to ping,
// how to react to responses, and how/when to nominate. Exactly one
// implementation is active for the lifetime of a connection attempt,
// chosen by role in Agent.startSelector (spec §4.5/§4.6).
type pairCandidateSelector interface {
	Start()
	ContactCandidates()
	PingCandidate(local, remote Candidate)
	HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr)
	HandleBindingRequest(m *stun.Message, local, remote Candidate)
}

// acceptanceMinWait returns the configured minimum wait before a valid pair
// of this candidate type may be nominated (spec §4.6 "Acceptance min-wait").
func acceptanceMinWait(a *Agent, t CandidateType) time.Duration {
	switch t {
	case CandidateTypeHost:
		return a.hostAcceptanceMinWait
	case CandidateTypeServerReflexive:
		return a.srflxAcceptanceMinWait
	case CandidateTypePeerReflexive:
		return a.prflxAcceptanceMinWait
	case CandidateTypeRelay:
		return a.relayAcceptanceMinWait
	default:
		return 0
	}
}

func (a *Agent) pingCandidate(local, remote Candidate, useCandidate bool) {
	useCandidate = useCandidate || (a.isControlling && a.enableUseCandidateOnNomination)
	username := a.remoteUfrag + ":" + a.localUfrag
	m, err := newBindingRequest(username, a.remotePwd, local.Priority(), a.isControlling, a.tieBreaker, useCandidate)
	if err != nil {
		a.log.Warnf("Failed to build Binding request: %v", err)
		return
	}
	pair := a.findPair(local, remote)
	if pair != nil {
		pair.currentTransactionID = m.TransactionID
		a.transactions.add(outboundTransaction{
			transactionID:  m.TransactionID,
			pair:           pair,
			startedAt:      time.Now(),
			isUseCandidate: useCandidate,
		})
	}
	if _, err := local.writeTo(m.Raw, remote.addr()); err != nil {
		a.log.Warnf("Failed to send Binding request to %s: %v", remote, err)
	}
}

// pingAllWaitingOrInProgress drives the ordinary-check half of spec §4.5:
// every Waiting pair is promoted to InProgress and pinged; pairs already
// InProgress are re-pinged (retransmission) until max_binding_requests is
// exhausted, at which point they fail.
func (a *Agent) pingAllWaitingOrInProgress(useCandidateFor *CandidatePair) {
	if len(a.checklist.pairs) == 0 {
		a.log.Trace("Pinging without candidate pairs")
		return
	}
	for _, p := range a.checklist.pairs {
		switch p.state {
		case CandidatePairStateWaiting:
			p.state = CandidatePairStateInProgress
		case CandidatePairStateInProgress:
		default:
			continue
		}
		if p.bindingRequestCount >= a.maxBindingRequests {
			a.log.Tracef("Maximum requests reached for pair %s, marking failed", p)
			p.state = CandidatePairStateFailed
			continue
		}
		p.bindingRequestCount++
		a.pingCandidate(p.Local, p.Remote, p == useCandidateFor)
	}
}

func (a *Agent) handleSuccessResponseCommon(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) (*CandidatePair, bool) {
	pair := a.findPair(local, remote)
	if pair == nil {
		a.log.Warnf("Success response for unknown pair %s <-> %s", local, remote)
		return nil, false
	}
	tr, rtt, ok := a.transactions.take(m.TransactionID)
	if !ok || tr.pair != pair {
		a.log.Tracef("Discarding STUN success response from %s, transaction unknown or mismatched", remoteAddr)
		return pair, false
	}
	pair.addRTT(rtt)
	pair.state = CandidatePairStateSucceeded
	pair.firstValidAt = time.Now()
	return pair, true
}

// ----- controlling -----

type controllingSelector struct {
	agent         *Agent
	log           logging.LeveledLogger
	startTime     time.Time
	nominatedPair *CandidatePair
}

func (s *controllingSelector) Start() {
	s.startTime = time.Now()
	s.nominatedPair = nil
}

func (s *controllingSelector) isNominatable(c Candidate) bool {
	return time.Since(s.startTime) >= acceptanceMinWait(s.agent, c.Type())
}

func (s *controllingSelector) ContactCandidates() {
	a := s.agent
	if s.nominatedPair != nil {
		return
	}
	if best := a.checklist.bestValid(true); best != nil && s.isNominatable(best.Local) {
		s.nominatedPair = best
		best.bindingRequestCount++
		a.pingCandidate(best.Local, best.Remote, true)
		return
	}
	var useCandidateFor *CandidatePair
	if a.enableUseCandidateOnNomination {
		useCandidateFor = a.checklist.bestWaiting(true)
	}
	a.pingAllWaitingOrInProgress(useCandidateFor)
}

func (s *controllingSelector) PingCandidate(local, remote Candidate) {
	pair := s.agent.findPair(local, remote)
	useCandidate := s.agent.enableUseCandidateOnNomination || (s.nominatedPair != nil && pair == s.nominatedPair)
	s.agent.pingCandidate(local, remote, useCandidate)
}

func (s *controllingSelector) HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) {
	pair, ok := s.agent.handleSuccessResponseCommon(m, local, remote, remoteAddr)
	if !ok || pair == nil {
		return
	}
	if pair == s.nominatedPair || (s.nominatedPair == nil && pair.nominated) {
		pair.nominated = true
		s.agent.setSelectedPair(pair)
	}
}

func (s *controllingSelector) HandleBindingRequest(m *stun.Message, local, remote Candidate) {
	a := s.agent
	if a.resolveRoleConflict(m, true) {
		a.selector.HandleBindingRequest(m, local, remote)
		return
	}
	pair := a.findPair(local, remote)
	if pair == nil {
		pair = a.addPair(local, remote)
	}
	if pair.state != CandidatePairStateInProgress && pair.state != CandidatePairStateSucceeded {
		pair.state = CandidatePairStateInProgress
		pair.bindingRequestCount++
		a.pingCandidate(local, remote, false)
	}
	a.sendBindingSuccess(m, local, remote)
}

// ----- controlled -----

type controlledSelector struct {
	agent *Agent
	log   logging.LeveledLogger
}

func (s *controlledSelector) Start() {}

func (s *controlledSelector) ContactCandidates() {
	a := s.agent
	if a.getSelectedPair() != nil {
		return
	}
	a.pingAllWaitingOrInProgress(nil)
}

func (s *controlledSelector) PingCandidate(local, remote Candidate) {
	s.agent.pingCandidate(local, remote, false)
}

func (s *controlledSelector) HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) {
	s.agent.handleSuccessResponseCommon(m, local, remote, remoteAddr)
	// The controlled side never selects from a bare success; it waits for
	// a request carrying USE-CANDIDATE (spec §4.6 "record nominated=true
	// when a succeeded check carries USE-CANDIDATE").
}

func (s *controlledSelector) HandleBindingRequest(m *stun.Message, local, remote Candidate) {
	a := s.agent
	if a.resolveRoleConflict(m, false) {
		a.selector.HandleBindingRequest(m, local, remote)
		return
	}
	pair := a.findPair(local, remote)
	if pair == nil {
		pair = a.addPair(local, remote)
	}
	if pair.state != CandidatePairStateInProgress && pair.state != CandidatePairStateSucceeded {
		pair.state = CandidatePairStateInProgress
		pair.bindingRequestCount++
		a.pingCandidate(local, remote, false)
	}
	a.sendBindingSuccess(m, local, remote)

	if m.Contains(attrUseCandidate) {
		pair.nominated = true
		if pair.state == CandidatePairStateSucceeded {
			a.setSelectedPair(pair)
		}
	}
}

// ----- lite -----

// liteSelector decorates another selector for a lite agent (spec §4.6 "For
// lite agents, Checking is skipped; the first valid remote pair is selected
// without checks"): it runs no ordinary checks. The triggered checks the
// inner selector sends in reply to inbound requests can still move a pair
// to Succeeded, and ContactCandidates then selects the best valid pair.
type liteSelector struct {
	pairCandidateSelector
}

func (s *liteSelector) ContactCandidates() {
	// A lite agent never initiates connectivity checks; it can only
	// validate what has already succeeded via inbound requests.
	if pair := s.agent().checklist.bestValid(false); pair != nil {
		s.agent().setSelectedPair(pair)
	}
}

func (s *liteSelector) agent() *Agent {
	switch inner := s.pairCandidateSelector.(type) {
	case *controllingSelector:
		return inner.agent
	case *controlledSelector:
		return inner.agent
	default:
		return nil
	}
}

func (a *Agent) sendBindingSuccess(m *stun.Message, local, remote Candidate) {
	ip, port, _, ok := parseAddrFromCandidate(remote)
	if !ok {
		a.log.Warnf("Failed to parse remote candidate address: %s", remote)
		return
	}
	out, err := newBindingSuccess(m, a.localPwd, stunAddr{IP: ip, Port: port})
	if err != nil {
		a.log.Warnf("Failed to build Binding success response: %v", err)
		return
	}
	if _, err := local.writeTo(out.Raw, remote.addr()); err != nil {
		a.log.Warnf("Failed to send Binding success response: %v", err)
	}
}

func parseAddrFromCandidate(c Candidate) (net.IP, int, bool, bool) {
	ip := net.ParseIP(c.Address())
	if ip == nil {
		return nil, 0, false, false
	}
	return ip, c.Port(), c.NetworkType().IsTCP(), true
}

// resolveRoleConflict implements spec §4.4 "Role conflict": if the inbound
// request carries the same-direction ICE-CONTROL(LED|LING) attribute as our
// own role with a tie-breaker higher than ours, we lose and flip role,
// reporting true so the caller reprocesses the request under the new
// selector. Otherwise our role is kept and false is reported.
func (a *Agent) resolveRoleConflict(m *stun.Message, weAreControlling bool) bool {
	var peerTieBreaker uint64
	var err error
	if weAreControlling {
		if !m.Contains(attrICEControlling) {
			return false
		}
		peerTieBreaker, err = getTieBreaker(m, attrICEControlling)
	} else {
		if !m.Contains(attrICEControlled) {
			return false
		}
		peerTieBreaker, err = getTieBreaker(m, attrICEControlled)
	}
	if err != nil || a.tieBreaker >= peerTieBreaker {
		return false
	}

	a.isControlling = !weAreControlling
	a.selector = nil
	a.startSelector()
	return true
}
