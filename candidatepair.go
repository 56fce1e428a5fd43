package ice

import (
	"fmt"
	"time"
)

// CandidatePair is an unordered {local, remote} pair whose transports are
// compatible (spec §3 "Candidate Pair").
type CandidatePair struct {
	Local  Candidate
	Remote Candidate

	state CandidatePairState

	// nominated is set once either side has observed USE-CANDIDATE for
	// this pair (spec §4.6).
	nominated bool

	// bindingRequestCount counts outstanding-plus-sent Binding requests on
	// this pair, checked against AgentConfig.MaxBindingRequests.
	bindingRequestCount uint16

	// currentTransactionID is the in-flight check's STUN transaction id,
	// used to match the response back to this pair (spec §3
	// "Transaction").
	currentTransactionID [stunTransactionIDSize]byte

	rtt []time.Duration

	firstValidAt time.Time
}

func newCandidatePair(local, remote Candidate, controllingPriorityIsLocal bool) *CandidatePair {
	return &CandidatePair{
		Local:  local,
		Remote: remote,
		state:  CandidatePairStateWaiting,
	}
}

// pairPriority implements the RFC 8445 §5.1.2.3 pair-priority formula:
//
//	pair_prio = 2^32*min(G,D) + 2*max(G,D) + (G>D ? 1 : 0)
//
// where G is the priority of the controlling agent's candidate and D is
// the priority of the controlled agent's candidate.
func pairPriority(local, remote Candidate, localIsControlling bool) uint64 {
	var g, d uint64
	if localIsControlling {
		g, d = uint64(local.Priority()), uint64(remote.Priority())
	} else {
		g, d = uint64(remote.Priority()), uint64(local.Priority())
	}
	min, max := g, d
	if min > max {
		min, max = max, min
	}
	prio := min<<32 + max*2
	if g > d {
		prio++
	}
	return prio
}

// Priority returns this pair's priority given the agent's current role.
func (p *CandidatePair) Priority(localIsControlling bool) uint64 {
	return pairPriority(p.Local, p.Remote, localIsControlling)
}

// State reports the pair's connectivity-check state.
func (p *CandidatePair) State() CandidatePairState { return p.state }

// Nominated reports whether USE-CANDIDATE has been observed for this pair.
func (p *CandidatePair) Nominated() bool { return p.nominated }

func (p *CandidatePair) addRTT(d time.Duration) {
	p.rtt = append(p.rtt, d)
	if len(p.rtt) > 16 {
		p.rtt = p.rtt[len(p.rtt)-16:]
	}
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("prio(?) %s <-> %s [%s nominated=%v]", p.Local, p.Remote, p.state, p.nominated)
}

func (p *CandidatePair) equalEndpoints(local, remote Candidate) bool {
	return p.Local.Equal(local) && p.Remote.Equal(remote)
}
