package ice

import "sort"

// checklist is the priority-ordered, pruned list of pairs a single
// component probes (spec §3 "Checklist", §4.2).
type checklist struct {
	pairs []*CandidatePair
}

// add inserts a new pair for every compatible (same IP family, same
// transport) combination of local x remote candidates not already present,
// then re-sorts and prunes. Mirrors Candidate Pool & Pair Former (C2).
func (cl *checklist) add(local []Candidate, remote []Candidate, localIsControlling bool) []*CandidatePair {
	var added []*CandidatePair
	for _, l := range local {
		for _, r := range remote {
			if !candidatesCompatible(l, r) {
				continue
			}
			if cl.find(l, r) != nil {
				continue
			}
			p := newCandidatePair(l, r, localIsControlling)
			cl.pairs = append(cl.pairs, p)
			added = append(added, p)
		}
	}
	cl.sortAndPrune(localIsControlling)
	return added
}

func candidatesCompatible(local, remote Candidate) bool {
	localIsIPv6 := local.NetworkType() == NetworkTypeUDP6 || local.NetworkType() == NetworkTypeTCP6
	remoteIsIPv6 := remote.NetworkType() == NetworkTypeUDP6 || remote.NetworkType() == NetworkTypeTCP6
	if localIsIPv6 != remoteIsIPv6 {
		return false
	}
	if local.NetworkType().IsUDP() != remote.NetworkType().IsUDP() {
		return false
	}
	if local.NetworkType().IsTCP() {
		// An active candidate only ever dials a passive one, and vice
		// versa; simultaneous-open pairs with either.
		switch {
		case local.TCPType() == TCPTypeActive && remote.TCPType() != TCPTypePassive && remote.TCPType() != TCPTypeSimultaneousOpen:
			return false
		case local.TCPType() == TCPTypePassive && remote.TCPType() != TCPTypeActive && remote.TCPType() != TCPTypeSimultaneousOpen:
			return false
		}
	}
	return true
}

func (cl *checklist) find(local, remote Candidate) *CandidatePair {
	for _, p := range cl.pairs {
		if p.equalEndpoints(local, remote) {
			return p
		}
	}
	return nil
}

// sortAndPrune orders the checklist by descending pair priority and drops
// redundant pairs (spec §3 "Checklist" pruning rule):
//   - pairs with identical (local foundation, remote candidate) collapse to
//     the highest-priority survivor.
//   - a srflx pair whose local base equals an existing host pair's local
//     candidate is replaced by the host pair.
func (cl *checklist) sortAndPrune(localIsControlling bool) {
	sort.SliceStable(cl.pairs, func(i, j int) bool {
		return cl.pairs[i].Priority(localIsControlling) > cl.pairs[j].Priority(localIsControlling)
	})

	type key struct {
		foundation string
		remote     Candidate
	}
	seen := make(map[key]bool)
	pruned := cl.pairs[:0:0]
	for _, p := range cl.pairs {
		k := key{foundation: p.Local.Foundation(), remote: p.Remote}
		if seen[k] {
			continue
		}
		seen[k] = true
		pruned = append(pruned, p)
	}

	// Replace srflx pairs with the host pair that has the same remote
	// candidate and the same local base.
	type hostKey struct {
		remote Candidate
		base   Candidate
	}
	hostPairs := make(map[hostKey]bool)
	for _, p := range pruned {
		if p.Local.Type() == CandidateTypeHost {
			hostPairs[hostKey{remote: p.Remote, base: p.Local.base()}] = true
		}
	}
	final := pruned[:0:0]
	skip := make(map[*CandidatePair]bool)
	for _, p := range pruned {
		if p.Local.Type() == CandidateTypeServerReflexive && hostPairs[hostKey{remote: p.Remote, base: p.Local.base()}] {
			skip[p] = true
		}
	}
	for _, p := range pruned {
		if !skip[p] {
			final = append(final, p)
		}
	}
	cl.pairs = final
}

// bestWaiting returns the highest-priority pair still in CandidatePairStateWaiting.
func (cl *checklist) bestWaiting(localIsControlling bool) *CandidatePair {
	for _, p := range cl.pairs { // already sorted descending
		if p.state == CandidatePairStateWaiting {
			return p
		}
	}
	return nil
}

// bestValid returns the highest-priority pair in CandidatePairStateSucceeded.
func (cl *checklist) bestValid(localIsControlling bool) *CandidatePair {
	var best *CandidatePair
	for _, p := range cl.pairs {
		if p.state != CandidatePairStateSucceeded {
			continue
		}
		if best == nil || p.Priority(localIsControlling) > best.Priority(localIsControlling) {
			best = p
		}
	}
	return best
}

// allFailed reports whether every pair has failed, used by the Fatal error
// kind (spec §7): "all pairs failed AND no new candidates possible".
func (cl *checklist) allFailed() bool {
	if len(cl.pairs) == 0 {
		return false
	}
	for _, p := range cl.pairs {
		if p.state != CandidatePairStateFailed {
			return false
		}
	}
	return true
}

// allTerminal reports whether every pair has either succeeded or failed,
// i.e. none remain Waiting/InProgress and so no higher-priority pair can
// still arrive (spec §4.6 "Completed" transition).
func (cl *checklist) allTerminal() bool {
	if len(cl.pairs) == 0 {
		return false
	}
	for _, p := range cl.pairs {
		if p.state != CandidatePairStateFailed && p.state != CandidatePairStateSucceeded {
			return false
		}
	}
	return true
}

func (cl *checklist) reset() { cl.pairs = nil }
