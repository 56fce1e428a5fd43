package ice

import "sync"

// handlerNotifier delivers one kind of agent event (connection state,
// candidate, or selected-pair change) to a user callback strictly in the
// order the transitions happened, on its own goroutine. A callback that
// itself calls back into the Agent is therefore never reentrant with the
// agent loop (spec §5 "a callback that itself mutates agent state is
// queued and runs on the next loop iteration").
type handlerNotifier struct {
	connectionStateFunc func(ConnectionState)
	candidateFunc        func(Candidate)
	candidatePairFunc     func(old, new *CandidatePair)

	mu      sync.Mutex
	queue   []func()
	waking  bool
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

func newHandlerNotifier() *handlerNotifier {
	return &handlerNotifier{done: make(chan struct{})}
}

func (h *handlerNotifier) enqueue(f func()) {
	h.closeMu.Lock()
	closed := h.closed
	h.closeMu.Unlock()
	if closed {
		return
	}

	h.mu.Lock()
	h.queue = append(h.queue, f)
	if h.waking {
		h.mu.Unlock()
		return
	}
	h.waking = true
	h.mu.Unlock()

	go h.drain()
}

func (h *handlerNotifier) drain() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.waking = false
			h.mu.Unlock()
			return
		}
		f := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()
		f()
	}
}

// EnqueueConnectionState schedules an on_connection_state_change callback.
func (h *handlerNotifier) EnqueueConnectionState(s ConnectionState) {
	if h.connectionStateFunc == nil {
		return
	}
	h.enqueue(func() { h.connectionStateFunc(s) })
}

// EnqueueCandidate schedules an on_candidate callback; c == nil signals
// end-of-gathering (spec §6).
func (h *handlerNotifier) EnqueueCandidate(c Candidate) {
	if h.candidateFunc == nil {
		return
	}
	h.enqueue(func() { h.candidateFunc(c) })
}

// EnqueueSelectedCandidatePair schedules an on_selected_candidate_pair_change callback.
func (h *handlerNotifier) EnqueueSelectedCandidatePair(oldPair, newPair *CandidatePair) {
	if h.candidatePairFunc == nil {
		return
	}
	h.enqueue(func() { h.candidatePairFunc(oldPair, newPair) })
}

func (h *handlerNotifier) Close() {
	h.closeMu.Lock()
	h.closed = true
	h.closeMu.Unlock()
}
