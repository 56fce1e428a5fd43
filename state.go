package ice

// ConnectionState captures the agent's monotonic lifecycle (spec §3/§4.6).
type ConnectionState int

const (
	// ConnectionStateNew is the initial state.
	ConnectionStateNew ConnectionState = iota + 1
	// ConnectionStateGathering means gather() is collecting local
	// candidates; the agent has not yet formed or checked any pairs.
	ConnectionStateGathering
	// ConnectionStateChecking means connectivity checks are being sent
	// over the checklist.
	ConnectionStateChecking
	// ConnectionStateConnected means a nominated pair has succeeded.
	ConnectionStateConnected
	// ConnectionStateCompleted means the controlling side's nomination
	// sequence is exhausted and no better candidate can arrive.
	ConnectionStateCompleted
	// ConnectionStateDisconnected means liveness was lost but the agent
	// may still recover.
	ConnectionStateDisconnected
	// ConnectionStateFailed is terminal aside from an explicit Restart.
	ConnectionStateFailed
	// ConnectionStateClosed is terminal; no further transitions occur.
	ConnectionStateClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionStateNew:
		return "New"
	case ConnectionStateGathering:
		return "Gathering"
	case ConnectionStateChecking:
		return "Checking"
	case ConnectionStateConnected:
		return "Connected"
	case ConnectionStateCompleted:
		return "Completed"
	case ConnectionStateDisconnected:
		return "Disconnected"
	case ConnectionStateFailed:
		return "Failed"
	case ConnectionStateClosed:
		return "Closed"
	default:
		return "Invalid"
	}
}

// GatheringState tracks the candidate-gathering lifecycle independently of
// ConnectionState.
type GatheringState int

const (
	// GatheringStateNew means gathering has not yet started.
	GatheringStateNew GatheringState = iota + 1
	// GatheringStateGathering means gather() is in progress.
	GatheringStateGathering
	// GatheringStateComplete means every URL/interface has either yielded
	// a candidate or timed out; the final nil on_candidate event has
	// fired.
	GatheringStateComplete
)

func (g GatheringState) String() string {
	switch g {
	case GatheringStateNew:
		return "New"
	case GatheringStateGathering:
		return "Gathering"
	case GatheringStateComplete:
		return "Complete"
	default:
		return "Invalid"
	}
}

// CandidatePairState is the per-pair connectivity-check state (spec §3).
type CandidatePairState int

const (
	// CandidatePairStateWaiting means the pair has not been checked yet.
	CandidatePairStateWaiting CandidatePairState = iota + 1
	// CandidatePairStateInProgress means a check is outstanding.
	CandidatePairStateInProgress
	// CandidatePairStateFailed means max_binding_requests was exhausted,
	// or an error response was received.
	CandidatePairStateFailed
	// CandidatePairStateSucceeded means the last check got a valid
	// response.
	CandidatePairStateSucceeded
)

func (s CandidatePairState) String() string {
	switch s {
	case CandidatePairStateWaiting:
		return "waiting"
	case CandidatePairStateInProgress:
		return "in-progress"
	case CandidatePairStateFailed:
		return "failed"
	case CandidatePairStateSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}
