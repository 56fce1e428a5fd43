package ice

// CandidateType represents the type of candidate, per RFC 8445 §5.1.1.
type CandidateType int

const (
	// CandidateTypeHost is a candidate obtained by binding to a local
	// interface.
	CandidateTypeHost CandidateType = iota + 1
	// CandidateTypeServerReflexive is a candidate learned from a STUN
	// Binding response (the mapped address a STUN server observed).
	CandidateTypeServerReflexive
	// CandidateTypePeerReflexive is a candidate discovered because an
	// inbound check arrived from a source address not already known.
	CandidateTypePeerReflexive
	// CandidateTypeRelay is a candidate allocated on a TURN server.
	CandidateTypeRelay
)

// typePreference returns the RFC 8445 §5.1.2.2 default type preference
// used in the priority formula, in the RFC default order
// host(126) > prflx(110) > srflx(100) > relay(0).
func (t CandidateType) typePreference() uint16 {
	switch t {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelay:
		return 0
	default:
		return 0
	}
}

func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}
