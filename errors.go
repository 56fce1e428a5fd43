package ice

import "errors"

// Sentinel errors returned by Agent operations. Group comments mirror the
// error taxonomy in the design spec; wrap with fmt.Errorf("...: %w", Err...)
// where more context is useful.
var (
	// ConfigInvalid: rejected at construction/Restart time, never surfaced
	// as a state transition.
	ErrPort                        = errors.New("ice: portMin must be <= portMax")
	ErrLocalUfragInsufficientBits  = errors.New("ice: local ufrag must have at least 24 bits of entropy")
	ErrLocalPwdInsufficientBits    = errors.New("ice: local pwd must have at least 128 bits of entropy")
	ErrRemoteUfragEmpty            = errors.New("ice: remote ufrag is empty")
	ErrRemotePwdEmpty              = errors.New("ice: remote pwd is empty")
	ErrInvalidMulticastDNSHostName = errors.New("ice: multicast DNS host name must end in .local and have exactly one label before it")
	ErrMulticastDNSWithNAT1To1IPMapping = errors.New(
		"ice: multicast DNS candidate gathering cannot be combined with 1:1 NAT IP mapping")
	ErrLiteUsingNonHostCandidates = errors.New("ice: lite agents must only use host candidates")
	ErrUselessUrlsProvided        = errors.New("ice: STUN/TURN URLs provided but no srflx or relay candidate type enabled")
	ErrUnsupportedNAT1To1IPCandidateType = errors.New("ice: unsupported NAT 1:1 IP candidate type")
	ErrInvalidNAT1To1IPMapping    = errors.New("ice: invalid NAT 1:1 IP mapping entry, expected \"external/local\"")

	// Gathering: per-candidate/per-URL only, never fails Gather() as a whole.
	ErrSTUNGatherTimeout = errors.New("ice: timed out waiting for STUN response")
	ErrRelayAllocation   = errors.New("ice: failed to create TURN allocation")

	// Runtime / protocol.
	ErrAddressParseFailed   = errors.New("ice: failed to parse address")
	ErrMultipleStart        = errors.New("ice: attempted to start agent connectivity checks more than once")
	ErrClosed               = errors.New("ice: the agent is closed")
	ErrCanceled             = errors.New("ice: operation canceled")
	ErrNoCandidatePairs     = errors.New("ice: no candidate pairs available")
	ErrNoPeerMultiplexer    = errors.New("ice: no connection found for ufrag")
	ErrUfragAlreadyBound    = errors.New("ice: ufrag is already bound to a connection in this mux")
	ErrAddrAlreadyBound     = errors.New("ice: address is already bound to a connection in this mux")
	ErrConnClosed           = errors.New("ice: muxed connection is closed")
	ErrSTUNMessageIntegrity = errors.New("ice: STUN MESSAGE-INTEGRITY check failed")
	ErrSTUNFingerprint      = errors.New("ice: STUN FINGERPRINT check failed")
	ErrMismatchedUsername   = errors.New("ice: STUN USERNAME attribute did not match expected ufrag pair")
)
