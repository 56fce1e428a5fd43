// Package ice implements the Interactive Connectivity Establishment (ICE)
// protocol defined in RFC 8445: discovering network paths between two
// peers behind NATs/firewalls, probing them with STUN connectivity checks,
// selecting one, and monitoring it for the lifetime of the session.
//
// The Agent is the only exported entry point. Everything upstream of the
// selected candidate pair (DTLS, SRTP, SCTP, RTP/RTCP, SDP) is treated as
// an external collaborator and is out of scope for this package.
package ice
