package ice

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Candidate is a potential transport address usable for a media flow
// (spec §3 "Candidate"). Concrete variants: CandidateHost,
// CandidateServerReflexive, CandidatePeerReflexive, CandidateRelay.
type Candidate interface {
	// Foundation groups candidates that share type, base, and server for
	// freezing/pruning purposes.
	Foundation() string
	// Component is always 1 in this implementation; component 2 (RTCP
	// mux) is out of scope (spec §9b).
	Component() uint16
	// Priority is the RFC 8445 §5.1.2 32-bit priority.
	Priority() uint32
	// Address is the IP or, for mDNS host candidates, the "<uuid>.local"
	// name.
	Address() string
	Port() int
	Type() CandidateType
	NetworkType() NetworkType
	TCPType() TCPType
	// RelatedAddress is the base for srflx/prflx, or the mapped srflx
	// address for relay candidates. Nil for host candidates.
	RelatedAddress() *CandidateRelatedAddress

	// addr is the net.Addr this candidate reads/writes through.
	addr() net.Addr
	// base is the underlying local socket a reflexive/relay candidate was
	// discovered through (itself for host candidates).
	base() Candidate

	// writeTo sends a datagram to dst through this candidate's conn.
	writeTo(buf []byte, dst net.Addr) (int, error)
	// readFrom reads the next datagram arriving on this candidate's conn;
	// the agent's per-candidate receive loop drives this.
	readFrom(buf []byte) (int, net.Addr, error)
	// close releases any resources (sockets, TURN permissions) this
	// candidate owns.
	close() error

	// seen marks traffic activity, driving the liveness detector (spec
	// §4.7). outbound distinguishes writes (LastSent) from reads
	// (LastReceived).
	seen(outbound bool)
	lastSent() time.Time
	lastReceived() time.Time

	Equal(other Candidate) bool
	String() string
}

// CandidateRelatedAddress carries the related-address field of a
// server-reflexive, peer-reflexive, or relay candidate.
type CandidateRelatedAddress struct {
	Address string
	Port    int
}

func (r *CandidateRelatedAddress) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("related %s:%d", r.Address, r.Port)
}

// candidateBase implements the bookkeeping shared by every concrete
// candidate type: priority, foundation, liveness timestamps, transport
// conn. Concrete types embed it and add their own base()/addr()/close().
type candidateBase struct {
	candidateID    string
	networkType    NetworkType
	candidateType  CandidateType
	component      uint16
	address        string
	port           int
	tcpType        TCPType
	foundationOverride string
	relatedAddress *CandidateRelatedAddress

	resolvedAddr net.Addr
	conn         net.PacketConn
	priorityValue uint32

	// baseCandidate is the host candidate a reflexive/relay/peer-reflexive
	// candidate was discovered through, used by checklist pruning (spec §3
	// "srflx pairs whose base equals a host pair are replaced by the host
	// pair"). Nil for host candidates, where base() returns the candidate
	// itself.
	baseCandidate Candidate

	lastSentMu     sync.RWMutex
	lastSentAt     time.Time
	lastReceivedMu sync.RWMutex
	lastReceivedAt time.Time

	closeOnce sync.Once
	closeErr  atomic.Value // error
}

func (c *candidateBase) Component() uint16       { return c.component }
func (c *candidateBase) Address() string         { return c.address }
func (c *candidateBase) Port() int               { return c.port }
func (c *candidateBase) Type() CandidateType      { return c.candidateType }
func (c *candidateBase) NetworkType() NetworkType { return c.networkType }
func (c *candidateBase) TCPType() TCPType         { return c.tcpType }
func (c *candidateBase) RelatedAddress() *CandidateRelatedAddress { return c.relatedAddress }

func (c *candidateBase) addr() net.Addr { return c.resolvedAddr }

func (c *candidateBase) seen(outbound bool) {
	now := time.Now()
	if outbound {
		c.lastSentMu.Lock()
		c.lastSentAt = now
		c.lastSentMu.Unlock()
		return
	}
	c.lastReceivedMu.Lock()
	c.lastReceivedAt = now
	c.lastReceivedMu.Unlock()
}

func (c *candidateBase) lastSent() time.Time {
	c.lastSentMu.RLock()
	defer c.lastSentMu.RUnlock()
	return c.lastSentAt
}

func (c *candidateBase) lastReceived() time.Time {
	c.lastReceivedMu.RLock()
	defer c.lastReceivedMu.RUnlock()
	return c.lastReceivedAt
}

func (c *candidateBase) writeTo(buf []byte, dst net.Addr) (int, error) {
	if c.conn == nil {
		return 0, ErrConnClosed
	}
	n, err := c.conn.WriteTo(buf, dst)
	if err == nil {
		c.seen(true)
	}
	return n, err
}

func (c *candidateBase) readFrom(buf []byte) (int, net.Addr, error) {
	if c.conn == nil {
		return 0, nil, ErrConnClosed
	}
	n, addr, err := c.conn.ReadFrom(buf)
	if err == nil {
		c.seen(false)
	}
	return n, addr, err
}

func (c *candidateBase) close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.conn != nil {
			err = c.conn.Close()
		}
		if err != nil {
			c.closeErr.Store(err)
		}
	})
	if v := c.closeErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Priority returns the precomputed RFC 8445 priority, promoted to every
// concrete candidate type that embeds candidateBase.
func (c *candidateBase) Priority() uint32 { return c.priorityValue }

func (c *candidateBase) Foundation() string {
	if c.foundationOverride != "" {
		return c.foundationOverride
	}
	return c.candidateID
}

// candidatePriority implements RFC 8445 §5.1.2.1:
//
//	priority = (2^24)*(type preference) + (2^8)*(local preference) + (256 - component)
func candidatePriority(typ CandidateType, localPreference uint16, component uint16) uint32 {
	return uint32(typ.typePreference())<<24 |
		uint32(localPreference)<<8 |
		uint32(256-component)
}

// computeFoundation derives the stable foundation string (spec §3): a
// function of type, base IP, STUN/TURN server, and transport, so that two
// candidates discovered through the same base over the same protocol
// collapse to one foundation.
func computeFoundation(typ CandidateType, baseAddress string, serverAddress string, network string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", typ, baseAddress, serverAddress, network)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func candidateEqual(a, b Candidate) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Type() == b.Type() &&
		a.Address() == b.Address() &&
		a.Port() == b.Port() &&
		a.NetworkType() == b.NetworkType() &&
		a.Component() == b.Component()
}
