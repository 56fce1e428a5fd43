package ice

import (
	"encoding/binary"

	"github.com/pion/stun/v3"
)

// ICE-specific STUN attributes (RFC 8445 §16.1). These are not part of the
// generic STUN core attribute table, so the agent defines its own
// Setter/Getter types around github.com/pion/stun/v3's raw Add/Get, the
// same way the gold-standard pion/ice agent.go's sibling files do.
const (
	attrPriority       stun.AttrType = 0x0024
	attrUseCandidate   stun.AttrType = 0x0025
	attrICEControlled  stun.AttrType = 0x8029
	attrICEControlling stun.AttrType = 0x802A
)

// priorityAttr is a Setter/Getter for the PRIORITY attribute.
type priorityAttr uint32

func (p priorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(p))
	m.Add(attrPriority, v)
	return nil
}

func (p *priorityAttr) GetFrom(m *stun.Message) error {
	v, err := m.Get(attrPriority)
	if err != nil {
		return err
	}
	if len(v) < 4 {
		return stun.ErrAttributeSizeInvalid
	}
	*p = priorityAttr(binary.BigEndian.Uint32(v))
	return nil
}

// useCandidateAttr is a zero-length flag attribute.
type useCandidateAttr struct{}

func (useCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(attrUseCandidate, nil)
	return nil
}

// tieBreakerAttr is a Setter/Getter shared by ICE-CONTROLLED/ICE-CONTROLLING.
type tieBreakerAttr struct {
	attr  stun.AttrType
	value uint64
}

func (t tieBreakerAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, t.value)
	m.Add(t.attr, v)
	return nil
}

func getTieBreaker(m *stun.Message, attr stun.AttrType) (uint64, error) {
	v, err := m.Get(attr)
	if err != nil {
		return 0, err
	}
	if len(v) < 8 {
		return 0, stun.ErrAttributeSizeInvalid
	}
	return binary.BigEndian.Uint64(v), nil
}

func iceControlling(tieBreaker uint64) stun.Setter {
	return tieBreakerAttr{attr: attrICEControlling, value: tieBreaker}
}

func iceControlled(tieBreaker uint64) stun.Setter {
	return tieBreakerAttr{attr: attrICEControlled, value: tieBreaker}
}

// newBindingRequest assembles an outbound connectivity-check Binding
// request per spec §4.4: USERNAME, PRIORITY, role+tie-breaker, optional
// USE-CANDIDATE, MESSAGE-INTEGRITY, FINGERPRINT, in that order so
// MESSAGE-INTEGRITY precedes FINGERPRINT as RFC 5389 requires.
func newBindingRequest(username, remotePwd string, priority uint32, isControlling bool, tieBreaker uint64, useCandidate bool) (*stun.Message, error) {
	setters := []stun.Setter{
		stun.TransactionID,
		stun.BindingRequest,
		stun.NewUsername(username),
		priorityAttr(priority),
	}
	if isControlling {
		setters = append(setters, iceControlling(tieBreaker))
	} else {
		setters = append(setters, iceControlled(tieBreaker))
	}
	if useCandidate {
		setters = append(setters, useCandidateAttr{})
	}
	setters = append(setters, stun.NewShortTermIntegrity(remotePwd), stun.Fingerprint)
	return stun.Build(setters...)
}

// newBindingIndication assembles an authenticated Binding indication: no
// response is expected, so no transaction bookkeeping is required, but it
// is still authenticated the same way a request is. checkKeepalive sends
// Binding requests, not indications, so the agent does not call this.
func newBindingIndication(username, remotePwd string) (*stun.Message, error) {
	return stun.Build(
		stun.TransactionID,
		stun.BindingIndication,
		stun.NewUsername(username),
		stun.NewShortTermIntegrity(remotePwd),
		stun.Fingerprint,
	)
}

// newBindingSuccess assembles the success response to an inbound request
// (spec §4.4): XOR-MAPPED-ADDRESS = request source, USERNAME echoed,
// MESSAGE-INTEGRITY with local pwd, FINGERPRINT.
func newBindingSuccess(request *stun.Message, localPwd string, remoteAddr stunAddr) (*stun.Message, error) {
	xorAddr := stun.XORMappedAddress{IP: remoteAddr.IP, Port: remoteAddr.Port}
	setters := []stun.Setter{
		stun.NewTransactionIDSetter(request.TransactionID),
		stun.BindingSuccess,
	}
	var username stun.Username
	if err := username.GetFrom(request); err == nil {
		setters = append(setters, username)
	}
	setters = append(setters, &xorAddr, stun.NewShortTermIntegrity(localPwd), stun.Fingerprint)
	return stun.Build(setters...)
}

// newBindingError assembles a 401 Unauthorized error response for a
// request that failed authentication (spec §4.4 "else respond 401").
func newBindingError(request *stun.Message, code stun.ErrorCode) (*stun.Message, error) {
	return stun.Build(
		stun.NewTransactionIDSetter(request.TransactionID),
		stun.BindingError,
		&stun.ErrorCodeAttribute{Code: code},
		stun.Fingerprint,
	)
}

// stunAddr is the minimal net.Addr-shaped value newBindingSuccess needs;
// kept distinct from net.Addr so callers can pass either a *net.UDPAddr or
// a *net.TCPAddr without type assertions leaking into this file.
type stunAddr struct {
	IP   []byte
	Port int
}

func isBindingRequest(m *stun.Message) bool {
	return m.Type.Method == stun.MethodBinding && m.Type.Class == stun.ClassRequest
}

func isBindingSuccess(m *stun.Message) bool {
	return m.Type.Method == stun.MethodBinding && m.Type.Class == stun.ClassSuccessResponse
}

func isBindingIndication(m *stun.Message) bool {
	return m.Type.Method == stun.MethodBinding && m.Type.Class == stun.ClassIndication
}
