package ice

import (
	"net"
	"testing"

	"github.com/pion/stun/v3"
	"github.com/stretchr/testify/require"
)

func TestNewBindingRequestRoundTrips(t *testing.T) {
	msg, err := newBindingRequest("responder:requester", "remotepwd", 12345, true, 42, true)
	require.NoError(t, err)
	require.True(t, isBindingRequest(msg))

	var username stun.Username
	require.NoError(t, username.GetFrom(msg))
	require.Equal(t, "responder:requester", username.String())

	var prio priorityAttr
	require.NoError(t, prio.GetFrom(msg))
	require.EqualValues(t, 12345, prio)

	tb, err := getTieBreaker(msg, attrICEControlling)
	require.NoError(t, err)
	require.EqualValues(t, 42, tb)

	_, err = msg.Get(attrUseCandidate)
	require.NoError(t, err, "USE-CANDIDATE must be present when requested")

	require.NoError(t, stun.MessageIntegrity([]byte("remotepwd")).Check(msg))
	require.NoError(t, stun.Fingerprint.Check(msg))
}

func TestNewBindingRequestControlledUsesICEControlled(t *testing.T) {
	msg, err := newBindingRequest("a:b", "pwd", 1, false, 7, false)
	require.NoError(t, err)

	_, err = getTieBreaker(msg, attrICEControlling)
	require.Error(t, err, "controlled request must not carry ICE-CONTROLLING")

	tb, err := getTieBreaker(msg, attrICEControlled)
	require.NoError(t, err)
	require.EqualValues(t, 7, tb)

	_, err = msg.Get(attrUseCandidate)
	require.Error(t, err, "USE-CANDIDATE must be absent when not requested")
}

func TestNewBindingIndicationIsAuthenticatedIndication(t *testing.T) {
	msg, err := newBindingIndication("a:b", "pwd")
	require.NoError(t, err)
	require.True(t, isBindingIndication(msg))
	require.False(t, isBindingRequest(msg))
	require.NoError(t, stun.MessageIntegrity([]byte("pwd")).Check(msg))
}

func TestNewBindingSuccessEchoesTransactionAndAddress(t *testing.T) {
	req, err := newBindingRequest("a:b", "pwd", 1, true, 1, false)
	require.NoError(t, err)

	resp, err := newBindingSuccess(req, "localpwd", stunAddr{IP: net.ParseIP("192.168.0.5").To4(), Port: 4242})
	require.NoError(t, err)

	require.True(t, isBindingSuccess(resp))
	require.Equal(t, req.TransactionID, resp.TransactionID)

	var xorAddr stun.XORMappedAddress
	require.NoError(t, xorAddr.GetFrom(resp))
	require.Equal(t, 4242, xorAddr.Port)
	require.True(t, net.ParseIP("192.168.0.5").Equal(xorAddr.IP))

	require.NoError(t, stun.MessageIntegrity([]byte("localpwd")).Check(resp))
}

func TestNewBindingErrorCarriesErrorCode(t *testing.T) {
	req, err := newBindingRequest("a:b", "pwd", 1, true, 1, false)
	require.NoError(t, err)

	resp, err := newBindingError(req, stun.CodeUnauthorized)
	require.NoError(t, err)

	require.False(t, isBindingSuccess(resp))
	require.Equal(t, stun.ClassErrorResponse, resp.Type.Class)
	require.Equal(t, req.TransactionID, resp.TransactionID)

	var ec stun.ErrorCodeAttribute
	require.NoError(t, ec.GetFrom(resp))
	require.Equal(t, stun.CodeUnauthorized, ec.Code)
}
