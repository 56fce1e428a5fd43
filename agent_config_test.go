package ice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAgentRejectsPortMaxBelowPortMin(t *testing.T) {
	_, err := NewAgent(&AgentConfig{PortMin: 5000, PortMax: 4000})
	require.ErrorIs(t, err, ErrPort)
}

func TestNewAgentRejectsLiteWithNonHostCandidateTypes(t *testing.T) {
	_, err := NewAgent(&AgentConfig{
		Lite:           true,
		CandidateTypes: []CandidateType{CandidateTypeHost, CandidateTypeServerReflexive},
	})
	require.ErrorIs(t, err, ErrLiteUsingNonHostCandidates)
}

func TestNewAgentAcceptsLiteWithHostOnly(t *testing.T) {
	a, err := NewAgent(&AgentConfig{
		Lite:           true,
		CandidateTypes: []CandidateType{CandidateTypeHost},
	})
	require.NoError(t, err)
	defer a.Close()
}

func TestNewAgentRejectsUselessUrlsWithoutSrflxOrRelay(t *testing.T) {
	_, err := NewAgent(&AgentConfig{
		Urls:           []*URL{{Scheme: SchemeTypeSTUN, Host: "stun.example.com", Port: 3478}},
		CandidateTypes: []CandidateType{CandidateTypeHost},
	})
	require.ErrorIs(t, err, ErrUselessUrlsProvided)
}

func TestNewAgentRejectsMulticastDNSGatherWithNAT1To1(t *testing.T) {
	_, err := NewAgent(&AgentConfig{
		MulticastDNSMode: MulticastDNSModeQueryAndGather,
		NAT1To1IPs:       []string{"1.2.3.4"},
	})
	require.ErrorIs(t, err, ErrMulticastDNSWithNAT1To1IPMapping)
}

func TestNewAgentRejectsInvalidMulticastDNSHostName(t *testing.T) {
	_, err := NewAgent(&AgentConfig{MulticastDNSHostName: "not-a-local-name"})
	require.ErrorIs(t, err, ErrInvalidMulticastDNSHostName)
}

func TestNewAgentDefaultsApplyWhenUnset(t *testing.T) {
	a, err := NewAgent(&AgentConfig{})
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, uint16(defaultMaxBindingRequests), a.maxBindingRequests)
	require.ElementsMatch(t, []CandidateType{CandidateTypeHost, CandidateTypeServerReflexive, CandidateTypeRelay}, a.candidateTypes)
}
