package ice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternalIPMapperImplicitSole(t *testing.T) {
	m, err := newExternalIPMapper(CandidateTypeHost, []string{"1.2.3.4"})
	require.NoError(t, err)
	require.NotNil(t, m)

	ext, err := m.findExternalIP("192.168.1.1")
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", ext.String())
}

func TestExternalIPMapperExplicitTable(t *testing.T) {
	m, err := newExternalIPMapper(CandidateTypeServerReflexive, []string{"1.2.3.4/192.168.1.1", "1.2.3.5/192.168.1.2"})
	require.NoError(t, err)
	require.Equal(t, mappingCandidateTypeServerReflexive, m.candidateType)

	ext, err := m.findExternalIP("192.168.1.1")
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", ext.String())

	_, err = m.findExternalIP("192.168.1.99")
	require.Error(t, err)
}

func TestExternalIPMapperRejectsMixedImplicitExplicit(t *testing.T) {
	_, err := newExternalIPMapper(CandidateTypeHost, []string{"1.2.3.4", "1.2.3.5/192.168.1.2"})
	require.ErrorIs(t, err, ErrInvalidNAT1To1IPMapping)
}

func TestExternalIPMapperRejectsDuplicateImplicit(t *testing.T) {
	_, err := newExternalIPMapper(CandidateTypeHost, []string{"1.2.3.4", "1.2.3.5"})
	require.ErrorIs(t, err, ErrInvalidNAT1To1IPMapping)
}

func TestExternalIPMapperRejectsUnsupportedCandidateType(t *testing.T) {
	_, err := newExternalIPMapper(CandidateTypeRelay, []string{"1.2.3.4"})
	require.ErrorIs(t, err, ErrUnsupportedNAT1To1IPCandidateType)
}

func TestExternalIPMapperNoEntriesIsNilNoError(t *testing.T) {
	m, err := newExternalIPMapper(CandidateTypeHost, nil)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestExternalIPMapperRejectsMismatchedFamily(t *testing.T) {
	_, err := newExternalIPMapper(CandidateTypeHost, []string{"1.2.3.4/::1"})
	require.ErrorIs(t, err, ErrInvalidNAT1To1IPMapping)
}
