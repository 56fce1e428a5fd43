package ice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateMulticastDNSNameHasLocalSuffix(t *testing.T) {
	name, err := generateMulticastDNSName()
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(name, ".local"))
	require.Len(t, strings.Split(name, "."), 2)
}

func TestGenerateMulticastDNSNameIsUnique(t *testing.T) {
	a, err := generateMulticastDNSName()
	require.NoError(t, err)
	b, err := generateMulticastDNSName()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCreateMulticastDNSDisabledModeOpensNothing(t *testing.T) {
	conn, mode, err := createMulticastDNS(nil, MulticastDNSModeDisabled, "x.local", nil)
	require.NoError(t, err)
	require.Nil(t, conn)
	require.Equal(t, MulticastDNSModeDisabled, mode)
}

func TestMDNSConnCloseNilIsSafe(t *testing.T) {
	var m *mdnsConn
	require.NoError(t, m.close())

	m = &mdnsConn{}
	require.NoError(t, m.close())
}
