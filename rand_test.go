package ice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUfragMeetsEntropyFloor(t *testing.T) {
	ufrag, err := generateUfrag()
	require.NoError(t, err)
	require.GreaterOrEqual(t, ufragBits(ufrag), minUfragBits)
	require.Len(t, ufrag, defaultUfragLength)
}

func TestGeneratePwdMeetsEntropyFloor(t *testing.T) {
	pwd, err := generatePwd()
	require.NoError(t, err)
	require.GreaterOrEqual(t, pwdBits(pwd), minPwdBits)
	require.Len(t, pwd, defaultPwdLength)
}

func TestGenerateUfragPwdAreDistinctAcrossCalls(t *testing.T) {
	a, err := generateUfrag()
	require.NoError(t, err)
	b, err := generateUfrag()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestUfragBitsRejectsBelowFloor(t *testing.T) {
	short := "abc" // 3 runes * 6 bits = 18 bits, below the 24-bit floor
	require.Less(t, ufragBits(short), minUfragBits)
}

func TestGenerateTieBreakerIsNonDeterministicAcrossCalls(t *testing.T) {
	a := generateTieBreaker()
	b := generateTieBreaker()
	require.NotEqual(t, a, b, "two consecutive tie-breakers colliding is vanishingly unlikely")
}
