package ice

import (
	"github.com/pion/randutil"
)

// runesAlpha is the character set pion/randutil and RFC 8445 §15.4 both use
// for ice-ufrag/ice-pwd: alphanumeric plus a few symbols, all within the
// "ice-char" grammar.
const runesAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Entropy requirements (spec §6, tested at spec §8 boundary: 24-bit ufrag
// accepted, 23-bit rejected). Each base64-alphabet rune carries 6 bits.
const (
	bitsPerUfragPwdRune = 6
	minUfragBits        = 24
	minPwdBits          = 128
	defaultUfragLength  = 16 // 96 bits, well above the 24-bit floor
	defaultPwdLength    = 32 // 192 bits, well above the 128-bit floor
)

var globalRandomGenerator = randutil.NewMathRandomGenerator()

func generateUfrag() (string, error) {
	return randutil.GenerateCryptoRandomString(defaultUfragLength, runesAlpha)
}

func generatePwd() (string, error) {
	return randutil.GenerateCryptoRandomString(defaultPwdLength, runesAlpha)
}

// ufragBits returns the entropy, in bits, the spec credits to an ufrag of
// the given length under the ice-char alphabet.
func ufragBits(s string) int { return len([]rune(s)) * bitsPerUfragPwdRune }

func pwdBits(s string) int { return len([]rune(s)) * bitsPerUfragPwdRune }

// generateTieBreaker returns a random 64-bit value, chosen once per agent
// lifetime and used to resolve simultaneous controlling/controlled
// conflicts (spec §3 "Tie-breaker").
func generateTieBreaker() uint64 {
	return globalRandomGenerator.Uint64()
}
