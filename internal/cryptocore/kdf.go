package cryptocore

import (
	"crypto/sha1"
	"log"
)

const (
	// DefaultRounds is the hash iteration count used by stores that do not
	// say otherwise.
	DefaultRounds = 5
	// LegacyRounds is the iteration count used by some older tools.
	LegacyRounds = 7
)

// LegacyKDF stretches "pass" and "salt" into a 32-byte key and a 32-byte IV.
//
// Each round computes d = SHA1(prev || pass || salt) and hashes it another
// rounds-1 times. The digest bytes fill the key first and then the IV, and
// d becomes "prev" for the next round. The output must stay bit-exact,
// otherwise existing stores cannot be decrypted anymore.
func LegacyKDF(pass []byte, salt []byte, rounds int) (key []byte, iv []byte) {
	if rounds < 1 {
		log.Panicf("LegacyKDF: invalid round count %d", rounds)
	}
	key = make([]byte, KeyLen)
	iv = make([]byte, KeyLen)
	var prev []byte
	nk, ni := 0, 0
	for nk < len(key) || ni < len(iv) {
		h := sha1.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		d := h.Sum(nil)
		for i := 1; i < rounds; i++ {
			s := sha1.Sum(d)
			d = s[:]
		}
		j := 0
		for nk < len(key) && j < len(d) {
			key[nk] = d[j]
			nk++
			j++
		}
		for ni < len(iv) && j < len(d) {
			iv[ni] = d[j]
			ni++
			j++
		}
		prev = d
	}
	return key, iv
}
