package configfile

import (
	"errors"
	"fmt"
	"log"
	"math/bits"
	"os"

	"golang.org/x/crypto/scrypt"

	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// ScryptDefaultLogN is used by -init -kdf scrypt when -scryptn is not given.
// N=2^16 needs 64MB of memory.
const ScryptDefaultLogN = 16

// Lower bounds for parameters read from aesfs.conf
const (
	scryptMinLogN    = 10
	scryptR          = 8
	scryptP          = 1
	scryptMinSaltLen = cryptocore.KeyLen
)

// ErrWeakScrypt is returned for scrypt parameters below the lower bounds.
var ErrWeakScrypt = errors.New("scrypt parameters too weak")

// ScryptKDF holds the scrypt parameters stored in aesfs.conf. The stored
// salt is random and created with the config file.
type ScryptKDF struct {
	Salt   []byte
	N      int
	R      int
	P      int
	KeyLen int
}

// NewScryptKDF returns parameters with N=2^logN and a fresh salt.
// logN <= 0 selects ScryptDefaultLogN.
func NewScryptKDF(logN int) ScryptKDF {
	if logN <= 0 {
		logN = ScryptDefaultLogN
	}
	return ScryptKDF{
		Salt:   cryptocore.RandBytes(scryptMinSaltLen),
		N:      1 << logN,
		R:      scryptR,
		P:      scryptP,
		KeyLen: cryptocore.KeyLen,
	}
}

// DeriveKey runs scrypt over "pw". The salt is the stored salt followed by
// "pepper", the salt typed at mount time.
// Exits the process if the parameters are too weak.
func (s *ScryptKDF) DeriveKey(pw []byte, pepper []byte) []byte {
	if err := s.validateParams(); err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.ScryptParams)
	}
	salt := append(append(make([]byte, 0, len(s.Salt)+len(pepper)), s.Salt...), pepper...)
	k, err := scrypt.Key(pw, salt, s.N, s.R, s.P, s.KeyLen)
	if err != nil {
		log.Panicf("scrypt: %v", err)
	}
	return k
}

// LogN returns log2(N), the value -scryptn takes.
func (s *ScryptKDF) LogN() int {
	if s.N <= 0 {
		return 0
	}
	return bits.Len(uint(s.N)) - 1
}

func (s *ScryptKDF) validateParams() error {
	checks := []struct {
		name      string
		have, min int
	}{
		{"N", s.N, 1 << scryptMinLogN},
		{"R", s.R, scryptR},
		{"P", s.P, scryptP},
		{"salt length", len(s.Salt), scryptMinSaltLen},
		{"KeyLen", s.KeyLen, cryptocore.KeyLen},
	}
	for _, c := range checks {
		if c.have < c.min {
			return fmt.Errorf("%w: %s=%d, min %d", ErrWeakScrypt, c.name, c.have, c.min)
		}
	}
	return nil
}
