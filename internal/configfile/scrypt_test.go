package configfile

import (
	"errors"
	"fmt"
	"testing"
)

func TestScryptParams(t *testing.T) {
	s := NewScryptKDF(0)
	if s.LogN() != ScryptDefaultLogN {
		t.Errorf("default logN: have %d", s.LogN())
	}
	if err := s.validateParams(); err != nil {
		t.Error(err)
	}
	s.Salt = s.Salt[:16]
	if s.validateParams() == nil {
		t.Error("short salt accepted")
	}
	s = NewScryptKDF(10)
	s.R = 1
	if err := s.validateParams(); !errors.Is(err, ErrWeakScrypt) {
		t.Errorf("weak R accepted: %v", err)
	}
	if have := (&ScryptKDF{N: 1 << 12}).LogN(); have != 12 {
		t.Errorf("LogN: have %d", have)
	}
}

// Run with "go test -bench . -run none" to pick a -scryptn value for a
// machine.
func BenchmarkScryptN(b *testing.B) {
	for n := 10; n <= 20; n++ {
		b.Run(fmt.Sprintf("%d", n), func(b *testing.B) {
			benchmarkScryptN(b, n)
		})
	}
}

func benchmarkScryptN(b *testing.B, n int) {
	kdf := NewScryptKDF(n)
	for i := 0; i < b.N; i++ {
		kdf.DeriveKey(testPw, nil)
	}
	b.ReportAllocs()
}
