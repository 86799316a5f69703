package tlog

import (
	"testing"
)

// Test that trimNewline() works as expected
func TestTrimNewline(t *testing.T) {
	testTable := []struct {
		in   string
		want string
	}{
		{"...\n", "..."},
		{"\n...\n", "\n..."},
		{"", ""},
		{"\n", ""},
		{"\n\n", "\n"},
		{"   ", "   "},
	}
	for _, v := range testTable {
		have := trimNewline(v.in)
		if v.want != have {
			t.Errorf("want=%q have=%q", v.want, have)
		}
	}
}

func TestHexdump(t *testing.T) {
	if have := Hexdump([]byte{0x7d, 0x95, 0}); have != "7d9500" {
		t.Errorf("have=%q", have)
	}
	long := make([]byte, 100)
	have := Hexdump(long)
	if len(have) != 128+3 {
		t.Errorf("wrong length %d", len(have))
	}
}
