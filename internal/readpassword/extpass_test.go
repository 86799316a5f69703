package readpassword

import (
	"errors"
	"os"
	"testing"

	"github.com/matteobertozzi/aesfs/internal/tlog"
)

func TestMain(m *testing.M) {
	// Shut up info output
	tlog.Info.Enabled = false
	os.Exit(m.Run())
}

func TestExtpass(t *testing.T) {
	p1 := "ads2q4tw41reg52"
	p2, err := readPasswordExtpass([]string{"echo " + p1})
	if err != nil {
		t.Fatal(err)
	}
	if p1 != string(p2) {
		t.Errorf("p1=%q != p2=%q", p1, string(p2))
	}
}

func TestOnceExtpass(t *testing.T) {
	p1 := "lkadsf0923rdfi48rqwhdsf"
	p2, err := Once([]string{"echo " + p1}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != string(p2) {
		t.Errorf("p1=%q != p2=%q", p1, string(p2))
	}
}

// extpass with two arguments
func TestOnceExtpass2(t *testing.T) {
	p1 := "foo"
	p2, err := Once([]string{"echo", p1}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != string(p2) {
		t.Errorf("p1=%q != p2=%q", p1, string(p2))
	}
}

// extpass with three arguments
func TestOnceExtpass3(t *testing.T) {
	p1 := "foo bar baz"
	p2, err := Once([]string{"echo", "foo", "bar", "baz"}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != string(p2) {
		t.Errorf("p1=%q != p2=%q", p1, string(p2))
	}
}

func TestOnceExtpassSpaces(t *testing.T) {
	p1 := "mypassword"
	fn := writeTestFile(t, "file with spaces.txt", p1+"\n")
	p2, err := Once([]string{"cat", fn}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != string(p2) {
		t.Errorf("p1=%q != p2=%q", p1, string(p2))
	}
}

func TestTwiceExtpass(t *testing.T) {
	p1 := "w5w44t3wfe45srz434"
	p2, err := Twice([]string{"echo " + p1}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != string(p2) {
		t.Errorf("p1=%q != p2=%q", p1, string(p2))
	}
}

// passfile wins over extpass
func TestOncePassfileFirst(t *testing.T) {
	fn := writeTestFile(t, "pw.txt", "fromfile\n")
	p, err := Once([]string{"echo fromextpass"}, []string{fn}, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "fromfile" {
		t.Errorf("have %q", p)
	}
}

// Empty extpass should fail
func TestExtpassEmpty(t *testing.T) {
	_, err := readPasswordExtpass([]string{"echo"})
	if err == nil {
		t.Fatal("empty password should have failed")
	}
}

func TestExtpassFailing(t *testing.T) {
	_, err := readPasswordExtpass([]string{"false"})
	if err == nil {
		t.Fatal("failing program should have failed")
	}
}

func TestOnceExtpassEmpty(t *testing.T) {
	_, err := Once([]string{"true"}, nil, "")
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("want ErrEmpty, got %v", err)
	}
	// The salt may be empty
	s, err := Salt([]string{"true"}, nil)
	if err != nil || len(s) != 0 {
		t.Errorf("s=%q err=%v", s, err)
	}
}
