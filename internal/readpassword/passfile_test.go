package readpassword

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, name string, content string) string {
	fn := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(fn, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestPassfile(t *testing.T) {
	testcases := []struct {
		file    string
		content string
		want    string
	}{
		{"mypassword.txt", "mypassword\n", "mypassword"},
		{"mypassword_garbage.txt", "mypassword\nlkajsdflkjasdf\nsadlkjf\n", "mypassword"},
		{"mypassword_missing_newline.txt", "mypassword", "mypassword"},
		{"file with spaces.txt", "mypassword\n", "mypassword"},
	}
	for _, tc := range testcases {
		fn := writeTestFile(t, tc.file, tc.content)
		pw, err := readPassFile(fn, false)
		if err != nil {
			t.Fatal(err)
		}
		if string(pw) != tc.want {
			t.Errorf("Wrong result: want=%q have=%q", tc.want, pw)
		}
		// Calling readPassFileConcatenate with only one element should give the
		// same result
		pw, err = readPassFileConcatenate([]string{fn}, false)
		if err != nil {
			t.Fatal(err)
		}
		if string(pw) != tc.want {
			t.Errorf("Wrong result: want=%q have=%q", tc.want, pw)
		}
	}
}

func TestPassfileEmpty(t *testing.T) {
	for _, content := range []string{"", "\n"} {
		fn := writeTestFile(t, "empty.txt", content)
		if _, err := readPassFile(fn, false); err == nil {
			t.Errorf("content %q should have failed", content)
		}
		pw, err := readPassFile(fn, true)
		if err != nil {
			t.Errorf("content %q: empty salt should be accepted: %v", content, err)
		}
		if len(pw) != 0 {
			t.Errorf("want empty, have %q", pw)
		}
	}
}

func TestPassfileMissing(t *testing.T) {
	_, err := readPassFile(filepath.Join(t.TempDir(), "nope"), false)
	if err == nil {
		t.Fatal("should have failed")
	}
}

func TestPassfileMaxLen(t *testing.T) {
	fn := writeTestFile(t, "long.txt", strings.Repeat("x", maxPasswordLen)+"\n")
	pw, err := readPassFile(fn, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(pw) != maxPasswordLen {
		t.Errorf("wrong length %d", len(pw))
	}
	fn = writeTestFile(t, "toolong.txt", strings.Repeat("x", maxPasswordLen+1)+"\n")
	if _, err := readPassFile(fn, false); err == nil {
		t.Error("max length exceeded but no error")
	}
}

func TestPassfileConcatenate(t *testing.T) {
	f1 := writeTestFile(t, "a.txt", "foo\n")
	f2 := writeTestFile(t, "b.txt", "bar")
	pw, err := readPassFileConcatenate([]string{f1, f2}, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(pw) != "foobar" {
		t.Errorf("have %q", pw)
	}
}

func TestSaltfile(t *testing.T) {
	fn := writeTestFile(t, "salt.txt", "pepper\n")
	s, err := Salt(nil, []string{fn})
	if err != nil {
		t.Fatal(err)
	}
	if string(s) != "pepper" {
		t.Errorf("have %q", s)
	}
	fn = writeTestFile(t, "nosalt.txt", "")
	s, err = Salt(nil, []string{fn})
	if err != nil || len(s) != 0 {
		t.Errorf("empty salt: s=%q err=%v", s, err)
	}
}
