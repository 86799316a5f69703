// Package readpassword reads the key and the salt from the user, a file or
// an external program.
package readpassword

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"

	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const (
	// 2kB limit like EncFS
	maxPasswordLen = 2048
)

// ErrEmpty is returned when a key is read successfully but has no content.
var ErrEmpty = errors.New("secret is empty")

// Once tries to get a secret from the user, either from the terminal,
// extpass, passfile or stdin. Leave "prompt" empty to use the default
// "Key: " prompt.
func Once(extpass []string, passfile []string, prompt string) ([]byte, error) {
	if prompt == "" {
		prompt = "Key"
	}
	return read(extpass, passfile, prompt, false)
}

// Twice is the same as Once but will prompt twice if we get the secret from
// the terminal.
func Twice(extpass []string, passfile []string, prompt string) ([]byte, error) {
	if prompt == "" {
		prompt = "Key"
	}
	if len(passfile) != 0 || len(extpass) != 0 || !term.IsTerminal(int(os.Stdin.Fd())) {
		return read(extpass, passfile, prompt, false)
	}
	p1, err := readPasswordTerminal(prompt + ": ")
	if err != nil {
		return nil, err
	}
	p2, err := readPasswordTerminal("Repeat: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(p1, p2) {
		return nil, fmt.Errorf("%s: entries do not match", prompt)
	}
	// Wipe the password duplicate from memory
	for i := range p2 {
		p2[i] = 0
	}
	return p1, nil
}

// Salt reads the salt. Unlike the key, an empty salt is accepted.
func Salt(extsalt []string, saltfile []string) ([]byte, error) {
	return read(extsalt, saltfile, "Salt", true)
}

func read(extpass []string, passfile []string, prompt string, allowEmpty bool) (p []byte, err error) {
	switch {
	case len(passfile) != 0:
		p, err = readPassFileConcatenate(passfile, allowEmpty)
	case len(extpass) != 0:
		p, err = readPasswordExtpass(extpass)
	case !term.IsTerminal(int(os.Stdin.Fd())):
		p, err = readPasswordStdin(prompt)
	default:
		p, err = readPasswordTerminal(prompt + ": ")
	}
	if err != nil {
		return nil, err
	}
	if len(p) == 0 && !allowEmpty {
		return nil, fmt.Errorf("%s: %w", prompt, ErrEmpty)
	}
	return p, nil
}

// readPasswordTerminal reads a line from the terminal.
func readPasswordTerminal(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	fmt.Fprint(os.Stderr, prompt)
	// term.ReadPassword removes the trailing newline
	p, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("could not read from terminal: %v", err)
	}
	fmt.Fprintf(os.Stderr, "\n")
	return p, nil
}

// readPasswordStdin reads a line from stdin.
func readPasswordStdin(prompt string) ([]byte, error) {
	tlog.Info.Printf("Reading %s from stdin", strings.ToLower(prompt))
	p, err := readLineUnbuffered(os.Stdin)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// readPasswordExtpass executes the "extpass" program and returns the first
// line of the output.
// A single element is split on spaces, so "-extpass 'echo foo'" works.
func readPasswordExtpass(extpass []string) ([]byte, error) {
	var parts []string
	if len(extpass) == 1 {
		parts = strings.Split(extpass[0], " ")
	} else {
		parts = extpass
	}
	tlog.Info.Printf("Reading secret from extpass program %q, arguments: %q\n", parts[0], parts[1:])
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("extpass pipe setup failed: %v", err)
	}
	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("extpass cmd start failed: %v", err)
	}
	p, err := readLineUnbuffered(pipe)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, err
	}
	pipe.Close()
	err = cmd.Wait()
	if err != nil {
		return nil, fmt.Errorf("extpass program returned an error: %v", err)
	}
	return p, nil
}

// readLineUnbuffered reads single bytes from "r" util it gets "\n" or EOF.
// The returned string does NOT contain the trailing "\n".
func readLineUnbuffered(r io.Reader) (l []byte, err error) {
	b := make([]byte, 1)
	for {
		if len(l) > maxPasswordLen {
			return nil, fmt.Errorf("fatal: maximum length of %d bytes exceeded", maxPasswordLen)
		}
		n, err := r.Read(b)
		if err == io.EOF {
			return l, nil
		}
		if err != nil {
			return nil, fmt.Errorf("readLineUnbuffered: %v", err)
		}
		if n == 0 {
			continue
		}
		if b[0] == '\n' {
			return l, nil
		}
		l = append(l, b...)
	}
}
