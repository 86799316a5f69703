// Package ensurefds012 ensures that file descriptors 0,1,2 are open. It opens
// multiple copies of /dev/null as required.
// The Go stdlib as well as the aesfs code rely on the fact that
// fds 0,1,2 are always open. Otherwise the first backing file opened by the
// filesystem could land on fd 1 and receive log output.
//
// Use like this:
//
//	import _ "github.com/matteobertozzi/aesfs/internal/ensurefds012"
//
// The import line MUST be in the alphabetically first source code file of
// package main!
package ensurefds012

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/matteobertozzi/aesfs/internal/exitcodes"
)

func init() {
	fd, err := unix.Open("/dev/null", unix.O_RDWR, 0)
	if err != nil {
		os.Exit(exitcodes.DevNull)
	}
	for fd <= 2 {
		fd, err = unix.Dup(fd)
		if err != nil {
			os.Exit(exitcodes.DevNull)
		}
	}
	// Close excess fd (usually fd 3)
	unix.Close(fd)
}
