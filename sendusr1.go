package main

import (
	"os"
	"syscall"

	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// sendUsr1 sends USR1 to the parent process that forked us. This notifies it
// that the mount has completed successfully.
func sendUsr1(pid int) {
	p, err := os.FindProcess(pid)
	if err != nil {
		tlog.Warn.Printf("sendUsr1: FindProcess: %v", err)
		return
	}
	err = p.Signal(syscall.SIGUSR1)
	if err != nil {
		tlog.Warn.Printf("sendUsr1: Signal: %v", err)
	}
}
