// Package exitcodes contains all well-defined exit codes that aesfs and
// aespack can return.
package exitcodes

import (
	"errors"
	"os"
)

const (
	// Usage - usage error like wrong cli syntax, wrong number of parameters.
	Usage = 1
	// 2 is reserved because it is used by Go panic

	// StorageDir means that the STORAGEDIR does not exist or is not a
	// directory.
	StorageDir = 6
	// Init is an error on filesystem init
	Init = 7
	// LoadConf is an error while loading aesfs.conf
	LoadConf = 8
	// ReadPassword means something went wrong reading the key or the salt
	ReadPassword = 9
	// MountPoint error means that the mountpoint is invalid (not empty etc).
	MountPoint = 10
	// Other error - please inspect the message
	Other = 11
	// ScryptParams means that scrypt was called with invalid parameters
	ScryptParams = 13
	// SigInt means we got SIGINT
	SigInt = 15
	// ForkChild means forking the worker child failed
	ForkChild = 17
	// FuseNewServer - this exit code means that the call to fs.Mount failed.
	// This usually means that there was a problem executing fusermount, or
	// fusermount could not attach the mountpoint to the kernel.
	FuseNewServer = 19
	// PasswordEmpty - we received an empty key
	PasswordEmpty = 22
	// WriteConf - could not write aesfs.conf
	WriteConf = 24
	// FsckErrors - the filesystem check found errors
	FsckErrors = 26
	// PackErrors - aespack failed on at least one file pair
	PackErrors = 27
	// DevNull means that /dev/null could not be opened
	DevNull = 30
)

// Err wraps an error with an associated numeric exit code
type Err struct {
	error
	code int
}

// NewErr returns an error containing "msg" and the exit code "code".
func NewErr(msg string, code int) Err {
	return Err{
		error: errors.New(msg),
		code:  code,
	}
}

// Wrap attaches the exit code "code" to an existing error.
func Wrap(err error, code int) Err {
	return Err{
		error: err,
		code:  code,
	}
}

// Unwrap returns the wrapped error.
func (e Err) Unwrap() error {
	return e.error
}

// Code returns the numeric exit code.
func (e Err) Code() int {
	return e.code
}

// Exit extracts the numeric exit code from "err" (if available) and exits the
// application.
func Exit(err error) {
	var err2 Err
	if !errors.As(err, &err2) {
		os.Exit(Other)
	}
	os.Exit(err2.code)
}
