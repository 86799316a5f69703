package syscallcompat

import (
	"errors"

	"golang.org/x/sys/unix"
)

// retry runs "op" until it fails with something other than EINTR. The
// storage root may be on CIFS or NFS, where EINTR is common.
//
// Never wrap close(2) in this: the fd is gone even when it returns EINTR.
func retry[T any](op func() (T, error)) (T, error) {
	for {
		ret, err := op()
		if !errors.Is(err, unix.EINTR) {
			return ret, err
		}
	}
}

// retryEINTR is retry for calls that only return an error.
func retryEINTR(op func() error) error {
	_, err := retry(func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Unlinkat wraps unlinkat(2). Retries on EINTR.
func Unlinkat(dirfd int, path string, flags int) error {
	return retryEINTR(func() error {
		return unix.Unlinkat(dirfd, path, flags)
	})
}

// Flush implements FUSE FLUSH by closing a duplicate of "fd", which makes
// the kernel report delayed write errors.
func Flush(fd int) error {
	for {
		dup, err := retry(func() (int, error) { return unix.Dup(fd) })
		if err != nil {
			return err
		}
		// After EINTR the duplicate is closed anyway. Try again with a new one.
		if err = unix.Close(dup); err != unix.EINTR {
			return err
		}
	}
}
