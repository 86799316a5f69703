package fusefrontend

import (
	"errors"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
)

// toErrno converts errors from the storage layers into the errno the kernel
// gets. Integrity and cipher failures all become EIO.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range []error{
		contentenc.ErrCorrupt,
		contentenc.ErrDecode,
		contentenc.ErrShortBlock,
		contentenc.ErrBadHeader,
		cryptocore.ErrCipher,
		codec.ErrSize,
	} {
		if errors.Is(err, e) {
			return syscall.EIO
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return fs.ToErrno(err)
}
