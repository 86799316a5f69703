// Package fusefrontend interfaces directly with the go-fuse library.
package fusefrontend

import (
	"context"
	"errors"
	"strings"
	"syscall"

	"github.com/pkg/xattr"

	"github.com/hanwen/go-fuse/v2/fs"

	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
)

// Extended attributes are passed through to the backing entry unchanged,
// names and values alike.

// We get one read of this xattr for each write. Without -suid it cannot
// matter, so reject it early.
var xattrCapability = "security.capability"

// xattrErrno unwraps the *xattr.Error returned by github.com/pkg/xattr.
func xattrErrno(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return fs.ToErrno(err)
}

// xattrPath returns a /proc/self/fd path for the backing entry of n.
// The caller must close dirfd.
func (n *Node) xattrPath() (dirfd int, procPath string, errno syscall.Errno) {
	dirfd, cName, errno := n.prepareAtSyscallMyself()
	if errno != 0 {
		return -1, "", errno
	}
	return dirfd, syscallcompat.ProcFdPath(dirfd, cName), 0
}

// Getxattr - FUSE call. Reads the value of extended attribute "attr".
//
// This function is symlink-safe through the /proc/self/fd path of the parent
// directory and the L* (no-follow) xattr calls.
func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	if attr == xattrCapability {
		return 0, syscall.EOPNOTSUPP
	}
	dirfd, procPath, errno := n.xattrPath()
	if errno != 0 {
		return 0, errno
	}
	defer syscall.Close(dirfd)

	data, err := xattr.LGet(procPath, attr)
	if err != nil {
		return 0, xattrErrno(err)
	}
	if len(data) > len(dest) {
		return uint32(len(data)), syscall.ERANGE
	}
	return uint32(copy(dest, data)), 0
}

// Setxattr - FUSE call. Set extended attribute.
func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	if n.rootNode().args.ReadOnly {
		return syscall.EROFS
	}
	dirfd, procPath, errno := n.xattrPath()
	if errno != 0 {
		return errno
	}
	defer syscall.Close(dirfd)

	return xattrErrno(xattr.LSetWithFlags(procPath, attr, data, int(flags)))
}

// Removexattr - FUSE call.
func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	if n.rootNode().args.ReadOnly {
		return syscall.EROFS
	}
	dirfd, procPath, errno := n.xattrPath()
	if errno != 0 {
		return errno
	}
	defer syscall.Close(dirfd)

	return xattrErrno(xattr.LRemove(procPath, attr))
}

// Listxattr - FUSE call. Lists extended attributes on the backing entry.
func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	dirfd, procPath, errno := n.xattrPath()
	if errno != 0 {
		return 0, errno
	}
	defer syscall.Close(dirfd)

	names, err := xattr.LList(procPath)
	if err != nil {
		return 0, xattrErrno(err)
	}
	var buf strings.Builder
	for _, name := range names {
		buf.WriteString(name + "\000")
	}
	if buf.Len() > len(dest) {
		return uint32(buf.Len()), syscall.ERANGE
	}
	return uint32(copy(dest, buf.String())), 0
}
