package fusefrontend

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/nametransform"
	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// Node is a file or directory in the filesystem tree
// in an aesfs mount.
type Node struct {
	fs.Inode
}

// Lookup - FUSE call for discovering a file.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (ch *fs.Inode, errno syscall.Errno) {
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	st, errno := n.rootNode().getattrAt(dirfd, cName, &out.Attr)
	if errno != 0 {
		return
	}
	return n.newChild(ctx, st), 0
}

// GetAttr - FUSE call for stat()ing a file.
//
// GetAttr is symlink-safe through use of openBackingDir() and Fstatat().
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) (errno syscall.Errno) {
	// If we have a file handle, the header is in the open file table
	if f != nil {
		return f.(*File).Getattr(ctx, out)
	}

	dirfd, cName, errno := n.prepareAtSyscallMyself()
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	_, errno = n.rootNode().getattrAt(dirfd, cName, &out.Attr)
	return errno
}

// Unlink - FUSE call. Delete a file.
//
// Symlink-safe through use of Unlinkat().
func (n *Node) Unlink(ctx context.Context, name string) (errno syscall.Errno) {
	if n.rootNode().args.ReadOnly {
		return syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	return fs.ToErrno(syscallcompat.Unlinkat(dirfd, cName, 0))
}

// Readlink - FUSE call.
//
// Symlink targets are stored as given, so the target may point anywhere.
func (n *Node) Readlink(ctx context.Context) (out []byte, errno syscall.Errno) {
	dirfd, cName, errno := n.prepareAtSyscallMyself()
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	target, err := syscallcompat.Readlinkat(dirfd, cName)
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	return []byte(target), 0
}

// Setattr - FUSE call. Called for chmod, truncate, utimens, ...
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) (errno syscall.Errno) {
	// Use the fd if the kernel gave us one
	if f != nil {
		return f.(*File).Setattr(ctx, in, out)
	}
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return syscall.EROFS
	}

	// Truncate needs the content lock and the header, so it goes through a
	// temporary file handle.
	if _, ok := in.GetSize(); ok {
		fh, _, errno := n.Open(ctx, syscall.O_RDWR)
		if errno != 0 {
			return errno
		}
		f2 := fh.(*File)
		defer f2.Release(ctx)
		return f2.Setattr(ctx, in, out)
	}

	dirfd, cName, errno := n.prepareAtSyscallMyself()
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	// chmod(2)
	if mode, ok := in.GetMode(); ok {
		errno = fs.ToErrno(syscallcompat.FchmodatNofollow(dirfd, cName, mode))
		if errno != 0 {
			return errno
		}
	}

	// chown(2)
	uid32, uOk := in.GetUID()
	gid32, gOk := in.GetGID()
	if uOk || gOk {
		uid := -1
		gid := -1
		if uOk {
			uid = int(uid32)
		}
		if gOk {
			gid = int(gid32)
		}
		errno = fs.ToErrno(syscallcompat.Fchownat(dirfd, cName, uid, gid))
		if errno != 0 {
			return errno
		}
	}

	// utimens(2)
	mtime, mok := in.GetMTime()
	atime, aok := in.GetATime()
	if mok || aok {
		ap := &atime
		mp := &mtime
		if !aok {
			ap = nil
		}
		if !mok {
			mp = nil
		}
		errno = fs.ToErrno(syscallcompat.UtimesNanoAtNofollow(dirfd, cName, ap, mp))
		if errno != 0 {
			return errno
		}
	}

	_, errno = rn.getattrAt(dirfd, cName, &out.Attr)
	return errno
}

// Statfs - FUSE call. Returns information about the filesystem.
//
// Symlink-safe because the path is ignored.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	rn := n.rootNode()
	var st syscall.Statfs_t
	err := syscall.Statfs(rn.args.Cipherdir, &st)
	if err != nil {
		return fs.ToErrno(err)
	}
	out.FromStatfsT(&st)
	if !rn.args.PlaintextNames {
		out.NameLen = nametransform.MaxPlainNameLen
	}
	return 0
}

// Mknod - FUSE call. Create a device file.
//
// A regular file gets a zeroed file header right away.
//
// Symlink-safe through use of Mknodat().
func (n *Node) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (inode *fs.Inode, errno syscall.Errno) {
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return nil, syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	if mode&syscall.S_IFMT == syscall.S_IFREG || mode&syscall.S_IFMT == 0 {
		fd, err := syscallcompat.Openat(dirfd, cName, syscall.O_WRONLY|syscall.O_CREAT|syscall.O_EXCL, mode&^syscall.S_IFMT)
		if err != nil {
			return nil, fs.ToErrno(err)
		}
		_, err = syscall.Pwrite(fd, contentenc.NewFileHeader().Pack(), 0)
		syscall.Close(fd)
		if err != nil {
			tlog.Warn.Printf("Mknod %q: writing file header failed: %v", cName, err)
			syscallcompat.Unlinkat(dirfd, cName, 0)
			return nil, fs.ToErrno(err)
		}
	} else {
		err := syscallcompat.Mknodat(dirfd, cName, mode, int(rdev))
		if err != nil {
			return nil, fs.ToErrno(err)
		}
	}
	rn.chownToCaller(ctx, dirfd, cName)

	st, errno := rn.getattrAt(dirfd, cName, &out.Attr)
	if errno != 0 {
		return
	}
	return n.newChild(ctx, st), 0
}

// Link - FUSE call. Creates a hard link at "newPath" pointing to
// "oldPath".
//
// Symlink-safe through use of Linkat().
func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (inode *fs.Inode, errno syscall.Errno) {
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return nil, syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	n2 := toNode(target)
	dirfd2, cName2, errno := n2.prepareAtSyscallMyself()
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd2)

	err := unix.Linkat(dirfd2, cName2, dirfd, cName, 0)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	st, errno := rn.getattrAt(dirfd, cName, &out.Attr)
	if errno != 0 {
		return
	}
	return n.newChild(ctx, st), 0
}

// Symlink - FUSE call. Create a symlink.
//
// The target is stored as given.
//
// Symlink-safe through use of Symlinkat.
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (inode *fs.Inode, errno syscall.Errno) {
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return nil, syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	err := unix.Symlinkat(target, dirfd, cName)
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	rn.chownToCaller(ctx, dirfd, cName)

	st, errno := rn.getattrAt(dirfd, cName, &out.Attr)
	if errno != 0 {
		return
	}
	return n.newChild(ctx, st), 0
}

// Rename - FUSE call.
// This function is called on the PARENT DIRECTORY of `name`.
//
// RENAME_NOREPLACE and RENAME_EXCHANGE are passed through to the storage
// root. RENAME_WHITEOUT is not supported.
//
// Symlink-safe through Renameat().
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) (errno syscall.Errno) {
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return syscall.EROFS
	}
	if flags&syscallcompat.RENAME_WHITEOUT != 0 {
		return syscall.EINVAL
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	n2 := toNode(newParent)
	dirfd2, cName2, errno := n2.prepareAtSyscall(newName)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd2)

	err := syscallcompat.Renameat2(dirfd, cName, dirfd2, cName2, uint(flags))
	if err != nil {
		return fs.ToErrno(err)
	}
	return 0
}
