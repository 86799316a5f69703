package fusefrontend

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// Open - FUSE call. Open already-existing file.
//
// Symlink-safe through Openat().
func (n *Node) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	f, errno := n.rootNode().OpenPath(n.Path(), flags)
	if errno != 0 {
		return nil, 0, errno
	}
	return f, 0, 0
}

// OpenPath opens the file at plaintext path "relPath". Used by Open and by
// fsck.
func (rn *RootNode) OpenPath(relPath string, flags uint32) (*File, syscall.Errno) {
	if rn.args.ReadOnly && int(flags)&syscall.O_ACCMODE != syscall.O_RDONLY {
		return nil, syscall.EROFS
	}
	dirfd, cName, errno := rn.prepareAtPath(relPath)
	if errno != 0 {
		return nil, errno
	}
	defer syscall.Close(dirfd)

	newFlags := rn.mangleOpenFlags(flags)
	// Taking this lock makes sure we don't race openWriteOnlyFile()
	rn.openWriteOnlyLock.RLock()
	defer rn.openWriteOnlyLock.RUnlock()

	// Open backing file
	fd, err := syscallcompat.Openat(dirfd, cName, newFlags, 0)
	// Handle a few specific errors
	if err != nil {
		if err == syscall.EMFILE {
			var lim syscall.Rlimit
			syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim)
			tlog.Warn.Printf("Open %q: too many open files. Current \"ulimit -n\": %d", cName, lim.Cur)
		}
		if err == syscall.EACCES && (int(flags)&syscall.O_ACCMODE) == syscall.O_WRONLY {
			fd, err = rn.openWriteOnlyFile(dirfd, cName, newFlags)
		}
	}
	// Could not handle the error? Bail out
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	f, _, errno := NewFile(fd, cName, rn)
	return f, errno
}

// openWriteOnlyFile - If the permissions on the file are so that the user
// may write but not read, we need to relax them to do the read-modify-write
// cycles.
func (rn *RootNode) openWriteOnlyFile(dirfd int, cName string, newFlags int) (rwFd int, err error) {
	woFd, err := syscallcompat.Openat(dirfd, cName, syscall.O_WRONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		return
	}
	defer syscall.Close(woFd)
	var st syscall.Stat_t
	err = syscall.Fstat(woFd, &st)
	if err != nil {
		return
	}
	// The cast to uint32 fixes a build failure on Darwin, where st.Mode is uint16.
	perms := uint32(st.Mode & 0777)
	// Verify that the user has write permissions
	if perms&0200 == 0 {
		tlog.Warn.Printf("openWriteOnlyFile: ino %d: missing write permissions, returning EACCESS", st.Ino)
		return -1, syscall.EACCES
	}
	// Upgrade the lock to block other Open()s and downgrade again on return
	rn.openWriteOnlyLock.RUnlock()
	rn.openWriteOnlyLock.Lock()
	defer func() {
		rn.openWriteOnlyLock.Unlock()
		rn.openWriteOnlyLock.RLock()
	}()
	// Relax permissions and revert on return
	err = syscall.Fchmod(woFd, perms|0400)
	if err != nil {
		tlog.Warn.Printf("openWriteOnlyFile: changing permissions failed: %v", err)
		return
	}
	defer func() {
		err2 := syscall.Fchmod(woFd, perms)
		if err2 != nil {
			tlog.Warn.Printf("openWriteOnlyFile: reverting permissions failed: %v", err2)
		}
	}()
	return syscallcompat.Openat(dirfd, cName, newFlags, 0)
}

// Create - FUSE call. Creates a new file and writes its zeroed header.
//
// Symlink-safe through the use of Openat().
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (inode *fs.Inode, fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return
	}
	defer syscall.Close(dirfd)

	newFlags := rn.mangleOpenFlags(flags)
	fd, err := syscallcompat.Openat(dirfd, cName, newFlags|syscall.O_CREAT|syscall.O_EXCL, mode)
	if err != nil {
		if err == syscall.EMFILE {
			var lim syscall.Rlimit
			syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim)
			tlog.Warn.Printf("Create %q: too many open files. Current \"ulimit -n\": %d", cName, lim.Cur)
		}
		return nil, nil, 0, fs.ToErrno(err)
	}
	rn.chownToCaller(ctx, dirfd, cName)

	f, _, errno := NewFile(fd, cName, rn)
	if errno != 0 {
		return
	}
	e := f.fileTableEntry
	e.ContentLock.Lock()
	err = e.Header.Persist(f.fd)
	e.ContentLock.Unlock()
	if err != nil {
		tlog.Warn.Printf("Create %q: writing file header failed: %v", cName, err)
		f.Release(ctx)
		syscallcompat.Unlinkat(dirfd, cName, 0)
		return nil, nil, 0, toErrno(err)
	}

	st, errno := rn.getattrAt(dirfd, cName, &out.Attr)
	if errno != 0 {
		f.Release(ctx)
		return
	}
	return n.newChild(ctx, st), f, 0, 0
}
