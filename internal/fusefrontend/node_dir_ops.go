package fusefrontend

import (
	"context"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/openfiletable"
	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// Mkdir - FUSE call. Create a directory at "name".
//
// Symlink-safe through use of Mkdirat().
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	rn := n.rootNode()
	if rn.args.ReadOnly {
		return nil, syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return nil, errno
	}
	defer syscall.Close(dirfd)

	err := unix.Mkdirat(dirfd, cName, mode)
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	rn.chownToCaller(ctx, dirfd, cName)

	st, errno := rn.getattrAt(dirfd, cName, &out.Attr)
	if errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, st), 0
}

// Readdir - FUSE call.
//
// This function is symlink-safe through use of openBackingDir() and
// Openat().
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := n.rootNode().ListDirPath(n.Path())
	if errno != 0 {
		return nil, errno
	}
	return fs.NewListDirStream(entries), 0
}

// ListDirPath returns the decoded entries of the directory at plaintext
// path "relPath".
//
// Names that fail to decode are skipped and reported through
// MitigatedCorruptions. The config file is hidden in the root directory.
func (rn *RootNode) ListDirPath(relPath string) ([]fuse.DirEntry, syscall.Errno) {
	parentDirFd, cDirName, errno := rn.prepareAtPath(relPath)
	if errno != 0 {
		return nil, errno
	}
	defer syscall.Close(parentDirFd)

	fd, err := syscallcompat.Openat(parentDirFd, cDirName, syscall.O_RDONLY|syscall.O_DIRECTORY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	dir := os.NewFile(uintptr(fd), cDirName)
	defer dir.Close()
	cNames, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	isRoot := cDirName == "."
	plain := make([]fuse.DirEntry, 0, len(cNames))
	for _, cName := range cNames {
		if isRoot && cName == configfile.ConfDefaultName {
			// silently ignore "aesfs.conf" in the top level dir
			continue
		}
		if isRoot && cName == configfile.ConfDefaultName+".tmp" {
			continue
		}
		name, err := rn.nameTransform.DecryptName(cName)
		if err != nil {
			tlog.Warn.Printf("Readdir %q: invalid entry %q: %v", relPath, cName, err)
			rn.reportMitigatedCorruption(cName)
			continue
		}
		st, err := syscallcompat.Fstatat2(fd, cName)
		if err != nil {
			// Deleted behind our back
			tlog.Debug.Printf("Readdir %q: skipping %q: %v", relPath, cName, err)
			continue
		}
		plain = append(plain, fuse.DirEntry{
			Name: name,
			Mode: st.Mode,
			Ino:  rn.inumMap.Translate(openfiletable.QInoFromStat(st)),
		})
	}
	return plain, 0
}

// Rmdir - FUSE call.
//
// Symlink-safe through Unlinkat() + AT_REMOVEDIR.
func (n *Node) Rmdir(ctx context.Context, name string) (code syscall.Errno) {
	if n.rootNode().args.ReadOnly {
		return syscall.EROFS
	}
	dirfd, cName, errno := n.prepareAtSyscall(name)
	if errno != 0 {
		return errno
	}
	defer syscall.Close(dirfd)

	err := syscallcompat.Unlinkat(dirfd, cName, unix.AT_REMOVEDIR)
	return fs.ToErrno(err)
}
