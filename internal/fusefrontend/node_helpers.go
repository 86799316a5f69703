package fusefrontend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/openfiletable"
	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// toNode casts a generic fs.InodeEmbedder into *Node. Also handles *RootNode
// by return rn.Node.
func toNode(op fs.InodeEmbedder) *Node {
	if r, ok := op.(*RootNode); ok {
		return &r.Node
	}
	return op.(*Node)
}

// Path returns the relative plaintext path of this node
func (n *Node) Path() string {
	return n.Inode.Path(n.Root())
}

// rootNode returns the Root Node of the filesystem.
func (n *Node) rootNode() *RootNode {
	return n.Root().Operations().(*RootNode)
}

// openBackingDir opens the parent backing directory of plaintext path
// "relPath". It returns the dirfd (opened with O_PATH) and the encoded
// basename. For relPath "", cName is ".".
//
// Every intermediate directory is opened with Openat and O_NOFOLLOW, so a
// symlink planted in the storage root cannot redirect us.
func (rn *RootNode) openBackingDir(relPath string) (dirfd int, cName string, err error) {
	// Open cipherdir (following symlinks)
	dirfd, err = syscall.Open(rn.args.Cipherdir, syscall.O_DIRECTORY|syscallcompat.O_PATH, 0)
	if err != nil {
		return -1, "", err
	}
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return dirfd, ".", nil
	}
	parts := strings.Split(relPath, "/")
	for i, name := range parts {
		cName, err = rn.nameTransform.EncryptName(name)
		if err != nil {
			syscall.Close(dirfd)
			return -1, "", err
		}
		// Last part? We are done.
		if i == len(parts)-1 {
			break
		}
		dirfd2, err := syscallcompat.Openat(dirfd, cName, syscall.O_NOFOLLOW|syscall.O_DIRECTORY|syscallcompat.O_PATH, 0)
		syscall.Close(dirfd)
		if err != nil {
			return -1, "", err
		}
		dirfd = dirfd2
	}
	return dirfd, cName, nil
}

// prepareAtSyscall returns a (dirfd, cName) pair that can be used
// with the "___at" family of system calls (openat, fstatat, unlinkat...) to
// access the backing storage directory.
//
// If you pass a `child` file name, the (dirfd, cName) pair will refer to
// a child of this node.
// If `child` is empty, the (dirfd, cName) pair refers to this node itself.
func (n *Node) prepareAtSyscall(child string) (dirfd int, cName string, errno syscall.Errno) {
	p := n.Path()
	if child != "" {
		p = filepath.Join(p, child)
	}
	return n.rootNode().prepareAtPath(p)
}

// prepareAtSyscallMyself is prepareAtSyscall(""), spelled out for
// readability.
func (n *Node) prepareAtSyscallMyself() (dirfd int, cName string, errno syscall.Errno) {
	return n.prepareAtSyscall("")
}

func (rn *RootNode) prepareAtPath(p string) (dirfd int, cName string, errno syscall.Errno) {
	if rn.isFiltered(p) {
		return -1, "", syscall.EPERM
	}
	dirfd, cName, err := rn.openBackingDir(p)
	if err != nil {
		return -1, "", toErrno(err)
	}
	return dirfd, cName, 0
}

// newChild attaches a new child inode to n. `st` must come from getattrAt,
// so it already carries the translated inode number.
func (n *Node) newChild(ctx context.Context, st *syscall.Stat_t) *fs.Inode {
	id := fs.StableAttr{
		Mode: uint32(st.Mode),
		Gen:  1,
		Ino:  st.Ino,
	}
	node := &Node{}
	return n.NewInode(ctx, node, id)
}

// getattrAt stats "cName" in "dirfd" and fills `out` with the translated
// inode number and the logical size.
func (rn *RootNode) getattrAt(dirfd int, cName string, out *fuse.Attr) (*syscall.Stat_t, syscall.Errno) {
	st, err := syscallcompat.Fstatat2(dirfd, cName)
	if err != nil {
		return nil, toErrno(err)
	}
	qi := openfiletable.QInoFromStat(st)
	rn.inumMap.TranslateStat(st)
	out.FromStat(st)
	if out.IsRegular() {
		out.Size = rn.logicalSize(dirfd, cName, qi, st)
	}
	return st, 0
}

// logicalSize returns the length recorded in the file header.
//
// An open file has its header in the open file table. Otherwise the header
// is read from disk. A missing or invalid header means length zero.
func (rn *RootNode) logicalSize(dirfd int, cName string, qi openfiletable.QIno, st *syscall.Stat_t) uint64 {
	if e := openfiletable.Lookup(qi); e != nil {
		e.ContentLock.RLock()
		defer e.ContentLock.RUnlock()
		if e.Header != nil {
			return e.Header.Length
		}
	}
	if st.Size < contentenc.HeaderLen {
		return 0
	}
	h, err := readHeaderAt(dirfd, cName)
	if err != nil {
		tlog.Debug.Printf("getattr %q: no valid header: %v", cName, err)
		return 0
	}
	return h.Length
}

// readHeaderAt reads the file header of "cName" in "dirfd" without going
// through the open file table.
func readHeaderAt(dirfd int, cName string) (*contentenc.FileHeader, error) {
	fd, err := syscallcompat.Openat(dirfd, cName, syscall.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), cName)
	defer f.Close()
	return contentenc.ReadHeader(f)
}

// chownToCaller makes the creating user the owner of a new backing entry.
// Only active with Args.PreserveOwner.
func (rn *RootNode) chownToCaller(ctx context.Context, dirfd int, cName string) {
	if !rn.args.PreserveOwner {
		return
	}
	caller, ok := fuse.FromContext(ctx)
	if !ok {
		return
	}
	err := syscallcompat.Fchownat(dirfd, cName, int(caller.Uid), int(caller.Gid))
	if err != nil {
		tlog.Warn.Printf("chown %q to %d:%d failed: %v", cName, caller.Uid, caller.Gid, err)
	}
}
