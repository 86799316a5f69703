package fusefrontend

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// Setattr - FUSE call. chmod, chown and utimens go straight to the backing
// file. A size change goes through the block engine and the file header.
func (f *File) Setattr(ctx context.Context, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if errno := f.setAttr(in); errno != 0 {
		return errno
	}
	return f.Getattr(ctx, out)
}

func (f *File) setAttr(in *fuse.SetAttrIn) syscall.Errno {
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		tlog.Warn.Printf("ino%d fh%d: Setattr on released file", f.qIno.Ino, f.intFd())
		return syscall.EBADF
	}
	if f.rootNode.args.ReadOnly {
		return syscall.EROFS
	}
	fd := f.intFd()

	if mode, ok := in.GetMode(); ok {
		if err := unix.Fchmod(fd, mode); err != nil {
			return fs.ToErrno(err)
		}
	}
	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		if err := unix.Fchown(fd, ownerArg(uid, uok), ownerArg(gid, gok)); err != nil {
			return fs.ToErrno(err)
		}
	}
	atime, aok := in.GetATime()
	mtime, mok := in.GetMTime()
	if aok || mok {
		ap, mp := &atime, &mtime
		if !aok {
			ap = nil
		}
		if !mok {
			mp = nil
		}
		if err := syscallcompat.FutimesNano(fd, ap, mp); err != nil {
			return fs.ToErrno(err)
		}
	}
	if sz, ok := in.GetSize(); ok {
		return f.truncate(sz)
	}
	return 0
}

// ownerArg maps an unset uid or gid to -1, which fchown(2) leaves alone.
func ownerArg(id uint32, ok bool) int {
	if !ok {
		return -1
	}
	return int(id)
}
