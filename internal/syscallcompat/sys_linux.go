// Package syscallcompat wraps the *at family of Linux syscalls used to access
// the storage root without following symlinks.
package syscallcompat

import (
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const (
	// O_DIRECT means uncached I/O
	O_DIRECT = syscall.O_DIRECT
	// O_PATH opens a handle without opening the file itself
	O_PATH = unix.O_PATH

	RENAME_NOREPLACE = unix.RENAME_NOREPLACE
	RENAME_EXCHANGE  = unix.RENAME_EXCHANGE
	RENAME_WHITEOUT  = unix.RENAME_WHITEOUT
)

// Openat wraps the Openat syscall.
// O_NOFOLLOW is added when O_CREAT is not set, and O_CREAT always comes with
// O_EXCL, so the call can never follow a symlink.
// Retries on EINTR.
func Openat(dirfd int, path string, flags int, mode uint32) (fd int, err error) {
	if flags&syscall.O_CREAT != 0 {
		if flags&syscall.O_EXCL == 0 {
			tlog.Warn.Printf("Openat: O_CREAT without O_EXCL: flags = %#x", flags)
			flags |= syscall.O_EXCL
		}
	} else if flags&syscall.O_NOFOLLOW == 0 {
		tlog.Warn.Printf("Openat: O_NOFOLLOW missing: flags = %#x", flags)
		flags |= syscall.O_NOFOLLOW
	}
	return retry(func() (int, error) {
		return unix.Openat(dirfd, path, flags, mode)
	})
}

// Fstatat2 calls fstatat(AT_SYMLINK_NOFOLLOW) and returns a freshly
// allocated syscall.Stat_t.
// Retries on EINTR.
func Fstatat2(dirfd int, path string) (*syscall.Stat_t, error) {
	var st unix.Stat_t
	err := retryEINTR(func() error {
		return unix.Fstatat(dirfd, path, &st, unix.AT_SYMLINK_NOFOLLOW)
	})
	if err != nil {
		return nil, err
	}
	return unix2syscall(&st), nil
}

func unix2syscall(u *unix.Stat_t) *syscall.Stat_t {
	return &syscall.Stat_t{
		Dev:     u.Dev,
		Ino:     u.Ino,
		Nlink:   u.Nlink,
		Mode:    u.Mode,
		Uid:     u.Uid,
		Gid:     u.Gid,
		Rdev:    u.Rdev,
		Size:    u.Size,
		Blksize: u.Blksize,
		Blocks:  u.Blocks,
		Atim:    syscall.NsecToTimespec(unix.TimespecToNsec(u.Atim)),
		Mtim:    syscall.NsecToTimespec(unix.TimespecToNsec(u.Mtim)),
		Ctim:    syscall.NsecToTimespec(unix.TimespecToNsec(u.Ctim)),
	}
}

// Readlinkat is a convenience wrapper around unix.Readlinkat() that takes
// care of buffer sizing. Implemented like os.Readlink().
func Readlinkat(dirfd int, path string) (string, error) {
	for bufsz := 128; ; bufsz *= 2 {
		buf := make([]byte, bufsz)
		n, err := unix.Readlinkat(dirfd, path, buf)
		if err != nil {
			return "", err
		}
		if n < bufsz {
			return string(buf[0:n]), nil
		}
	}
}

// Fchownat syscall, never following symlinks.
func Fchownat(dirfd int, path string, uid int, gid int) (err error) {
	return unix.Fchownat(dirfd, path, uid, gid, unix.AT_SYMLINK_NOFOLLOW)
}

// FchmodatNofollow is like Fchmodat but never follows symlinks.
//
// Linux does not implement AT_SYMLINK_NOFOLLOW for fchmodat, so we open an
// O_PATH handle, check the type and chmod through /proc/self/fd.
func FchmodatNofollow(dirfd int, path string, mode uint32) (err error) {
	fd, err := syscall.Openat(dirfd, path, syscall.O_NOFOLLOW|O_PATH, 0)
	if err != nil {
		return err
	}
	defer syscall.Close(fd)

	var st syscall.Stat_t
	err = syscall.Fstat(fd, &st)
	if err != nil {
		return err
	}
	if st.Mode&syscall.S_IFMT == syscall.S_IFLNK {
		return syscall.ELOOP
	}
	return syscall.Chmod(ProcFdPath(fd, ""), mode)
}

// ProcFdPath returns the /proc/self/fd path of "fd", or of "name" inside the
// directory "fd" if name is not empty.
func ProcFdPath(fd int, name string) string {
	if name == "" {
		return fmt.Sprintf("/proc/self/fd/%d", fd)
	}
	return fmt.Sprintf("/proc/self/fd/%d/%s", fd, name)
}

func timesToTimespec(a *time.Time, m *time.Time) []unix.Timespec {
	ts := make([]unix.Timespec, 2)
	ts[0] = unix.Timespec(fuse.UtimeToTimespec(a))
	ts[1] = unix.Timespec(fuse.UtimeToTimespec(m))
	return ts
}

// FutimesNano syscall. Goes through /proc/self/fd so we need no futimens
// wrapper.
func FutimesNano(fd int, a *time.Time, m *time.Time) (err error) {
	ts := timesToTimespec(a, m)
	return unix.UtimesNanoAt(unix.AT_FDCWD, ProcFdPath(fd, ""), ts, 0)
}

// UtimesNanoAtNofollow is like UtimesNanoAt but never follows symlinks.
// Retries on EINTR.
func UtimesNanoAtNofollow(dirfd int, path string, a *time.Time, m *time.Time) (err error) {
	ts := timesToTimespec(a, m)
	return retryEINTR(func() error {
		return unix.UtimesNanoAt(dirfd, path, ts, unix.AT_SYMLINK_NOFOLLOW)
	})
}

// Renameat2 with flags (RENAME_NOREPLACE, RENAME_EXCHANGE).
// Retries on EINTR.
func Renameat2(olddirfd int, oldpath string, newdirfd int, newpath string, flags uint) (err error) {
	return retryEINTR(func() error {
		if flags == 0 {
			return unix.Renameat(olddirfd, oldpath, newdirfd, newpath)
		}
		return unix.Renameat2(olddirfd, oldpath, newdirfd, newpath, flags)
	})
}

// Mknodat wraps the Mknodat syscall.
// Retries on EINTR.
func Mknodat(dirfd int, path string, mode uint32, dev int) (err error) {
	return retryEINTR(func() error {
		return unix.Mknodat(dirfd, path, mode, dev)
	})
}
