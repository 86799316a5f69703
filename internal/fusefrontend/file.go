package fusefrontend

// FUSE operations on file handles

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/openfiletable"
	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// File implements the go-fuse v2 API (github.com/hanwen/go-fuse/v2/fs)
type File struct {
	fd *os.File
	// Has Release() already been called on this file? This also means that the
	// wlock entry has been freed, so let's not crash trying to access it.
	// Due to concurrency, Release can overtake other operations. These will
	// return EBADF in that case.
	released bool
	// fdLock prevents the fd to be closed while we are in the middle of
	// an operation.
	// Every FUSE entrypoint should RLock(). The only user of Lock() is
	// Release(), which closes the fd and sets "released" to true.
	fdLock sync.RWMutex
	// Content encryption helper
	contentEnc *contentenc.ContentEnc
	// Device and inode number uniquely identify the backing file
	qIno openfiletable.QIno
	// Entry in the open file table
	fileTableEntry *openfiletable.Entry
	// Parent filesystem
	rootNode *RootNode
}

// NewFile returns a new go-fuse File instance based on an already-open file
// descriptor. NewFile takes ownership of the fd and closes it on error.
//
// The file header is loaded into the open file table if this is the first
// handle for the inode. A missing or invalid header starts out zeroed.
func NewFile(fd int, cName string, rn *RootNode) (f *File, st *syscall.Stat_t, errno syscall.Errno) {
	var st2 syscall.Stat_t
	err := syscall.Fstat(fd, &st2)
	if err != nil {
		tlog.Warn.Printf("NewFile: Fstat on fd %d failed: %v\n", fd, err)
		syscall.Close(fd)
		return nil, nil, fs.ToErrno(err)
	}
	osFile := os.NewFile(uintptr(fd), cName)
	qi := openfiletable.QInoFromStat(&st2)
	e := openfiletable.Register(qi)

	e.ContentLock.Lock()
	if e.Header == nil {
		h, err := contentenc.ReadHeader(osFile)
		if err != nil {
			if err != io.EOF {
				tlog.Warn.Printf("NewFile %q: %v, starting with an empty header", cName, err)
			}
			h = contentenc.NewFileHeader()
		}
		e.Header = h
	}
	e.ContentLock.Unlock()

	f = &File{
		fd:             osFile,
		contentEnc:     rn.contentEnc,
		qIno:           qi,
		fileTableEntry: e,
		rootNode:       rn,
	}
	return f, &st2, 0
}

// intFd - return the backing file descriptor as an integer.
func (f *File) intFd() int {
	return int(f.fd.Fd())
}

// Read - FUSE call
func (f *File) Read(ctx context.Context, buf []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 {
		return nil, syscall.EINVAL
	}
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		return nil, syscall.EBADF
	}

	e := f.fileTableEntry
	e.ContentLock.RLock()
	defer e.ContentLock.RUnlock()

	tlog.Debug.Printf("ino%d: FUSE Read: offset=%d length=%d", f.qIno.Ino, off, len(buf))
	length := e.Header.Length
	if uint64(off) >= length {
		return fuse.ReadResultData(nil), 0
	}
	want := min(uint64(len(buf)), length-uint64(off))
	n, err := f.contentEnc.ReadAt(f.fd, buf[:want], off)
	if err != nil {
		tlog.Warn.Printf("ino%d: Read at offset %d failed: %v", f.qIno.Ino, off, err)
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(buf[:n]), 0
}

// Write - FUSE call
//
// The file header is updated and persisted when the write extends the file.
// A failing write in the middle returns the count of bytes that made it to
// disk.
func (f *File) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		// The file descriptor has been closed concurrently.
		tlog.Warn.Printf("ino%d fh%d: Write on released file", f.qIno.Ino, f.intFd())
		return 0, syscall.EBADF
	}
	if f.rootNode.args.ReadOnly {
		return 0, syscall.EROFS
	}

	e := f.fileTableEntry
	e.ContentLock.Lock()
	defer e.ContentLock.Unlock()

	tlog.Debug.Printf("ino%d: FUSE Write: offset=%d length=%d", f.qIno.Ino, off, len(data))
	n, err := f.contentEnc.WriteAt(f.fd, data, off)
	if n > 0 {
		if err2 := growHeader(e.Header, f.fd, uint64(off)+uint64(n)); err2 != nil {
			tlog.Warn.Printf("ino%d: Write: persisting header failed: %v", f.qIno.Ino, err2)
			return 0, toErrno(err2)
		}
	}
	if err != nil {
		tlog.Warn.Printf("ino%d: Write at offset %d failed after %d bytes: %v", f.qIno.Ino, off, n, err)
		if n == 0 {
			return 0, toErrno(err)
		}
	}
	return uint32(n), 0
}

// growHeader raises the length in "h" to "end" and persists it to "w".
// "h" is left alone if the write fails.
func growHeader(h *contentenc.FileHeader, w io.WriterAt, end uint64) error {
	if end <= h.Length {
		return nil
	}
	return persistLength(h, w, end)
}

// persistLength writes "h" with length "n" to "w", then updates "h".
func persistLength(h *contentenc.FileHeader, w io.WriterAt, n uint64) error {
	c := *h
	c.Length = n
	if err := c.Persist(w); err != nil {
		return err
	}
	h.Length = n
	return nil
}

// Release - FUSE call, close file
func (f *File) Release(ctx context.Context) syscall.Errno {
	f.fdLock.Lock()
	if f.released {
		f.fdLock.Unlock()
		return syscall.EBADF
	}
	f.released = true
	openfiletable.Unregister(f.qIno)
	err := f.fd.Close()
	f.fdLock.Unlock()
	return fs.ToErrno(err)
}

// Flush - FUSE call
func (f *File) Flush(ctx context.Context) syscall.Errno {
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		return syscall.EBADF
	}
	return fs.ToErrno(syscallcompat.Flush(f.intFd()))
}

// Fsync - FUSE call
func (f *File) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		return syscall.EBADF
	}
	return fs.ToErrno(syscall.Fsync(f.intFd()))
}

// Getattr FUSE call (like stat)
func (f *File) Getattr(ctx context.Context, a *fuse.AttrOut) syscall.Errno {
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		return syscall.EBADF
	}

	tlog.Debug.Printf("file.GetAttr()")
	st := syscall.Stat_t{}
	err := syscall.Fstat(f.intFd(), &st)
	if err != nil {
		return fs.ToErrno(err)
	}
	f.rootNode.inumMap.TranslateStat(&st)
	a.FromStat(&st)
	if a.IsRegular() {
		e := f.fileTableEntry
		e.ContentLock.RLock()
		a.Size = e.Header.Length
		e.ContentLock.RUnlock()
	}
	return 0
}

// truncate - called by Setattr. Cuts or extends the file to "newSize" and
// persists the file header.
func (f *File) truncate(newSize uint64) syscall.Errno {
	e := f.fileTableEntry
	e.ContentLock.Lock()
	defer e.ContentLock.Unlock()

	oldSize := e.Header.Length
	tlog.Debug.Printf("ino%d: truncate from %d to %d", f.qIno.Ino, oldSize, newSize)
	err := f.contentEnc.Truncate(f.fd, oldSize, newSize)
	if err != nil {
		tlog.Warn.Printf("ino%d: truncate from %d to %d failed: %v", f.qIno.Ino, oldSize, newSize, err)
		return toErrno(err)
	}
	return toErrno(persistLength(e.Header, f.fd, newSize))
}

// Verify checks every block covered by the logical length. Used by fsck.
func (f *File) Verify() error {
	f.fdLock.RLock()
	defer f.fdLock.RUnlock()
	if f.released {
		return syscall.EBADF
	}
	e := f.fileTableEntry
	e.ContentLock.RLock()
	defer e.ContentLock.RUnlock()

	fi, err := f.fd.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return nil
	}
	if _, err := contentenc.ReadHeader(f.fd); err != nil {
		return errors.Join(contentenc.ErrBadHeader, err)
	}
	return f.contentEnc.Verify(f.fd, e.Header.Length)
}
