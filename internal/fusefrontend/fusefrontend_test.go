package fusefrontend

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/nametransform"
	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
)

func newTestRoot(t *testing.T, kind codec.Kind, plaintextNames bool) *RootNode {
	key, iv := cryptocore.LegacyKDF([]byte("secret"), []byte("pepper"), cryptocore.DefaultRounds)
	cc := cryptocore.New(key, iv)
	c, err := codec.New(kind, codec.Secret{Cipher: cc, Passphrase: []byte("secret")})
	require.NoError(t, err)
	nt := nametransform.New(cc, plaintextNames)
	args := Args{Cipherdir: t.TempDir(), PlaintextNames: plaintextNames}
	return NewRootNode(args, contentenc.New(c), nt)
}

// createBacking creates an empty backing file for plaintext name "name" in
// the root directory and returns its backing path.
func createBacking(t *testing.T, rn *RootNode, name string) string {
	cName, err := rn.nameTransform.EncryptName(name)
	require.NoError(t, err)
	p := filepath.Join(rn.args.Cipherdir, cName)
	require.NoError(t, os.WriteFile(p, nil, 0600))
	return p
}

func TestMangleOpenFlags(t *testing.T) {
	rn := &RootNode{}
	testCases := []struct {
		in, want int
	}{
		{syscall.O_RDONLY, syscall.O_RDONLY | syscall.O_NOFOLLOW},
		{syscall.O_WRONLY, syscall.O_RDWR | syscall.O_NOFOLLOW},
		{syscall.O_WRONLY | syscall.O_APPEND, syscall.O_RDWR | syscall.O_NOFOLLOW},
		{syscall.O_RDWR | syscallcompat.O_DIRECT, syscall.O_RDWR | syscall.O_NOFOLLOW},
		{syscall.O_RDWR | syscall.O_CREAT | syscall.O_TRUNC, syscall.O_RDWR | syscall.O_NOFOLLOW},
	}
	for _, tc := range testCases {
		have := rn.mangleOpenFlags(uint32(tc.in))
		require.Equal(t, tc.want, have, "in=%#x", tc.in)
	}
}

func TestToErrno(t *testing.T) {
	require.Equal(t, syscall.Errno(0), toErrno(nil))
	require.Equal(t, syscall.EIO, toErrno(contentenc.ErrBadCRC))
	require.Equal(t, syscall.EIO, toErrno(cryptocore.ErrCipher))
	require.Equal(t, syscall.EIO, toErrno(codec.ErrSize))
	require.Equal(t, syscall.ENAMETOOLONG, toErrno(syscall.ENAMETOOLONG))
	require.Equal(t, syscall.ENOENT, toErrno(&os.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}))
}

func TestFileReadWrite(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []codec.Kind{codec.KindAES, codec.KindXOR, codec.KindPlain} {
		t.Run(kind.String(), func(t *testing.T) {
			rn := newTestRoot(t, kind, false)
			backing := createBacking(t, rn, "notes")

			f, errno := rn.OpenPath("notes", syscall.O_WRONLY)
			require.Equal(t, syscall.Errno(0), errno)
			data := bytes.Repeat([]byte("0123456789"), 200)
			n, errno := f.Write(ctx, data, 100)
			require.Equal(t, syscall.Errno(0), errno)
			require.Equal(t, uint32(len(data)), n)

			var out fuse.AttrOut
			require.Equal(t, syscall.Errno(0), f.Getattr(ctx, &out))
			require.Equal(t, uint64(2100), out.Size)
			require.Equal(t, syscall.Errno(0), f.Release(ctx))
			require.Equal(t, syscall.EBADF, f.Release(ctx))

			// The header is on disk
			bf, err := os.Open(backing)
			require.NoError(t, err)
			h, err := contentenc.ReadHeader(bf)
			bf.Close()
			require.NoError(t, err)
			require.Equal(t, uint64(2100), h.Length)

			f, errno = rn.OpenPath("notes", syscall.O_RDONLY)
			require.Equal(t, syscall.Errno(0), errno)
			defer f.Release(ctx)
			buf := make([]byte, 4096)
			res, errno := f.Read(ctx, buf, 0)
			require.Equal(t, syscall.Errno(0), errno)
			have, _ := res.Bytes(nil)
			require.Len(t, have, 2100)
			require.Equal(t, make([]byte, 100), have[:100])
			require.Equal(t, data, have[100:])

			// Reads past the end return nothing
			res, errno = f.Read(ctx, buf, 5000)
			require.Equal(t, syscall.Errno(0), errno)
			require.Equal(t, 0, res.Size())
			require.NoError(t, f.Verify())
		})
	}
}

// A read inside the unwritten tail of a block is not EOF when the file
// goes on.
func TestReadInsideGap(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []codec.Kind{codec.KindAES, codec.KindXOR, codec.KindPlain} {
		t.Run(kind.String(), func(t *testing.T) {
			rn := newTestRoot(t, kind, false)
			createBacking(t, rn, "gap")
			f, errno := rn.OpenPath("gap", syscall.O_RDWR)
			require.Equal(t, syscall.Errno(0), errno)
			defer f.Release(ctx)

			_, errno = f.Write(ctx, []byte("A"), 0)
			require.Equal(t, syscall.Errno(0), errno)
			_, errno = f.Write(ctx, []byte("B"), 600)
			require.Equal(t, syscall.Errno(0), errno)

			res, errno := f.Read(ctx, make([]byte, 100), 100)
			require.Equal(t, syscall.Errno(0), errno)
			have, _ := res.Bytes(nil)
			require.Equal(t, make([]byte, 100), have)

			res, errno = f.Read(ctx, make([]byte, 1000), 1)
			require.Equal(t, syscall.Errno(0), errno)
			have, _ = res.Bytes(nil)
			require.Len(t, have, 600)
			require.Equal(t, byte('B'), have[599])
		})
	}
}

type failingWriterAt struct{}

func (failingWriterAt) WriteAt(p []byte, off int64) (int, error) {
	return 0, syscall.ENOSPC
}

func TestGrowHeader(t *testing.T) {
	h := contentenc.NewFileHeader()
	h.Length = 10
	require.ErrorIs(t, growHeader(h, failingWriterAt{}, 20), syscall.ENOSPC)
	require.Equal(t, uint64(10), h.Length)

	// Shrinking is not growing
	require.NoError(t, growHeader(h, failingWriterAt{}, 5))
	require.Equal(t, uint64(10), h.Length)

	f, err := os.Create(filepath.Join(t.TempDir(), "h"))
	require.NoError(t, err)
	defer f.Close()
	require.ErrorIs(t, persistLength(h, failingWriterAt{}, 0), syscall.ENOSPC)
	require.Equal(t, uint64(10), h.Length)

	require.NoError(t, growHeader(h, f, 20))
	require.Equal(t, uint64(20), h.Length)
	onDisk, err := contentenc.ReadHeader(f)
	require.NoError(t, err)
	require.Equal(t, uint64(20), onDisk.Length)
}

func TestFileTruncate(t *testing.T) {
	ctx := context.Background()
	rn := newTestRoot(t, codec.KindAES, false)
	createBacking(t, rn, "t")
	f, errno := rn.OpenPath("t", syscall.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)
	defer f.Release(ctx)

	data := bytes.Repeat([]byte{0xaa}, 1000)
	_, errno = f.Write(ctx, data, 0)
	require.Equal(t, syscall.Errno(0), errno)

	var out fuse.AttrOut
	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_SIZE
	in.Size = 10
	require.Equal(t, syscall.Errno(0), f.Setattr(ctx, in, &out))
	require.Equal(t, uint64(10), out.Size)

	in.Size = 3000
	require.Equal(t, syscall.Errno(0), f.Setattr(ctx, in, &out))
	require.Equal(t, uint64(3000), out.Size)

	buf := make([]byte, 4000)
	res, errno := f.Read(ctx, buf, 0)
	require.Equal(t, syscall.Errno(0), errno)
	have, _ := res.Bytes(nil)
	require.Len(t, have, 3000)
	require.Equal(t, data[:10], have[:10])
	require.Equal(t, make([]byte, 2990), have[10:])
	require.NoError(t, f.Verify())
}

func TestSharedHeader(t *testing.T) {
	ctx := context.Background()
	rn := newTestRoot(t, codec.KindAES, false)
	createBacking(t, rn, "shared")
	f1, errno := rn.OpenPath("shared", syscall.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)
	defer f1.Release(ctx)
	f2, errno := rn.OpenPath("shared", syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	defer f2.Release(ctx)
	require.Same(t, f1.fileTableEntry, f2.fileTableEntry)

	_, errno = f1.Write(ctx, []byte("hello"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	res, errno := f2.Read(ctx, make([]byte, 10), 0)
	require.Equal(t, syscall.Errno(0), errno)
	have, _ := res.Bytes(nil)
	require.Equal(t, "hello", string(have))
}

func TestReadCorrupt(t *testing.T) {
	ctx := context.Background()
	rn := newTestRoot(t, codec.KindPlain, true)
	backing := createBacking(t, rn, "c")
	f, errno := rn.OpenPath("c", syscall.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)
	defer f.Release(ctx)
	_, errno = f.Write(ctx, []byte("some data"), 0)
	require.Equal(t, syscall.Errno(0), errno)

	// Flip a body byte behind our back
	bf, err := os.OpenFile(backing, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = bf.WriteAt([]byte{'X'}, contentenc.HeaderLen+contentenc.BlockHeaderLen)
	require.NoError(t, err)
	bf.Close()

	_, errno = f.Read(ctx, make([]byte, 10), 0)
	require.Equal(t, syscall.EIO, errno)
	require.Error(t, f.Verify())
}

func TestListDirPath(t *testing.T) {
	rn := newTestRoot(t, codec.KindAES, false)
	rn.MitigatedCorruptions = make(chan string, 10)
	createBacking(t, rn, "notes")
	createBacking(t, rn, "todo.txt")
	dir := rn.args.Cipherdir
	require.NoError(t, os.WriteFile(filepath.Join(dir, configfile.ConfDefaultName), []byte("{}"), 0400))
	// Cipher-shaped but undecodable
	bad := "zz" + string(bytes.Repeat([]byte("00"), 15))
	require.NoError(t, os.WriteFile(filepath.Join(dir, bad), nil, 0600))
	// Not cipher-shaped: passes through
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy"), nil, 0600))
	cSub, _ := rn.nameTransform.EncryptName("sub")
	require.NoError(t, os.Mkdir(filepath.Join(dir, cSub), 0700))

	entries, errno := rn.ListDirPath("")
	require.Equal(t, syscall.Errno(0), errno)
	names := map[string]uint32{}
	for _, e := range entries {
		names[e.Name] = e.Mode & syscall.S_IFMT
	}
	require.Equal(t, map[string]uint32{
		"notes":    syscall.S_IFREG,
		"todo.txt": syscall.S_IFREG,
		"legacy":   syscall.S_IFREG,
		"sub":      syscall.S_IFDIR,
	}, names)
	require.Equal(t, bad, <-rn.MitigatedCorruptions)

	entries, errno = rn.ListDirPath("sub")
	require.Equal(t, syscall.Errno(0), errno)
	require.Empty(t, entries)
	_, errno = rn.ListDirPath("nope")
	require.Equal(t, syscall.ENOENT, errno)
}

func TestPlaintextNamesFilter(t *testing.T) {
	rn := newTestRoot(t, codec.KindXOR, true)
	_, _, errno := rn.prepareAtPath(configfile.ConfDefaultName)
	require.Equal(t, syscall.EPERM, errno)
	dirfd, cName, errno := rn.prepareAtPath("sub/" + configfile.ConfDefaultName)
	// Only the root directory is protected. "sub" does not exist.
	require.Equal(t, syscall.ENOENT, errno, "dirfd=%d cName=%q", dirfd, cName)
}

func TestOpenBackingDir(t *testing.T) {
	rn := newTestRoot(t, codec.KindAES, false)
	dir := rn.args.Cipherdir
	cA, _ := rn.nameTransform.EncryptName("a")
	cB, _ := rn.nameTransform.EncryptName("b")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, cA, cB), 0700))

	dirfd, cName, err := rn.openBackingDir("")
	require.NoError(t, err)
	require.Equal(t, ".", cName)
	syscall.Close(dirfd)

	dirfd, cName, err = rn.openBackingDir("a/b/c")
	require.NoError(t, err)
	cC, _ := rn.nameTransform.EncryptName("c")
	require.Equal(t, cC, cName)
	syscall.Close(dirfd)

	// A symlink inside the storage root is never followed
	require.NoError(t, os.Symlink(filepath.Join(dir, cA), filepath.Join(dir, cB)))
	_, _, err = rn.openBackingDir("b/b/x")
	require.Error(t, err)

	_, _, err = rn.openBackingDir("a/" + string(bytes.Repeat([]byte("x"), nametransform.MaxPlainNameLen+1)))
	require.Equal(t, syscall.ENAMETOOLONG, err)
}

func TestReadOnly(t *testing.T) {
	rn := newTestRoot(t, codec.KindAES, false)
	rn.args.ReadOnly = true
	createBacking(t, rn, "ro")
	_, errno := rn.OpenPath("ro", syscall.O_RDWR)
	require.Equal(t, syscall.EROFS, errno)
	f, errno := rn.OpenPath("ro", syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	defer f.Release(context.Background())
	_, errno = f.Write(context.Background(), []byte("x"), 0)
	require.Equal(t, syscall.EROFS, errno)
}

func TestSetattrMode(t *testing.T) {
	ctx := context.Background()
	rn := newTestRoot(t, codec.KindPlain, false)
	backing := createBacking(t, rn, "m")
	f, errno := rn.OpenPath("m", syscall.O_RDWR)
	require.Equal(t, syscall.Errno(0), errno)
	defer f.Release(ctx)

	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_MODE
	in.Mode = 0640
	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), f.Setattr(ctx, in, &out))
	st, err := os.Stat(backing)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0640), st.Mode().Perm())

	require.Equal(t, -1, ownerArg(1000, false))
	require.Equal(t, 1000, ownerArg(1000, true))
}
