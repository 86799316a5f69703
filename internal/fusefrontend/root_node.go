package fusefrontend

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/nametransform"
	"github.com/matteobertozzi/aesfs/internal/openfiletable"
	"github.com/matteobertozzi/aesfs/internal/syscallcompat"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// RootNode is the root of the filesystem tree of Nodes.
type RootNode struct {
	Node
	// args stores configuration arguments
	args Args
	// Filename encryption helper
	nameTransform *nametransform.NameTransform
	// Content encryption helper
	contentEnc *contentenc.ContentEnc
	// This lock is used by openWriteOnlyFile() to block concurrent opens while
	// it relaxes the permissions on a file.
	openWriteOnlyLock sync.RWMutex
	// MitigatedCorruptions is used to report data corruption that is internally
	// mitigated by ignoring the corrupt item. For example, when Readdir finds
	// a corrupt filename, we still return the other valid filenames.
	// The corruption is logged to syslog to inform the user, and in addition,
	// the corrupt filename is sent to this channel via
	// reportMitigatedCorruption(). "aesfs -fsck" reads from the channel.
	MitigatedCorruptions chan string
	// inumMap translates inode numbers from different devices to unique inode
	// numbers.
	inumMap *openfiletable.InumMap
}

// NewRootNode returns the root of a new tree serving args.Cipherdir.
func NewRootNode(args Args, c *contentenc.ContentEnc, n *nametransform.NameTransform) *RootNode {
	var rootDev uint64
	var st syscall.Stat_t
	if err := syscall.Stat(args.Cipherdir, &st); err != nil {
		tlog.Warn.Printf("Could not stat backing directory %q: %v", args.Cipherdir, err)
	} else {
		rootDev = uint64(st.Dev)
	}
	return &RootNode{
		args:          args,
		nameTransform: n,
		contentEnc:    c,
		inumMap:       openfiletable.NewInumMap(rootDev),
	}
}

// AfterUnmount is called by main.doMount() after unmount
func (rn *RootNode) AfterUnmount() {
	if n := openfiletable.CountOpenFiles(); n > 0 {
		tlog.Warn.Printf("AfterUnmount: %d files still open", n)
	}
	tlog.Debug.Printf("AfterUnmount: %d write operations, %d remapped inode numbers",
		openfiletable.WriteOpCount(), rn.inumMap.Count())
}

// mangleOpenFlags is used by Create() and Open() to convert the open flags the user
// wants to the flags we internally use to open the backing file.
// The returned flags always contain O_NOFOLLOW.
func (rn *RootNode) mangleOpenFlags(flags uint32) (newFlags int) {
	newFlags = int(flags)
	// Convert WRONLY to RDWR. We always need read access to do read-modify-write cycles.
	if (newFlags & syscall.O_ACCMODE) == syscall.O_WRONLY {
		newFlags = newFlags ^ os.O_WRONLY | os.O_RDWR
	}
	// We also cannot open the file in append mode, we need to seek back for RMW
	newFlags = newFlags &^ os.O_APPEND
	// O_DIRECT accesses must be aligned in both offset and length. Due to the
	// file header and the block headers, alignment will be off, even if
	// userspace makes aligned accesses. Just fall back to buffered IO.
	newFlags = newFlags &^ syscallcompat.O_DIRECT
	// Create and Open are two separate FUSE operations, so O_CREAT should not
	// be part of the open flags.
	newFlags = newFlags &^ syscall.O_CREAT
	// O_TRUNC would cut off the file header. Truncation goes through Setattr.
	newFlags = newFlags &^ syscall.O_TRUNC
	// We always want O_NOFOLLOW to be safe against symlink races
	newFlags |= syscall.O_NOFOLLOW
	return newFlags
}

// reportMitigatedCorruption is used to report a corruption that was transparently
// mitigated and did not return an error to the user. Pass the name of the corrupt
// item (filename for OpenDir(), xattr name for ListXAttr() etc).
// See the MitigatedCorruptions channel for more info.
func (rn *RootNode) reportMitigatedCorruption(item string) {
	if rn.MitigatedCorruptions == nil {
		return
	}
	select {
	case rn.MitigatedCorruptions <- item:
	case <-time.After(1 * time.Second):
		tlog.Warn.Printf("BUG: reportMitigatedCorruption: nobody is listening on the channel, dropping %q", item)
	}
}

// isFiltered - check if plaintext "path" should be forbidden
//
// With hex names, the config file can never collide with a plaintext name
// (its encrypted form is hex). With plaintext names, prevent the user from
// creating or accessing aesfs.conf in the root directory.
func (rn *RootNode) isFiltered(path string) bool {
	if !rn.args.PlaintextNames {
		return false
	}
	if path == configfile.ConfDefaultName {
		tlog.Info.Printf("The name /%s is reserved when -plaintextnames is used\n",
			configfile.ConfDefaultName)
		return true
	}
	return false
}
