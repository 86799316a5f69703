package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/fusefrontend"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

type fsckObj struct {
	rootNode *fusefrontend.RootNode
	// mu protects corruptList
	mu sync.Mutex
	// List of corrupt files
	corruptList []string
	// stop the watchMitigatedCorruptions goroutine
	watchDone chan struct{}
}

func (ck *fsckObj) markCorrupt(path string) {
	ck.mu.Lock()
	ck.corruptList = append(ck.corruptList, path)
	ck.mu.Unlock()
}

// Watch for mitigated corruptions that occur during ListDirPath()
func (ck *fsckObj) watchMitigatedCorruptionsListDir(path string) {
	for {
		select {
		case item := <-ck.rootNode.MitigatedCorruptions:
			fmt.Printf("fsck: corrupt entry in dir %q: %q\n", path, item)
			ck.markCorrupt(filepath.Join(path, item))
		case <-ck.watchDone:
			return
		}
	}
}

// Recursively check dir for corruption
func (ck *fsckObj) dir(relPath string) {
	tlog.Debug.Printf("ck.dir %q\n", relPath)
	ck.watchDone = make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ck.watchMitigatedCorruptionsListDir(relPath)
	}()
	entries, errno := ck.rootNode.ListDirPath(relPath)
	close(ck.watchDone)
	wg.Wait()
	if errno != 0 {
		fmt.Printf("fsck: error opening dir %q: %v\n", relPath, errno)
		ck.markCorrupt(relPath)
		return
	}
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		nextPath := filepath.Join(relPath, entry.Name)
		filetype := entry.Mode & syscall.S_IFMT
		switch filetype {
		case syscall.S_IFDIR:
			ck.dir(nextPath)
		case syscall.S_IFREG:
			ck.file(nextPath)
		case syscall.S_IFLNK, syscall.S_IFIFO, syscall.S_IFSOCK, syscall.S_IFBLK, syscall.S_IFCHR:
			// Symlink targets and special files are stored as-is.
			// The name was checked by ListDirPath.
		default:
			fmt.Printf("fsck: unhandled file type %x\n", filetype)
		}
	}
}

// check file for corruption
func (ck *fsckObj) file(relPath string) {
	tlog.Debug.Printf("ck.file %q\n", relPath)
	f, errno := ck.rootNode.OpenPath(relPath, syscall.O_RDONLY)
	if errno != 0 {
		fmt.Printf("fsck: error opening file %q: %v\n", relPath, errno)
		if errno == syscall.EACCES && os.Getuid() != 0 {
			fmt.Printf("fsck: Permission denied. Try running as root.\n")
		}
		ck.markCorrupt(relPath)
		return
	}
	defer f.Release(context.Background())
	if err := f.Verify(); err != nil {
		fmt.Printf("fsck: corrupt file %q: %v\n", relPath, err)
		ck.markCorrupt(relPath)
	}
}

// check walks the whole tree and returns the list of corrupt items.
func (ck *fsckObj) check() []string {
	ck.rootNode.MitigatedCorruptions = make(chan string)
	ck.dir("")
	return ck.corruptList
}

func fsck(args *argContainer) (exitcode int) {
	// Read-only mode
	args.ro = true
	args.allow_other = false
	rn, wipeKeys := initFuseFrontend(args)
	defer wipeKeys()
	ck := fsckObj{rootNode: rn}
	corrupt := ck.check()
	if len(corrupt) == 0 {
		fmt.Printf("fsck summary: no problems found\n")
		return 0
	}
	fmt.Printf("fsck summary: %d corrupt files\n", len(corrupt))
	return exitcodes.FsckErrors
}
