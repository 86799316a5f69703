// Package openfiletable maintains a table of currently opened files, identified
// by the device number + inode number pair. fusefrontend uses it to share one
// FileHeader between all handles of a file and to lock files against
// concurrent writes.
package openfiletable

import (
	"sync"
	"sync/atomic"

	"github.com/matteobertozzi/aesfs/internal/contentenc"
)

// Writing partial blocks means we have to do read-modify-write cycles, and
// every write may move the logical length in the header. Concurrent writers
// to one file are serialized by Entry.ContentLock.
var t table

func init() {
	t.entries = make(map[QIno]*Entry)
}

type table struct {
	// writeOpCount counts entry.ContentLock.Lock() calls. As every operation
	// that modifies a file should call it, this effectively serves as a
	// write-operation counter. Accessed with atomic operations only.
	writeOpCount atomic.Uint64
	// Protects map access
	sync.Mutex
	entries map[QIno]*Entry
}

// Entry is an entry in the open file table
type Entry struct {
	// Reference count. Protected by the table lock.
	refCount int
	// ContentLock protects on-disk content and Header. Readers take the read
	// lock, everything that modifies the file takes the write lock.
	ContentLock countingMutex
	// Header is the file header shared by all open handles of this inode.
	// Nil until the first opener loaded it.
	Header *contentenc.FileHeader
}

// Register creates an open file table entry for "qi" (or increments the
// reference count if the entry already exists) and returns the entry.
func Register(qi QIno) *Entry {
	t.Lock()
	defer t.Unlock()

	e := t.entries[qi]
	if e == nil {
		e = &Entry{}
		t.entries[qi] = e
	}
	e.refCount++
	return e
}

// Unregister decrements the reference count for "qi" and deletes the entry
// from the open file table if the reference count reaches 0.
func Unregister(qi QIno) {
	t.Lock()
	defer t.Unlock()

	e := t.entries[qi]
	if e == nil {
		return
	}
	e.refCount--
	if e.refCount == 0 {
		delete(t.entries, qi)
	}
}

// Lookup returns the entry for "qi" without taking a reference, or nil.
// Used by setattr to keep a truncate in sync with open handles.
func Lookup(qi QIno) *Entry {
	t.Lock()
	defer t.Unlock()
	return t.entries[qi]
}

// countingMutex increments t.writeOpCount on each Lock() call.
type countingMutex struct {
	sync.RWMutex
}

func (c *countingMutex) Lock() {
	c.RWMutex.Lock()
	t.writeOpCount.Add(1)
}

// WriteOpCount returns the write lock counter value. This value is incremented
// each time ContentLock.Lock() on a file table entry is called.
func WriteOpCount() uint64 {
	return t.writeOpCount.Load()
}

// CountOpenFiles returns how many entries are currently in the table
// in a threadsafe manner.
func CountOpenFiles() int {
	t.Lock()
	defer t.Unlock()
	return len(t.entries)
}
