package openfiletable

import (
	"sync"
	"syscall"
)

// UINT64_MAX           = 18446744073709551615
const inumTranslateBase = 10000000000000000000

// InumMap ... see NewInumMap() for description.
type InumMap struct {
	sync.Mutex
	baseDev       uint64
	translate     map[QIno]uint64
	translateNext uint64
}

// NewInumMap returns a new InumMap.
//
// The storage root may contain mountpoints of other filesystems, whose inode
// numbers can collide with the ones on the root device. InumMap translates
// (device, inode) pairs to unique uint64 inode numbers for the kernel.
// Inode numbers on "baseDev" pass through unchanged as long as they are below
// inumTranslateBase. Everything else is remapped to the number space above
// it. Entries are only ever added.
func NewInumMap(baseDev uint64) *InumMap {
	return &InumMap{
		baseDev:       baseDev,
		translate:     make(map[QIno]uint64),
		translateNext: inumTranslateBase,
	}
}

// Translate maps the passed-in (device, inode) pair to a unique inode number.
func (m *InumMap) Translate(in QIno) (out uint64) {
	if in.Dev == m.baseDev && in.Ino < inumTranslateBase {
		return in.Ino
	}
	m.Lock()
	defer m.Unlock()
	out = m.translate[in]
	if out != 0 {
		return out
	}
	out = m.translateNext
	m.translate[in] = m.translateNext
	m.translateNext++
	return out
}

// TranslateStat translates the inode number contained in "st" if necessary.
func (m *InumMap) TranslateStat(st *syscall.Stat_t) {
	st.Ino = m.Translate(QInoFromStat(st))
}

// Count returns the number of entries in the translation table.
func (m *InumMap) Count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.translate)
}
