package openfiletable

import (
	"syscall"
)

// QIno = Qualified Inode number.
// Uniquely identifies a backing file through the (device number, inode
// number) pair.
type QIno struct {
	// Stat_t.Dev is uint64 on 32- and 64-bit Linux
	Dev uint64
	Ino uint64
}

// QInoFromStat fills a new QIno struct with the passed Stat_t info.
func QInoFromStat(st *syscall.Stat_t) QIno {
	// Some architectures use 32-bit values here (darwin, freebsd-32).
	return QIno{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
}
