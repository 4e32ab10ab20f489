//go:build !windows

package registry

import (
	"os"
	"syscall"
)

func fingerprint(fi os.FileInfo) Identity {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return Identity{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
	}
	// Non-OS filesystems (tests, exotic mounts) get a weaker proxy.
	return Identity{Ino: uint64(fi.ModTime().UnixNano())}
}
