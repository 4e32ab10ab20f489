//go:build windows

package registry

import (
	"os"
	"syscall"
)

// Windows has no cheap inode equivalent on a plain stat, so the file
// creation time stands in: rotation replaces the file and with it the
// creation timestamp, while appends leave it alone.
func fingerprint(fi os.FileInfo) Identity {
	if st, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return Identity{Ino: uint64(st.CreationTime.Nanoseconds())}
	}
	return Identity{Ino: uint64(fi.ModTime().UnixNano())}
}
