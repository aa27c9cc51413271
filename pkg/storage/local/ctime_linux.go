//go:build linux

package local

import (
	"io/fs"
	"syscall"
	"time"
)

// createdAt uses the inode change time, the closest thing to a creation
// time that every Linux filesystem reports.
func createdAt(fi fs.FileInfo) time.Time {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fi.ModTime()
	}
	return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
}
