//go:build !linux && !darwin

package local

import (
	"io/fs"
	"time"
)

func createdAt(fi fs.FileInfo) time.Time {
	return fi.ModTime()
}
