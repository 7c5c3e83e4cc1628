//go:build !linux

package fsx

import (
	"os"
	"time"
)

// CreatedAt 在非 Linux 平台上退化为 mtime。
func CreatedAt(path string) (time.Time, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
