//go:build linux

package fsx

import (
	"time"

	"golang.org/x/sys/unix"
)

// CreatedAt 返回文件创建时间（statx btime）。
// 文件系统不提供 btime 时退化为 ctime（与“状态变更时间”语义一致）。
func CreatedAt(path string) (time.Time, error) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME|unix.STATX_CTIME, &stx); err != nil {
		return time.Time{}, err
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
	}
	return time.Unix(stx.Ctime.Sec, int64(stx.Ctime.Nsec)), nil
}
