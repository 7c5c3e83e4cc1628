// Package lockx 为同一扫描根目录提供进程间互斥（分析与移动不能重叠）。
package lockx

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName 是根目录下的锁文件名（不是图片扩展名，扫描时天然被忽略）。
const FileName = ".imgdup.lock"

// ErrLocked 表示同一根目录上已有其他运行持有锁。
var ErrLocked = errors.New("该目录正被另一次运行占用")

// Lock 是已持有的根目录锁。
type Lock struct {
	path string
	fl   *flock.Flock
}

// Path 返回锁文件路径。
func Path(root string) string { return filepath.Join(root, FileName) }

// Acquire 非阻塞地获取 root 的独占锁；已被占用时返回包装了 ErrLocked 的错误。
func Acquire(root string) (*Lock, error) {
	p := Path(root)
	fl := flock.New(p)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取锁失败：%q：%w", p, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w：%q", ErrLocked, p)
	}
	return &Lock{path: p, fl: fl}, nil
}

// Release 释放锁。锁文件本身保留（删除它会让并发的 Acquire 锁到不同 inode 上）。
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
