package domain

import (
	"sync"
	"time"
)

// ImageFile 描述一次扫描得到的图片文件（身份 = AbsPath）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，不读文件内容
// - 创建时间/像素尺寸属于“惰性属性”：首次需要时才读取，之后复用
type ImageFile struct {
	AbsPath string
	RelPath string
	Ext     string // ".jpg"（小写）
	Size    int64
	ModTime time.Time

	lazy *lazyAttrs
}

// ExtraAttrs 是需要额外 IO 才能得到的属性（创建时间需要 statx，尺寸需要解析图片头）。
type ExtraAttrs struct {
	CreatedAt time.Time
	Width     int
	Height    int
}

// HasDimensions 表示尺寸是否已知（图片头无法解析时为 false）。
func (a ExtraAttrs) HasDimensions() bool { return a.Width > 0 && a.Height > 0 }

// AttrLoader 负责真正读取 ExtraAttrs；domain 不依赖任何 infra 实现。
type AttrLoader func(path string) (ExtraAttrs, error)

type lazyAttrs struct {
	once sync.Once
	v    ExtraAttrs
	err  error
}

// NewImageFile 构造带惰性属性缓存的 ImageFile。
// 复制 ImageFile 时缓存是共享的（同一路径只读一次）。
func NewImageFile(absPath, relPath, ext string, size int64, modTime time.Time) ImageFile {
	return ImageFile{
		AbsPath: absPath,
		RelPath: relPath,
		Ext:     ext,
		Size:    size,
		ModTime: modTime,
		lazy:    &lazyAttrs{},
	}
}

// Extra 返回惰性属性；同一个 ImageFile（及其副本）只会调用一次 load。
// 零值构造（未经 NewImageFile）的 ImageFile 每次都直接调用 load。
func (f ImageFile) Extra(load AttrLoader) (ExtraAttrs, error) {
	if load == nil {
		return ExtraAttrs{}, nil
	}
	if f.lazy == nil {
		return load(f.AbsPath)
	}
	f.lazy.once.Do(func() {
		f.lazy.v, f.lazy.err = load(f.AbsPath)
	})
	return f.lazy.v, f.lazy.err
}
