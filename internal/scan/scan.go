package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/logging"
)

// NotFoundError 表示扫描根目录不存在（致命，终止扫描）。
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("目录不存在：%q", e.Path)
}

func (e *NotFoundError) Unwrap() error { return fs.ErrNotExist }

// NotADirectoryError 表示扫描根路径存在但不是目录（致命，终止扫描）。
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("路径不是目录：%q", e.Path)
}

// IsRootError 判断 err 是否为根目录级错误（NotFound/NotADirectory）。
func IsRootError(err error) bool {
	var nf *NotFoundError
	var nd *NotADirectoryError
	return errors.As(err, &nf) || errors.As(err, &nd)
}

// CheckRoot 把 root 规范为 clean 绝对路径，并确认它是一个存在的目录。
// root 本身是目录软链时解析为真实路径：WalkDir 不会进入作为起点的软链。
func CheckRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	root = filepath.Clean(abs)

	fi, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: root}
		}
		return "", err
	}
	if !fi.IsDir() {
		return "", &NotADirectoryError{Path: root}
	}
	return ResolveDir(root), nil
}

// ResolveDir 返回 dir 解析软链后的路径；解析失败（例如尚不存在）时原样返回。
func ResolveDir(dir string) string {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved
	}
	return dir
}

// Options 控制扫描时的排除规则。
type Options struct {
	// HoldingDir 是暂存区（相对 root 或绝对路径），永久排除：已移走的文件不能再被当成候选。
	HoldingDir string
	// ExcludeDirs 均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
	ExcludeDirs []string
	// ExcludePatterns 是 doublestar 模式，匹配相对 root 的 '/' 分隔路径（目录命中则整棵跳过）。
	ExcludePatterns []string

	Logger *zap.Logger
}

// ScanImages 递归扫描 root 下的图片文件。
//
// 规则（硬约束）：
// - 只接受普通文件；不跟随符号链接（目录软链可能成环）
// - 扩展名大小写不敏感，支持集合见 SupportedExt
// - 输出按 RelPath 排序，保证同一目录树多次扫描结果一致
// - 子目录不可读：记录日志并跳过，不终止整次扫描
// - ctx 取消：立即返回 ctx.Err()，不返回部分结果
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanImages(ctx context.Context, root string, opts Options) ([]domain.ImageFile, error) {
	log := logging.OrNop(opts.Logger)

	root, err := CheckRoot(root)
	if err != nil {
		return nil, err
	}

	for _, p := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("exclude 模式无效：%q", p)
		}
	}
	excluded := buildExcluded(root, opts.HoldingDir, opts.ExcludeDirs)

	files := make([]domain.ImageFile, 0, 256)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.Warn("跳过不可读路径", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." && matchesAny(filepath.ToSlash(rel), opts.ExcludePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !IsSupportedExt(ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// 在 ReadDir 与 stat 之间被删除：跳过即可。
			log.Warn("读取文件信息失败，跳过", zap.String("path", path), zap.Error(err))
			return nil
		}

		files = append(files, domain.NewImageFile(path, rel, ext, info.Size(), info.ModTime()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// SupportedExt 是受支持的图片扩展名（小写，含 '.'）。
var SupportedExt = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".webp", ".heic", ".heif"}

var supportedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SupportedExt))
	for _, ext := range SupportedExt {
		m[ext] = struct{}{}
	}
	return m
}()

// IsSupportedExt 判断 ext（需已小写）是否为受支持的图片扩展名。
func IsSupportedExt(ext string) bool {
	_, ok := supportedSet[ext]
	return ok
}

func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func buildExcluded(root, holdingDir string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	if h := strings.TrimSpace(holdingDir); h != "" {
		excluded = append(excluded, absUnder(root, h))
	}

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		excluded = append(excluded, absUnder(root, x))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func absUnder(root, p string) string {
	if filepath.IsAbs(p) {
		// 绝对路径可能经由根目录软链给出，与解析后的遍历路径对齐。
		return ResolveDir(filepath.Clean(p))
	}
	return filepath.Clean(filepath.Join(root, p))
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
