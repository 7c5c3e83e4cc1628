package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/imgdup/internal/infra/imgx"
)

// FileName 是配置文件名（位于扫描根目录或 cwd）。
const FileName = "imgdup.toml"

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 imgdup.toml。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	DefaultWorkers    = 4
	MaxWorkers        = 32
	DefaultHoldingDir = "duplicates_holding"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
)

// CLIArgs 是 CLI 暴露的覆盖项，并保留“是否显式指定”的信息。
// 例如 --pixel-verify=true 必须能覆盖 pixel_verify = false。
type CLIArgs struct {
	Path string

	PixelVerify    bool
	PixelVerifySet bool

	Workers    int
	WorkersSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 imgdup.toml 的解析结构。未知字段忽略。
type FileConfig struct {
	Path            string   `toml:"path"`
	PixelVerify     *bool    `toml:"pixel_verify"`
	Workers         int      `toml:"workers"`
	ExcludeDirs     []string `toml:"exclude_dirs"`
	ExcludePatterns []string `toml:"exclude_patterns"`
	HoldingDir      string   `toml:"holding_dir"`
	SampleThreshold int      `toml:"sample_threshold"`
	SampleTarget    int      `toml:"sample_target"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string

	PixelVerify bool
	Workers     int

	ExcludeDirs     []string
	ExcludePatterns []string

	// HoldingDir 是暂存区绝对路径。
	HoldingDir string

	Sample imgx.SampleOptions

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 path：尝试读取 <path>/imgdup.toml（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/imgdup.toml，且其中必须包含 path
//
// 覆盖优先级：CLI > 配置文件 > 默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := resolveLinks(absCleanFrom(cwdAbs, cli.Path))
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(resolveLinks(absCleanFrom(cwdAbs, fc.Path)), cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	pixel := true
	if cli.PixelVerifySet {
		pixel = cli.PixelVerify
	} else if fc.PixelVerify != nil {
		pixel = *fc.PixelVerify
	}

	workers := fc.Workers
	if cli.WorkersSet {
		workers = cli.Workers
	}
	if workers == 0 {
		workers = DefaultWorkers
	}
	// 超出 [1, 32] 截断。
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	holding := strings.TrimSpace(fc.HoldingDir)
	if holding == "" {
		holding = DefaultHoldingDir
	}
	holding = absCleanFrom(absPath, holding)
	if holding == absPath {
		return invalid("holding_dir 不能是扫描根目录本身")
	}

	for _, p := range fc.ExcludePatterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return invalid("exclude_patterns 含非法模式：%q", p)
		}
	}

	if fc.SampleThreshold < 0 || fc.SampleTarget < 0 {
		return invalid("sample_threshold/sample_target 不能为负数")
	}
	sample := imgx.DefaultSampleOptions()
	if fc.SampleThreshold > 0 {
		sample.Threshold = fc.SampleThreshold
	}
	if fc.SampleTarget > 0 {
		sample.Target = fc.SampleTarget
	}

	level := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	if cli.LogLevelSet {
		level = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	if level == "" {
		level = DefaultLogLevel
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level 只能是 debug/info/warn/error，实际是 %q", level)
	}

	format := strings.ToLower(strings.TrimSpace(fc.LogFormat))
	if format == "" {
		format = DefaultLogFormat
	}
	if format != "console" && format != "json" {
		return invalid("log_format 只能是 console 或 json，实际是 %q", format)
	}

	return EffectiveConfig{
		Path:            absPath,
		PixelVerify:     pixel,
		Workers:         workers,
		ExcludeDirs:     append([]string(nil), fc.ExcludeDirs...),
		ExcludePatterns: append([]string(nil), fc.ExcludePatterns...),
		HoldingDir:      holding,
		Sample:          sample,
		LogLevel:        level,
		LogFormat:       format,
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// resolveLinks 解析扫描根的软链，使暂存区等派生路径与扫描得到的真实路径一致。
// 路径不存在时原样返回，由扫描阶段报告。
func resolveLinks(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return p
}

// readFileConfig 读取并解析 TOML 配置文件；exists 表示文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		// path 的父级是普通文件（ENOTDIR）同样视为没有配置文件，由扫描阶段报告“不是目录”。
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
