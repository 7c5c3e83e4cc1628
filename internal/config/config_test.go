package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/imgdup/internal/infra/imgx"
)

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_ConfigMissingPath(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("workers = 2\n"))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
}

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	eff, err := LoadEffective(cwd, CLIArgs{Path: root})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != root {
		t.Fatalf("期望 path=%q，实际=%q", root, eff.Path)
	}
	if !eff.PixelVerify {
		t.Fatalf("默认应开启像素校验")
	}
	if eff.Workers != DefaultWorkers {
		t.Fatalf("期望 workers=%d，实际=%d", DefaultWorkers, eff.Workers)
	}
	if want := filepath.Join(root, DefaultHoldingDir); eff.HoldingDir != want {
		t.Fatalf("期望 holding=%q，实际=%q", want, eff.HoldingDir)
	}
	if eff.Sample != imgx.DefaultSampleOptions() {
		t.Fatalf("采样参数应为默认值：%+v", eff.Sample)
	}
	if eff.LogLevel != DefaultLogLevel || eff.LogFormat != DefaultLogFormat {
		t.Fatalf("日志默认值不符合预期：%q %q", eff.LogLevel, eff.LogFormat)
	}
}

func TestLoadEffective_FileValues(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`
path = "photos"
pixel_verify = false
workers = 8
exclude_dirs = ["cache"]
exclude_patterns = ["**/*.tmp.jpg"]
holding_dir = "/tmp/hold"
sample_threshold = 500
sample_target = 100
log_level = "DEBUG"
log_format = "json"
unknown_field = 1
`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if want := filepath.Join(cwd, "photos"); eff.Path != want {
		t.Fatalf("期望 path=%q，实际=%q", want, eff.Path)
	}
	if eff.PixelVerify {
		t.Fatalf("期望 pixel_verify=false")
	}
	if eff.Workers != 8 {
		t.Fatalf("期望 workers=8，实际=%d", eff.Workers)
	}
	if len(eff.ExcludeDirs) != 1 || eff.ExcludeDirs[0] != "cache" {
		t.Fatalf("exclude_dirs 不符合预期：%v", eff.ExcludeDirs)
	}
	if len(eff.ExcludePatterns) != 1 {
		t.Fatalf("exclude_patterns 不符合预期：%v", eff.ExcludePatterns)
	}
	if eff.HoldingDir != "/tmp/hold" {
		t.Fatalf("绝对 holding_dir 应原样保留：%q", eff.HoldingDir)
	}
	if eff.Sample.Threshold != 500 || eff.Sample.Target != 100 {
		t.Fatalf("采样参数不符合预期：%+v", eff.Sample)
	}
	if eff.LogLevel != "debug" || eff.LogFormat != "json" {
		t.Fatalf("日志参数不符合预期：%q %q", eff.LogLevel, eff.LogFormat)
	}
}

func TestLoadEffective_CLIOverrides(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("path = \"p\"\npixel_verify = false\nworkers = 2\nlog_level = \"warn\"\n"))

	eff, err := LoadEffective(cwd, CLIArgs{
		PixelVerify:    true,
		PixelVerifySet: true,
		Workers:        6,
		WorkersSet:     true,
		LogLevel:       "error",
		LogLevelSet:    true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.PixelVerify || eff.Workers != 6 || eff.LogLevel != "error" {
		t.Fatalf("CLI 应覆盖配置文件：%+v", eff)
	}

	// 未显式指定时使用配置文件。
	eff, err = LoadEffective(cwd, CLIArgs{Workers: 9})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.PixelVerify || eff.Workers != 2 || eff.LogLevel != "warn" {
		t.Fatalf("未显式指定时应使用配置文件：%+v", eff)
	}
}

func TestLoadEffective_WorkersClamped(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("path = \"p\"\nworkers = 100\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Workers != MaxWorkers {
		t.Fatalf("期望 workers=%d，实际=%d", MaxWorkers, eff.Workers)
	}

	eff, err = LoadEffective(cwd, CLIArgs{Workers: -3, WorkersSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Workers != 1 {
		t.Fatalf("期望 workers=1，实际=%d", eff.Workers)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := map[string]string{
		"语法错误":    "path = ",
		"非法模式":    "path = \"p\"\nexclude_patterns = [\"[\"]\n",
		"负采样参数":   "path = \"p\"\nsample_target = -1\n",
		"未知日志级别":  "path = \"p\"\nlog_level = \"loud\"\n",
		"未知日志格式":  "path = \"p\"\nlog_format = \"xml\"\n",
		"暂存区是根目录": "path = \"p\"\nholding_dir = \".\"\n",
		"字段类型错误":  "path = \"p\"\nworkers = \"many\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, FileName), []byte(body))

			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_CLIPath_InvalidConfig(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, FileName), []byte("[["))

	_, err := LoadEffective(cwd, CLIArgs{Path: root})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_CLIPathIsFile(t *testing.T) {
	cwd := t.TempDir()
	file := filepath.Join(cwd, "a.jpg")
	writeFile(t, file, []byte("x"))

	// 根路径是文件时不算配置错误，交给扫描阶段报告“不是目录”。
	eff, err := LoadEffective(cwd, CLIArgs{Path: "a.jpg"})
	if err != nil {
		t.Fatalf("不期望配置错误：%v (code=%q)", err, Code(err))
	}
	if eff.Path != file {
		t.Fatalf("期望 path=%q，实际=%q", file, eff.Path)
	}
}

func TestLoadEffective_SymlinkedPathResolved(t *testing.T) {
	cwd, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("解析临时目录失败：%v", err)
	}
	realDir := filepath.Join(cwd, "photos")
	if err := os.MkdirAll(realDir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	link := filepath.Join(cwd, "link")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("当前平台不支持 symlink：%v", err)
	}
	writeFile(t, filepath.Join(realDir, FileName), []byte("workers = 3\n"))

	eff, err := LoadEffective(cwd, CLIArgs{Path: "link"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != realDir {
		t.Fatalf("期望解析为 %q，实际=%q", realDir, eff.Path)
	}
	if want := filepath.Join(realDir, DefaultHoldingDir); eff.HoldingDir != want {
		t.Fatalf("暂存区应位于真实路径下：%q", eff.HoldingDir)
	}
	if eff.Workers != 3 {
		t.Fatalf("应读取到软链目标下的配置：workers=%d", eff.Workers)
	}
}

func TestCode_NonConfigError(t *testing.T) {
	if got := Code(os.ErrNotExist); got != "" {
		t.Fatalf("非配置错误应返回空串：%q", got)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
