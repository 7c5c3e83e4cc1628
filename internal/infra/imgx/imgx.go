package imgx

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // 注册 GIF 解码器
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器
	"math"
	"os"

	_ "golang.org/x/image/bmp"  // 注册 BMP 解码器
	_ "golang.org/x/image/tiff" // 注册 TIFF 解码器
	_ "golang.org/x/image/webp" // 注册 WebP 解码器
)

// DecodeError 表示图片无法解码（格式不支持、数据截断/损坏等）。
// 校验阶段遇到它只会把该文件排除出分组，不会终止整次分析。
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("解码图片失败：%q：%v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecode 判断 err 是否为 DecodeError。
func IsDecode(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// Decode 打开并完整解码图片。
// 打开失败（权限/不存在）原样返回；解码失败包装为 DecodeError。
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("图片尺寸无效")}
	}
	return img, nil
}

// DecodeDimensions 只解析图片头，返回像素尺寸（不解码像素数据）。
func DecodeDimensions(path string) (w, h int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &DecodeError{Path: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

// ToNRGBA 把任意颜色模型的图片归一化为原点在 (0,0) 的 NRGBA。
// 比较时只看 RGB 三个通道：有无 alpha 通道不应造成误判。
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// SampleOptions 控制“全量 vs 采样”比较的切换点与采样密度。
type SampleOptions struct {
	// Threshold：像素总数 <= Threshold 时逐像素比较；否则走采样。
	Threshold int
	// Target：采样时期望比较的像素数量级；每个维度步长 = floor(sqrt(total/Target))。
	Target int
}

const (
	DefaultSampleThreshold = 1_000_000
	DefaultSampleTarget    = 1_000_000
)

// DefaultSampleOptions 返回默认采样参数（> 1MP 时采样，目标约 1M 个采样点）。
func DefaultSampleOptions() SampleOptions {
	return SampleOptions{Threshold: DefaultSampleThreshold, Target: DefaultSampleTarget}
}

// Stride 计算采样步长（>= 1）。
func Stride(total, target int) int {
	if total <= 0 || target <= 0 {
		return 1
	}
	s := int(math.Sqrt(float64(total) / float64(target)))
	if s < 1 {
		return 1
	}
	return s
}

// Comparison 是一次像素比较的结果。
type Comparison struct {
	Equal   bool
	Sampled bool
	Stride  int
}

// Compare 比较两张已归一化的图片。
//
// 尺寸不同直接判定不同。采样路径存在已知的假阴性风险：
// 只改动了未被采样到的局部像素时，会被判定为相同。
func Compare(a, b *image.NRGBA, opt SampleOptions) Comparison {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	if w != b.Rect.Dx() || h != b.Rect.Dy() {
		return Comparison{Equal: false}
	}

	total := w * h
	threshold := opt.Threshold
	if threshold <= 0 {
		threshold = DefaultSampleThreshold
	}
	if total <= threshold {
		return Comparison{Equal: rgbEqual(a, b, w, h, 1), Stride: 1}
	}

	stride := Stride(total, opt.Target)
	return Comparison{Equal: rgbEqual(a, b, w, h, stride), Sampled: true, Stride: stride}
}

func rgbEqual(a, b *image.NRGBA, w, h, stride int) bool {
	for y := 0; y < h; y += stride {
		ra := a.Pix[y*a.Stride:]
		rb := b.Pix[y*b.Stride:]
		for x := 0; x < w; x += stride {
			i := x * 4
			if ra[i] != rb[i] || ra[i+1] != rb[i+1] || ra[i+2] != rb[i+2] {
				return false
			}
		}
	}
	return true
}
