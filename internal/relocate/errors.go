package relocate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/imgdup/internal/domain"
)

// ErrNotConfirmed 表示清空暂存区没有得到显式确认。
var ErrNotConfirmed = errors.New("清空暂存区需要显式确认")

// UnsafeRemovalError 表示本批移动会让某个重复组一个成员都不剩；整批被拒绝，没有任何文件被移动。
type UnsafeRemovalError struct {
	GroupID int
	Paths   []string
}

func (e *UnsafeRemovalError) Error() string {
	return fmt.Sprintf("拒绝移动：重复组 %d 的全部 %d 个成员都在本批中，至少要保留一个", e.GroupID, len(e.Paths))
}

// IsUnsafeRemoval 判断 err 是否为 UnsafeRemovalError。
func IsUnsafeRemoval(err error) bool {
	var e *UnsafeRemovalError
	return errors.As(err, &e)
}

// PartialRelocationError 表示部分文件移动失败；它与完整的 RelocationResult 一起返回，不是致命错误。
type PartialRelocationError struct {
	Failed []domain.RelocationFailure
}

func (e *PartialRelocationError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("1 个文件移动失败：%s：%s", e.Failed[0].Path, e.Failed[0].Reason)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d 个文件移动失败", len(e.Failed))
	for i, f := range e.Failed {
		if i == 3 {
			fmt.Fprintf(&b, "；……")
			break
		}
		fmt.Fprintf(&b, "；%s：%s", f.Path, f.Reason)
	}
	return b.String()
}

// IsPartial 判断 err 是否为 PartialRelocationError。
func IsPartial(err error) bool {
	var e *PartialRelocationError
	return errors.As(err, &e)
}
