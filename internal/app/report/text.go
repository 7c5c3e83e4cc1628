package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/imgdup/internal/domain"
)

// WriteText 写出 UTF-8 纯文本报告：摘要 + 每组一个区块（keeper 在前，其余在后）。
func WriteText(w io.Writer, rep domain.Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "重复图片报告")
	fmt.Fprintln(bw, strings.Repeat("=", 50))
	fmt.Fprintf(bw, "分析时间：%s\n", rep.FinishedAt.Local().Format(time.DateTime))
	fmt.Fprintf(bw, "扫描目录：%s\n", rep.Root)
	fmt.Fprintf(bw, "图片总数：%d\n", rep.Summary.TotalImages)
	fmt.Fprintf(bw, "重复组数：%d\n", rep.Summary.DuplicateGroups)
	fmt.Fprintf(bw, "可移除数：%d\n", rep.Summary.RemovableCount)
	fmt.Fprintf(bw, "可释放空间：%s\n", humanize.IBytes(uint64(rep.Summary.ReclaimableBytes)))
	if !rep.Verified {
		fmt.Fprintln(bw, "像素校验：未执行（仅按内容哈希分组）")
	}
	fmt.Fprintln(bw)

	for _, g := range rep.Groups {
		fmt.Fprintf(bw, "组 %d - 哈希：%s（%d 个文件，可释放 %s）\n",
			g.ID, g.Hash, g.Size, humanize.IBytes(uint64(g.ReclaimableBytes)))
		writeMember(bw, "保留", g.Keeper())
		for i, m := range g.Members {
			if i == g.KeeperIndex {
				continue
			}
			writeMember(bw, "重复", m)
		}
		fmt.Fprintln(bw)
	}

	if len(rep.Issues) > 0 {
		fmt.Fprintf(bw, "无法处理的文件（%d）\n", len(rep.Issues))
		for _, is := range rep.Issues {
			fmt.Fprintf(bw, "  - [%s] %s：%s\n", is.Kind, is.Path, is.Reason)
		}
	}

	return bw.Flush()
}

func writeMember(w io.Writer, label string, m domain.MemberReport) {
	fmt.Fprintf(w, "  [%s] %s\n", label, m.Path)
	fmt.Fprintf(w, "         目录：%s  大小：%s", folderOf(m), humanize.IBytes(uint64(m.Size)))
	if m.CreatedAt != nil {
		fmt.Fprintf(w, "  创建：%s", m.CreatedAt.Local().Format(time.DateTime))
	}
	if m.Dimensions != nil {
		fmt.Fprintf(w, "  尺寸：%dx%d", m.Dimensions.Width, m.Dimensions.Height)
	}
	fmt.Fprintln(w)
}
