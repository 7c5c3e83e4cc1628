package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/imgdup/internal/domain"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func bytesText(n int64) string { return humanize.IBytes(uint64(n)) }

// renderReport 在终端上展示报告：摘要表 + 每组一张成员表（keeper 标 ★）。
func renderReport(w io.Writer, rep domain.Report) {
	fmt.Fprintln(w, renderTable(
		[]string{"图片", "重复组", "可移除", "可释放"},
		[][]string{{
			strconv.Itoa(rep.Summary.TotalImages),
			strconv.Itoa(rep.Summary.DuplicateGroups),
			strconv.Itoa(rep.Summary.RemovableCount),
			bytesText(rep.Summary.ReclaimableBytes),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
	))
	if !rep.Verified {
		fmt.Fprintln(w, "注意：未做像素校验，分组仅基于内容哈希。")
	}

	for _, g := range rep.Groups {
		fmt.Fprintf(w, "\n组 %d  %s  可释放 %s\n", g.ID, g.Hash, bytesText(g.ReclaimableBytes))
		rows := make([][]string, 0, len(g.Members))
		for _, m := range g.Members {
			mark := ""
			if m.IsKeeper {
				mark = "★"
			}
			created, dims := "-", "-"
			if m.CreatedAt != nil {
				created = m.CreatedAt.Local().Format("2006-01-02 15:04")
			}
			if m.Dimensions != nil {
				dims = fmt.Sprintf("%dx%d", m.Dimensions.Width, m.Dimensions.Height)
			}
			rows = append(rows, []string{mark, m.RelPath, filepath.Dir(m.RelPath), bytesText(m.Size), created, dims})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"", "文件", "目录", "大小", "创建", "尺寸"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
		))
	}

	if len(rep.Issues) > 0 {
		rows := make([][]string, 0, len(rep.Issues))
		for _, is := range rep.Issues {
			rows = append(rows, []string{is.Kind, is.Path, is.Reason})
		}
		fmt.Fprintf(w, "\n无法处理的文件（%d）\n", len(rep.Issues))
		fmt.Fprintln(w, renderTable([]string{"类型", "路径", "原因"}, rows, nil))
	}
}

func renderRelocation(w io.Writer, res domain.RelocationResult) {
	if len(res.Moved) > 0 {
		rows := make([][]string, 0, len(res.Moved))
		for _, m := range res.Moved {
			rows = append(rows, []string{m.Original, filepath.Base(m.Dest), bytesText(m.Size)})
		}
		fmt.Fprintln(w, renderTable([]string{"原路径", "暂存名", "大小"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	}
	if len(res.Failed) > 0 {
		rows := make([][]string, 0, len(res.Failed))
		for _, f := range res.Failed {
			rows = append(rows, []string{f.Path, f.Reason})
		}
		fmt.Fprintln(w, renderTable([]string{"未移动", "原因"}, rows, nil))
	}
}

func renderHolding(w io.Writer, st domain.HoldingState) {
	exists := "否"
	if st.Exists {
		exists = "是"
	}
	fmt.Fprintln(w, renderTable(
		[]string{"暂存区", "存在", "文件数", "占用"},
		[][]string{{st.Dir, exists, strconv.Itoa(st.FileCount), bytesText(st.TotalBytes)}},
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
}
