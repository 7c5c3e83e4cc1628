package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Report 是对外稳定输出（stdout JSON / 前端消费）的结构。
// 它是一次分析的终态产物：新的分析开始时整体丢弃，不做合并。
type Report struct {
	RunID    string `json:"run_id"`
	Root     string `json:"root"`
	Verified bool   `json:"verified"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Groups  []GroupReport `json:"groups"`
	Issues  []FileIssue   `json:"issues"`
}

type ReportSummary struct {
	TotalImages      int   `json:"total_images"`
	DuplicateGroups  int   `json:"duplicate_groups"`
	RemovableCount   int   `json:"removable_count"`
	ReclaimableBytes int64 `json:"reclaimable_bytes"`
}

type GroupReport struct {
	ID               int            `json:"id"`
	Hash             string         `json:"hash"`
	Size             int            `json:"size"`
	ReclaimableBytes int64          `json:"reclaimable_bytes"`
	KeeperIndex      int            `json:"keeper_index"`
	Members          []MemberReport `json:"members"`
}

type MemberReport struct {
	Path       string      `json:"path"`
	RelPath    string      `json:"rel_path"`
	IsKeeper   bool        `json:"is_keeper"`
	Size       int64       `json:"size"`
	CreatedAt  *time.Time  `json:"created_at,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Keeper 返回 keeper 成员。
func (g GroupReport) Keeper() MemberReport { return g.Members[g.KeeperIndex] }

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) groups 按 id 排序；issues 按 path 稳定排序
// 3) summary 由 groups 计算得出（total_images 由构建方填写，这里不改）
func (r *Report) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Groups == nil {
		r.Groups = []GroupReport{}
	}
	if r.Issues == nil {
		r.Issues = []FileIssue{}
	}

	sort.SliceStable(r.Groups, func(i, j int) bool { return r.Groups[i].ID < r.Groups[j].ID })
	sort.SliceStable(r.Issues, func(i, j int) bool { return r.Issues[i].Path < r.Issues[j].Path })

	s := ReportSummary{TotalImages: r.Summary.TotalImages}
	for _, g := range r.Groups {
		s.DuplicateGroups++
		s.RemovableCount += g.Size - 1
		s.ReclaimableBytes += g.ReclaimableBytes
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(Alias(r))
}
