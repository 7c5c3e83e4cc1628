package domain

import "time"

// RelocationRecord 记录一次成功的移动（原路径 -> 暂存区路径）。
type RelocationRecord struct {
	Original string    `json:"original"`
	Dest     string    `json:"dest"`
	Size     int64     `json:"size"`
	MovedAt  time.Time `json:"moved_at"`
}

// RelocationFailure 记录单个文件移动失败的原因。
type RelocationFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RelocationResult 是一批移动的结果；Moved 按执行顺序追加。
type RelocationResult struct {
	HoldingDir string              `json:"holding_dir"`
	Moved      []RelocationRecord  `json:"moved"`
	Failed     []RelocationFailure `json:"failed"`
}

// MovedBytes 汇总已移动文件的字节数。
func (r RelocationResult) MovedBytes() int64 {
	var n int64
	for _, m := range r.Moved {
		n += m.Size
	}
	return n
}

// EmptyResult 是清空暂存区的结果。
type EmptyResult struct {
	DeletedCount int                 `json:"deleted_count"`
	FreedBytes   int64               `json:"freed_bytes"`
	Failed       []RelocationFailure `json:"failed"`
}

// HoldingState 描述暂存区现状（只做 ReadDir/stat，不读内容）。
type HoldingState struct {
	Dir    string `json:"dir"`
	Exists bool   `json:"exists"`

	FileCount  int   `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`

	// ExistingNames 是目录内现有文件名集合，用于 O(1) 冲突判定。
	ExistingNames map[string]struct{} `json:"-"`
}
