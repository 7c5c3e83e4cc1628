package domain

const (
	IssueIORead = "io_read"
	IssueDecode = "decode"
)

// FileIssue 记录单个文件的非致命问题（跳过并继续，但必须上报）。
type FileIssue struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}
