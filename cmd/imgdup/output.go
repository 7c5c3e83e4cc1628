package main

import (
	"encoding/json"
	"io"
)

// writeJSON 以缩进 JSON 写出 v（单个文档）。
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
