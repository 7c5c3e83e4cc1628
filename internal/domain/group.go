package domain

// ContentHash 是文件完整内容的摘要（小写 hex）。
type ContentHash string

// HashGroup 是共享同一 ContentHash 的文件序列（顺序 = 发现顺序）。
type HashGroup struct {
	Hash  ContentHash
	Files []ImageFile
}

// HashGroups 是有序的 hash -> files 映射。
// 用切片而不是 map：遍历顺序必须稳定（按每组首个成员的发现顺序）。
type HashGroups []HashGroup

// Candidates 只保留成员数 >= 2 的组（候选重复组）。
func (gs HashGroups) Candidates() HashGroups {
	out := make(HashGroups, 0, len(gs))
	for _, g := range gs {
		if len(g.Files) >= 2 {
			out = append(out, g)
		}
	}
	return out
}

// TotalComparisons 是“每组成员与参照逐个比较”时的比较总次数：Σ(len-1)。
func (gs HashGroups) TotalComparisons() int {
	n := 0
	for _, g := range gs {
		if len(g.Files) > 1 {
			n += len(g.Files) - 1
		}
	}
	return n
}

// DuplicateGroup 是一次分析的最终产物：已确认相同的一组文件 + 一个 keeper。
//
// 不变量：
// - len(Files) >= 2
// - 0 <= KeeperIdx < len(Files)
// - Files 保持原始顺序，不为了“keeper 排第一”而原地交换
type DuplicateGroup struct {
	ID        int
	Hash      ContentHash
	Files     []ImageFile
	KeeperIdx int
}

// Keeper 返回被保留的文件。
func (g DuplicateGroup) Keeper() ImageFile { return g.Files[g.KeeperIdx] }

// Removable 返回除 keeper 外的成员（新切片，不与 Files 共享底层数组）。
func (g DuplicateGroup) Removable() []ImageFile {
	out := make([]ImageFile, 0, len(g.Files)-1)
	for i, f := range g.Files {
		if i != g.KeeperIdx {
			out = append(out, f)
		}
	}
	return out
}
