package relocate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/imgdup/internal/infra/fsx"
	"github.com/John-Robertt/imgdup/internal/infra/lockx"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newService(t *testing.T, root string) *Service {
	t.Helper()
	s, err := New(root, "", nil)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedTime }
	return s
}

func writeFile(t *testing.T, p, data string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestRelocate_OneOfTwoMembers(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "same")
	b := writeFile(t, filepath.Join(root, "sub", "b.jpg"), "same")
	s := newService(t, root)

	res, err := s.Relocate(context.Background(), []string{b}, KnownGroups{1: {a, b}})
	require.NoError(t, err)
	require.Len(t, res.Moved, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, b, res.Moved[0].Original)
	assert.Equal(t, filepath.Join(root, DefaultHoldingDir, "b.jpg"), res.Moved[0].Dest)
	assert.Equal(t, int64(4), res.Moved[0].Size)
	assert.Equal(t, int64(4), res.MovedBytes())

	assert.FileExists(t, a)
	assert.NoFileExists(t, b)
	assert.FileExists(t, res.Moved[0].Dest)

	st, err := s.Status()
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, 1, st.FileCount)
	assert.Equal(t, int64(4), st.TotalBytes)

	manifest, err := os.ReadFile(filepath.Join(s.HoldingDir, ManifestName))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "扫描目录："+root)
	assert.Contains(t, string(manifest), b+" -> "+res.Moved[0].Dest+" (4 B)")
}

func TestRelocate_WholeGroupRefused(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "same")
	b := writeFile(t, filepath.Join(root, "b.jpg"), "same")
	c := writeFile(t, filepath.Join(root, "c.jpg"), "other")
	d := writeFile(t, filepath.Join(root, "d.jpg"), "other")
	s := newService(t, root)

	res, err := s.Relocate(context.Background(), []string{c, a, b}, KnownGroups{1: {c, d}, 2: {a, b}})
	require.Error(t, err)
	var unsafe *UnsafeRemovalError
	require.True(t, errors.As(err, &unsafe))
	assert.Equal(t, 2, unsafe.GroupID)
	assert.Equal(t, []string{a, b}, unsafe.Paths)
	assert.True(t, IsUnsafeRemoval(err))
	assert.Empty(t, res.Moved)

	for _, p := range []string{a, b, c, d} {
		assert.FileExists(t, p)
	}
	_, err = os.Stat(s.HoldingDir)
	assert.True(t, os.IsNotExist(err), "预检失败时不应创建暂存区")
}

func TestRelocate_NameCollisions(t *testing.T) {
	root := t.TempDir()
	p1 := writeFile(t, filepath.Join(root, "x", "photo.jpg"), "1")
	p2 := writeFile(t, filepath.Join(root, "y", "photo.jpg"), "2")
	p3 := writeFile(t, filepath.Join(root, "z", "photo.jpg"), "3")
	s := newService(t, root)

	res, err := s.Relocate(context.Background(), []string{p1, p2}, nil)
	require.NoError(t, err)
	require.Len(t, res.Moved, 2)
	assert.Equal(t, "photo.jpg", filepath.Base(res.Moved[0].Dest))
	assert.Equal(t, "photo_1.jpg", filepath.Base(res.Moved[1].Dest))

	// 跨批次同样避让已存在的名字。
	res, err = s.Relocate(context.Background(), []string{p3}, nil)
	require.NoError(t, err)
	require.Len(t, res.Moved, 1)
	assert.Equal(t, "photo_2.jpg", filepath.Base(res.Moved[0].Dest))

	got, err := os.ReadFile(res.Moved[0].Dest)
	require.NoError(t, err)
	assert.Equal(t, "3", string(got))
}

func TestRelocate_PartialFailures(t *testing.T) {
	root := t.TempDir()
	ok := writeFile(t, filepath.Join(root, "ok.jpg"), "ok")
	missing := filepath.Join(root, "gone.jpg")
	outside := writeFile(t, filepath.Join(t.TempDir(), "outside.jpg"), "x")
	s := newService(t, root)
	held := writeFile(t, filepath.Join(s.HoldingDir, "held.jpg"), "h")

	res, err := s.Relocate(context.Background(), []string{missing, ok, outside, held}, nil)
	require.Error(t, err)
	var partial *PartialRelocationError
	require.True(t, errors.As(err, &partial))
	assert.True(t, IsPartial(err))

	require.Len(t, res.Moved, 1)
	assert.Equal(t, ok, res.Moved[0].Original)

	require.Len(t, res.Failed, 3)
	assert.Equal(t, partial.Failed, res.Failed)
	reasons := map[string]string{}
	for _, f := range res.Failed {
		reasons[f.Path] = f.Reason
	}
	assert.Equal(t, "文件不存在", reasons[missing])
	assert.Equal(t, "不在扫描根目录内", reasons[outside])
	assert.Equal(t, "已在暂存区内", reasons[held])
	assert.FileExists(t, outside)
	assert.FileExists(t, held)
}

func TestRelocate_DuplicatePathsMovedOnce(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "a")
	s := newService(t, root)

	res, err := s.Relocate(context.Background(), []string{a, a, filepath.Join(root, ".", "a.jpg")}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Moved, 1)
}

func TestRelocate_EmptyBatch(t *testing.T) {
	s := newService(t, t.TempDir())
	res, err := s.Relocate(context.Background(), nil, KnownGroups{1: {"/x"}})
	require.NoError(t, err)
	assert.NotNil(t, res.Moved)
	assert.NotNil(t, res.Failed)
}

func TestRelocate_LockedRoot(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "a")
	s := newService(t, root)

	lk, err := lockx.Acquire(root)
	require.NoError(t, err)
	defer func() { _ = lk.Release() }()

	_, err = s.Relocate(context.Background(), []string{a}, nil)
	require.ErrorIs(t, err, lockx.ErrLocked)
	assert.FileExists(t, a)
}

func TestRelocate_CanceledBeforeMoves(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "a")
	s := newService(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Relocate(ctx, []string{a}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Moved)
	assert.FileExists(t, a)
}

func TestEmptyHoldingArea_RequiresConfirm(t *testing.T) {
	root := t.TempDir()
	s := newService(t, root)
	held := writeFile(t, filepath.Join(s.HoldingDir, "a.jpg"), "a")

	_, err := s.EmptyHoldingArea(context.Background(), false)
	require.ErrorIs(t, err, ErrNotConfirmed)
	assert.FileExists(t, held)
}

func TestEmptyHoldingArea_KeepsManifest(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "12345")
	b := writeFile(t, filepath.Join(root, "b.jpg"), "123")
	s := newService(t, root)

	_, err := s.Relocate(context.Background(), []string{a, b}, nil)
	require.NoError(t, err)
	writeFile(t, filepath.Join(s.HoldingDir, "nested", "c.jpg"), "12")

	res, err := s.EmptyHoldingArea(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeletedCount)
	assert.Equal(t, int64(10), res.FreedBytes)
	assert.Empty(t, res.Failed)

	entries, err := os.ReadDir(s.HoldingDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ManifestName, entries[0].Name())

	manifest, err := os.ReadFile(filepath.Join(s.HoldingDir, ManifestName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(manifest)), "\n")
	assert.Contains(t, lines[len(lines)-1], "已清空：删除 3 个文件")

	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.FileCount)
}

func TestEmptyHoldingArea_MissingDir(t *testing.T) {
	s := newService(t, t.TempDir())
	res, err := s.EmptyHoldingArea(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedCount)
}

func TestEmptyHoldingArea_RemoveFailureRecorded(t *testing.T) {
	root := t.TempDir()
	s := newService(t, root)
	p := writeFile(t, filepath.Join(s.HoldingDir, "a.jpg"), "a")

	restore := stubRemove(func(string) error { return os.ErrPermission })
	defer restore()

	res, err := s.EmptyHoldingArea(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, p, res.Failed[0].Path)
}

func TestNew_AbsoluteHoldingDir(t *testing.T) {
	root := t.TempDir()
	other := filepath.Join(t.TempDir(), "hold")
	s, err := New(root, other, nil)
	require.NoError(t, err)
	assert.Equal(t, other, s.HoldingDir)

	s, err = New(root, "trash", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "trash"), s.HoldingDir)
}

func TestRelocate_SymlinkedRoot(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	realDir := filepath.Join(base, "photos")
	a := writeFile(t, filepath.Join(realDir, "a.jpg"), "same")
	b := writeFile(t, filepath.Join(realDir, "b.jpg"), "same")
	link := filepath.Join(base, "link")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("当前平台不支持 symlink：%v", err)
	}

	s := newService(t, link)
	assert.Equal(t, realDir, s.Root)
	assert.Equal(t, filepath.Join(realDir, DefaultHoldingDir), s.HoldingDir)

	// 已知组来自扫描（真实路径）；用户经由软链给出路径，仍须识别为同一组。
	known := KnownGroups{1: {a, b}}
	_, err = s.Relocate(context.Background(), []string{filepath.Join(link, "a.jpg"), filepath.Join(link, "b.jpg")}, known)
	var unsafe *UnsafeRemovalError
	require.ErrorAs(t, err, &unsafe)
	assert.FileExists(t, a)
	assert.FileExists(t, b)

	res, err := s.Relocate(context.Background(), []string{filepath.Join(link, "b.jpg")}, known)
	require.NoError(t, err)
	require.Len(t, res.Moved, 1)
	assert.Equal(t, b, res.Moved[0].Original)
	assert.NoFileExists(t, b)
}

func TestRelocate_CrossDeviceReason(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.jpg"), "a")
	s := newService(t, root)

	restore := stubMove(func(src, dst string) error {
		return &fsx.CrossDeviceError{Src: src, Dst: dst, Err: errors.New("exdev")}
	})
	defer restore()

	res, err := s.Relocate(context.Background(), []string{a}, nil)
	require.True(t, IsPartial(err))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "暂存区与源文件不在同一文件系统", res.Failed[0].Reason)
	assert.Empty(t, res.Moved)
	assert.FileExists(t, a)
}

func TestEmptyHoldingArea_Canceled(t *testing.T) {
	root := t.TempDir()
	s := newService(t, root)
	held := writeFile(t, filepath.Join(s.HoldingDir, "a.jpg"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.EmptyHoldingArea(ctx, true)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.DeletedCount)
	assert.FileExists(t, held)
}

func stubMove(fn func(src, dst string) error) func() {
	old := moveFile
	moveFile = fn
	return func() { moveFile = old }
}

func stubRemove(fn func(string) error) func() {
	old := removeFile
	removeFile = fn
	return func() { removeFile = old }
}
