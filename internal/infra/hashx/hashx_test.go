package hashx

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMD5_KnownValue(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	h, err := FileMD5(p)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", string(h))
}

func TestReaderMD5_MultiChunkMatchesSingleShot(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/4) // 4 个块
	a, err := ReaderMD5(bytes.NewReader(data))
	require.NoError(t, err)

	// 逐字节读取的 reader 不应改变结果。
	b, err := ReaderMD5(&oneByteReader{data: data})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFileMD5_SingleByteDifference(t *testing.T) {
	dir := t.TempDir()
	a := bytes.Repeat([]byte{7}, 100)
	b := append([]byte(nil), a...)
	b[50] = 8
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), a, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), b, 0o644))

	ha, err := FileMD5(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	hb, err := FileMD5(filepath.Join(dir, "b.png"))
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestFileMD5_MissingFile(t *testing.T) {
	_, err := FileMD5(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReaderMD5_ReadError(t *testing.T) {
	_, err := ReaderMD5(errReader{})
	require.Error(t, err)
}

type oneByteReader struct {
	data []byte
	off  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.off]
	r.off++
	return 1, nil
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }
