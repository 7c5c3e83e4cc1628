package hashx

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/John-Robertt/imgdup/internal/domain"
)

// ChunkSize 是流式读取的块大小：内存占用与文件大小无关。
const ChunkSize = 8 * 1024

// FileMD5 计算文件完整内容的 MD5（hex）。
//
// MD5 足够：这里只要求“碰撞概率低”，真正的相同性由下游像素校验兜底。
func FileMD5(path string) (domain.ContentHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开文件失败：%w", err)
	}
	defer f.Close()

	return ReaderMD5(f)
}

// ReaderMD5 以 ChunkSize 为单位读取 r 并返回 MD5（hex）。
func ReaderMD5(r io.Reader) (domain.ContentHash, error) {
	h := md5.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// hash.Hash.Write 永不返回错误。
			_, _ = h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("读取文件失败：%w", err)
		}
	}
	return domain.ContentHash(hex.EncodeToString(h.Sum(nil))), nil
}
