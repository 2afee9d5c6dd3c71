package gtaaudio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Track 是流式容器中的一条音轨: 定长头部 + 变长压缩音频负载.
type Track struct {
	Header  []byte // 长度恒为 Format.TrackHeaderSize
	Payload []byte // 解密后的压缩音频, 不做任何解码
	Name    string // 源文件名 (不含扩展名) + "_" + 从 1 开始的序号
}

// TrackInfo 是 List 返回的音轨摘要.
type TrackInfo struct {
	Index    int
	Name     string
	Size     int    // 当前负载长度
	Declared uint32 // 头部中声明的负载长度
}

// StreamContainer 持有一个流式容器文件解析后的全部音轨, 顺序与磁盘顺序一致.
// 不提供内部加锁, 同一实例的操作需要调用方串行化.
type StreamContainer struct {
	path   string
	format Format
	opts   Options
	cipher *Cipher
	tracks []*Track
}

// LoadStream 读取并解密 path, 解析出全部音轨. progress 报告解密进度.
func LoadStream(path string, format Format, opts Options, progress ProgressFunc) (*StreamContainer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	cipher, err := NewCipher(format.Key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr("read", path, err)
	}
	cipher.Mask(data, progress)

	s := &StreamContainer{
		path:   path,
		format: format,
		opts:   opts,
		cipher: cipher,
	}
	s.tracks = format.parseTracks(data, streamStem(path))
	return s, nil
}

// ParseStream 解析已经解密的容器数据, stem 用于生成音轨名.
func ParseStream(data []byte, stem string, format Format) ([]*Track, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return format.parseTracks(data, stem), nil
}

// parseTracks 从偏移 0 开始依次切出 (头部, 负载). 声明长度超出缓冲区时停止解析,
// 剩余的尾部数据被丢弃.
func (f Format) parseTracks(data []byte, stem string) []*Track {
	var tracks []*Track
	total := int64(len(data))
	hsz := int64(f.TrackHeaderSize)

	for offset := int64(0); offset+hsz <= total; {
		header := data[offset : offset+hsz]
		length := int64(f.TrackLength(header))

		start := offset + hsz
		end := start + length
		if end > total {
			break
		}

		tracks = append(tracks, &Track{
			Header:  append([]byte(nil), header...),
			Payload: append([]byte(nil), data[start:end]...),
			Name:    fmt.Sprintf("%s_%d", stem, len(tracks)+1),
		})
		offset = end
	}
	return tracks
}

func streamStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Path 返回容器文件路径.
func (s *StreamContainer) Path() string { return s.path }

// Len 返回音轨数量.
func (s *StreamContainer) Len() int { return len(s.tracks) }

// Track 返回第 index 条音轨 (从 0 开始).
func (s *StreamContainer) Track(index int) (*Track, error) {
	if index < 0 || index >= len(s.tracks) {
		return nil, indexErr(index, len(s.tracks))
	}
	return s.tracks[index], nil
}

// List 返回按磁盘顺序排列的音轨摘要.
func (s *StreamContainer) List() []TrackInfo {
	infos := make([]TrackInfo, len(s.tracks))
	for i, t := range s.tracks {
		infos[i] = TrackInfo{
			Index:    i,
			Name:     t.Name,
			Size:     len(t.Payload),
			Declared: s.format.TrackLength(t.Header),
		}
	}
	return infos
}

// ExportPath 返回第 index 条音轨导出到 dir 时的文件路径.
func (s *StreamContainer) ExportPath(index int, dir string) (string, error) {
	t, err := s.Track(index)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, t.Name+s.format.StreamExt), nil
}

// Export 把第 index 条音轨的负载原样写到 {dir}/{name}{StreamExt}.
func (s *StreamContainer) Export(index int, dir string) error {
	dst, err := s.ExportPath(index, dir)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, s.tracks[index].Payload, 0o644); err != nil {
		return ioErr("write", dst, err)
	}
	return nil
}

// ExportAll 依次导出全部音轨, 每完成一条报告一次 (已完成, 总数).
func (s *StreamContainer) ExportAll(dir string, progress ProgressFunc) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioErr("create", dir, err)
	}
	total := int64(len(s.tracks))
	if total == 0 {
		progress.report(0, 0)
		return nil
	}
	for i := range s.tracks {
		if err := s.Export(i, dir); err != nil {
			return err
		}
		progress.report(int64(i+1), total)
	}
	return nil
}

// Replace 用 newFile 的内容替换第 index 条音轨的负载. 头部不变.
func (s *StreamContainer) Replace(index int, newFile string) error {
	if index < 0 || index >= len(s.tracks) {
		return indexErr(index, len(s.tracks))
	}
	data, err := os.ReadFile(newFile)
	if err != nil {
		return ioErr("read", newFile, err)
	}
	return s.ReplacePayload(index, data)
}

// ReplacePayload 用 data 替换第 index 条音轨的负载. data 会被复制.
func (s *StreamContainer) ReplacePayload(index int, data []byte) error {
	if index < 0 || index >= len(s.tracks) {
		return indexErr(index, len(s.tracks))
	}
	if s.opts.CheckPayloadType {
		if err := checkOggPayload(s.tracks[index].Name, data); err != nil {
			return err
		}
	}
	s.tracks[index].Payload = append([]byte(nil), data...)
	return nil
}

// Bytes 按顺序拼接所有 (头部, 负载) 并加密, 返回完整的容器内容.
// 每条音轨报告两次进度: 写完头部后, 写完负载后.
func (s *StreamContainer) Bytes(progress ProgressFunc) []byte {
	var total int64
	for _, t := range s.tracks {
		total += int64(len(t.Header) + len(t.Payload))
	}

	buf := make([]byte, 0, total)
	for _, t := range s.tracks {
		if s.opts.PatchLength {
			s.format.patchLength(t.Header, uint32(len(t.Payload)))
		}
		buf = append(buf, t.Header...)
		progress.report(int64(len(buf)), total)
		buf = append(buf, t.Payload...)
		progress.report(int64(len(buf)), total)
	}
	if len(s.tracks) == 0 {
		progress.report(0, 0)
	}

	s.cipher.Mask(buf, nil)
	return buf
}

// Rebuild 重新序列化容器并覆盖源文件. 头部中的长度字段默认不会重新计算,
// 负载长度变化后需要打开 Options.PatchLength 才能被游戏正确读取.
func (s *StreamContainer) Rebuild(progress ProgressFunc) error {
	buf := s.Bytes(progress)
	if s.opts.Backup {
		current, err := os.ReadFile(s.path)
		if err != nil {
			return ioErr("read", s.path, err)
		}
		if err := writeBackup(s.path, current); err != nil {
			return err
		}
	}
	return writeFileAtomic(s.path, buf)
}
