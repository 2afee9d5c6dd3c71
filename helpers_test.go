package gtaaudio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// progressLog 记录进度回调.
type progressLog struct {
	calls []Progress
}

func (p *progressLog) fn(processed, total int64) {
	p.calls = append(p.calls, Progress{Processed: processed, Total: total})
}

// requireFinished 检查回调单调不减, 且最后一次 processed == total.
func (p *progressLog) requireFinished(t *testing.T) {
	t.Helper()
	require.NotEmpty(t, p.calls)
	for i := 1; i < len(p.calls); i++ {
		require.GreaterOrEqual(t, p.calls[i].Processed, p.calls[i-1].Processed, "call %d", i)
		require.Equal(t, p.calls[0].Total, p.calls[i].Total, "call %d", i)
	}
	last := p.calls[len(p.calls)-1]
	require.Equal(t, last.Total, last.Processed)
}

// trackBytes 构造一条明文音轨. slots 中未给出的长度槽填哨兵值.
func trackBytes(f Format, slots map[int]uint32, payload []byte) []byte {
	h := make([]byte, f.TrackHeaderSize)
	for i := range h {
		h[i] = byte(i * 7)
	}
	for j := 0; j < f.LengthSlotCount; j++ {
		off := f.LengthSlotOffset + j*f.LengthSlotStride
		v, ok := slots[j]
		if !ok {
			v = f.LengthSentinel
		}
		binary.LittleEndian.PutUint32(h[off:], v)
	}
	return append(h, payload...)
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

// writeStream 加密 plain 并写到 dir/name.
func writeStream(t *testing.T, f Format, dir, name string, plain []byte) string {
	t.Helper()
	enc := append([]byte(nil), plain...)
	require.NoError(t, Transform(enc, f.Key, nil))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, enc, 0o644))
	return path
}

// readPlain 读取并解密一个容器文件.
func readPlain(t *testing.T, f Format, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, Transform(data, f.Key, nil))
	return data
}

type testSound struct {
	offset uint32
	rate   uint16
}

// bankHeader 构造一个 bank 头部块.
func bankHeader(f Format, count int, sounds []testSound) []byte {
	h := make([]byte, f.BankHeaderSize)
	binary.LittleEndian.PutUint16(h, uint16(count))
	for i, s := range sounds {
		base := soundTableOff + i*soundRecSize
		binary.LittleEndian.PutUint32(h[base:], s.offset)
		binary.LittleEndian.PutUint32(h[base+4:], 0xDEADBEEF)
		binary.LittleEndian.PutUint16(h[base+8:], s.rate)
		binary.LittleEndian.PutUint16(h[base+10:], 0xFFFF)
	}
	return h
}

func pakRecord(f Format, name string) []byte {
	rec := make([]byte, f.PakRecordSize)
	copy(rec, name)
	return rec
}

func lookupRecord(pkg byte, off, size uint32) []byte {
	rec := make([]byte, LookupRecordSize)
	rec[0] = pkg
	rec[1], rec[2], rec[3] = 0xAB, 0xCD, 0xEF
	binary.LittleEndian.PutUint32(rec[4:], off)
	binary.LittleEndian.PutUint32(rec[8:], size)
	return rec
}

// writeGameTree 在 root 下写出 audio/CONFIG 与 audio/SFX.
func writeGameTree(t *testing.T, root string, pak, lkup []byte, packages map[string][]byte) {
	t.Helper()
	config := filepath.Join(root, "audio", "CONFIG")
	sfx := filepath.Join(root, "audio", "SFX")
	require.NoError(t, os.MkdirAll(config, 0o755))
	require.NoError(t, os.MkdirAll(sfx, 0o755))
	if pak != nil {
		require.NoError(t, os.WriteFile(filepath.Join(config, PakFilesName), pak, 0o644))
	}
	if lkup != nil {
		require.NoError(t, os.WriteFile(filepath.Join(config, BankLkupName), lkup, 0o644))
	}
	for name, data := range packages {
		require.NoError(t, os.WriteFile(filepath.Join(sfx, name), data, 0o644))
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
