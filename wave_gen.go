package gtaaudio

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/vazrupe/endibuf"
)

// 导出音效使用的 PCM 参数: 单声道, 16 位.
const (
	waveChannels = 1
	waveBits     = 16
)

type stWaveHeader struct {
	Riff *stWAVEriff
	Data *stWAVEdata
}

// newWaveHeader 为 dataSize 字节的单声道 16 位 PCM 构建 WAV 头部.
func newWaveHeader(rate uint32, dataSize uint32) *stWaveHeader {
	riff := newWaveRiff()
	riff.fmtType = 1 // PCM
	riff.fmtChannelCount = waveChannels
	riff.fmtBitCount = waveBits
	riff.fmtSamplingRate = rate
	riff.fmtSamplingSize = riff.fmtBitCount / 8 * riff.fmtChannelCount
	riff.fmtSamplesPerSec = riff.fmtSamplingRate * uint32(riff.fmtSamplingSize)
	riff.riffSize = 0x24 + dataSize // 0x24 is the size of the header up to 'data' chunk

	data := newWaveData()
	data.dataSize = dataSize

	return &stWaveHeader{Riff: riff, Data: data}
}

// Write 通过 endibuf.Writer 写出头部, 用于可以 Seek 的目标 (文件).
func (wv *stWaveHeader) Write(w *endibuf.Writer) {
	wv.Riff.Write(w)
	wv.Data.Write(w)
}

// NeoWrite 写出头部到任意 io.Writer. endian 是数值字段的字节序, 块标识总是按原样写出.
func (wv *stWaveHeader) NeoWrite(w io.Writer, endian binary.ByteOrder) {
	wv.Riff.NeoWrite(w, endian)
	wv.Data.NeoWrite(w, endian)
}

type stWAVEriff struct {
	riff             []byte
	riffSize         uint32
	wave             []byte
	fmt              []byte
	fmtSize          uint32
	fmtType          uint16
	fmtChannelCount  uint16
	fmtSamplingRate  uint32
	fmtSamplesPerSec uint32
	fmtSamplingSize  uint16
	fmtBitCount      uint16
}

func newWaveRiff() *stWAVEriff {
	return &stWAVEriff{
		riff:    []byte("RIFF"),
		wave:    []byte("WAVE"),
		fmt:     []byte("fmt "),
		fmtSize: 0x10,
	}
}

// fmtFields 返回 fmt 块的数值字段, 按磁盘顺序.
func (h *stWAVEriff) fmtFields() []any {
	return []any{
		h.fmtSize,
		h.fmtType,
		h.fmtChannelCount,
		h.fmtSamplingRate,
		h.fmtSamplesPerSec,
		h.fmtSamplingSize,
		h.fmtBitCount,
	}
}

func (h *stWAVEriff) Write(w *endibuf.Writer) {
	endianSave := w.Endian
	defer func() { w.Endian = endianSave }()

	w.Endian = binary.LittleEndian
	w.WriteBytes(h.riff)
	w.WriteUint32(h.riffSize)
	w.WriteBytes(h.wave)
	w.WriteBytes(h.fmt)
	for _, v := range h.fmtFields() {
		w.WriteData(v)
	}
}

func (h *stWAVEriff) NeoWrite(w io.Writer, endian binary.ByteOrder) {
	w.Write(h.riff)
	binary.Write(w, endian, h.riffSize)
	w.Write(h.wave)
	w.Write(h.fmt)
	for _, v := range h.fmtFields() {
		binary.Write(w, endian, v)
	}
}

type stWAVEdata struct {
	data     []byte
	dataSize uint32
}

func newWaveData() *stWAVEdata {
	return &stWAVEdata{data: []byte("data")}
}

func (d *stWAVEdata) Write(w *endibuf.Writer) {
	endianSave := w.Endian
	defer func() { w.Endian = endianSave }()

	w.Endian = binary.LittleEndian
	w.WriteBytes(d.data)
	w.WriteUint32(d.dataSize)
}

func (d *stWAVEdata) NeoWrite(w io.Writer, endian binary.ByteOrder) {
	w.Write(d.data)
	binary.Write(w, endian, d.dataSize)
}

// WrapPCM 把单声道 16 位小端 PCM 包装成最小的 WAV 文件.
func WrapPCM(pcm []byte, rate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	newWaveHeader(uint32(rate), uint32(len(pcm))).NeoWrite(&buf, binary.LittleEndian)
	buf.Write(pcm)
	return buf.Bytes()
}

// WriteWav 把 PCM 包装为 WAV 写到 dst.
func WriteWav(dst string, pcm []byte, rate int) error {
	f, err := os.Create(dst)
	if err != nil {
		return ioErr("create", dst, err)
	}
	w := endibuf.NewWriter(f)
	newWaveHeader(uint32(rate), uint32(len(pcm))).Write(w)
	if _, err := f.Write(pcm); err != nil {
		f.Close()
		return ioErr("write", dst, err)
	}
	if err := f.Close(); err != nil {
		return ioErr("close", dst, err)
	}
	return nil
}
