// Package gtaaudio 实现了 GTA SA 两种音频容器的读写:
// 流式音乐容器 (每条音轨 = 定长头部 + 变长压缩音频) 与音效包容器
// (PakFiles.dat / BankLkup.dat 两张索引表 + 若干 SFX 包文件).
// 两种容器在磁盘上都经过 16 字节循环 XOR 混淆.
package gtaaudio

import (
	"encoding/hex"
	"fmt"
)

// Format 描述容器的二进制布局. 所有常量都通过它注入到各个操作中,
// 测试时可以替换为其他密钥或尺寸.
type Format struct {
	// --- 加密 ---
	Key []byte // XOR 密钥, 循环作用于整个缓冲区

	// --- 流式音乐容器 ---
	TrackHeaderSize  int    // 每条音轨的定长头部大小
	LengthSlotOffset int    // 头部中第一个长度槽的相对偏移
	LengthSlotCount  int    // 长度槽数量
	LengthSlotStride int    // 长度槽步长 (u32 length + u32 reserved)
	LengthSentinel   uint32 // 未初始化的长度槽标记
	StreamExt        string // 导出音轨时使用的扩展名

	// --- 音效包容器 ---
	BankHeaderSize    int // bank 头部块大小
	PakRecordSize     int // PakFiles.dat 记录大小
	LookupRecordSize  int // BankLkup.dat 记录大小
	DefaultSampleRate int // 采样率字段为 0 时使用的采样率
}

// Options 控制重建时的可选行为. 零值即为原版工具的行为.
type Options struct {
	PatchLength      bool // 重建时把实际负载长度写回头部的长度槽
	Backup           bool // 覆盖文件前写出 <file>.bak.lz4 快照
	CheckPayloadType bool // 替换音轨时拒绝可识别的非 Ogg 文件
}

// 默认布局常量.
const (
	TrackHeaderSize   = 8068
	LengthSlotOffset  = 8000
	LengthSlotCount   = 8
	LengthSlotStride  = 8
	LengthSentinel    = 0xCDCDCDCD
	BankHeaderSize    = 4804
	PakRecordSize     = 52
	LookupRecordSize  = 12
	DefaultSampleRate = 22050

	ConfigDir     = "audio/CONFIG"
	SFXDir        = "audio/SFX"
	PakFilesName  = "PakFiles.dat"
	BankLkupName  = "BankLkup.dat"
	soundTableOff = 4  // 声音表在 bank 头部中的起始偏移
	soundRecSize  = 12 // u32 pcmOffset, u32 reserved, u16 rate, u16 reserved
)

// DefaultKeyHex 是游戏使用的 XOR 密钥.
const DefaultKeyHex = "EA3AC4A19AA814F348B0D7239DE8FFF1"

// DefaultFormat 返回游戏实际使用的布局.
func DefaultFormat() Format {
	key, _ := hex.DecodeString(DefaultKeyHex)
	return Format{
		Key:               key,
		TrackHeaderSize:   TrackHeaderSize,
		LengthSlotOffset:  LengthSlotOffset,
		LengthSlotCount:   LengthSlotCount,
		LengthSlotStride:  LengthSlotStride,
		LengthSentinel:    LengthSentinel,
		StreamExt:         ".ogg",
		BankHeaderSize:    BankHeaderSize,
		PakRecordSize:     PakRecordSize,
		LookupRecordSize:  LookupRecordSize,
		DefaultSampleRate: DefaultSampleRate,
	}
}

// Validate 检查布局是否自洽.
func (f Format) Validate() error {
	if len(f.Key) == 0 {
		return ErrEmptyKey
	}
	if f.TrackHeaderSize <= 0 {
		return fmt.Errorf("%w: track header size %d", ErrInvalidFormat, f.TrackHeaderSize)
	}
	if f.LengthSlotCount < 0 || f.LengthSlotStride < 8 || f.LengthSlotOffset < 0 {
		return fmt.Errorf("%w: length slots offset=%d count=%d stride=%d",
			ErrInvalidFormat, f.LengthSlotOffset, f.LengthSlotCount, f.LengthSlotStride)
	}
	if f.LengthSlotCount > 0 {
		last := f.LengthSlotOffset + (f.LengthSlotCount-1)*f.LengthSlotStride + 8
		if last > f.TrackHeaderSize {
			return fmt.Errorf("%w: length slots end at %d, header is %d bytes",
				ErrInvalidFormat, last, f.TrackHeaderSize)
		}
	}
	if f.BankHeaderSize < soundTableOff+soundRecSize {
		return fmt.Errorf("%w: bank header size %d", ErrInvalidFormat, f.BankHeaderSize)
	}
	if f.PakRecordSize <= 0 || f.LookupRecordSize < 12 {
		return fmt.Errorf("%w: record sizes pak=%d lookup=%d", ErrInvalidFormat, f.PakRecordSize, f.LookupRecordSize)
	}
	if f.DefaultSampleRate <= 0 {
		return fmt.Errorf("%w: default sample rate %d", ErrInvalidFormat, f.DefaultSampleRate)
	}
	return nil
}

// ParseKey 把十六进制字符串解析为密钥.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return key, nil
}
