package gtaaudio

import "encoding/binary"

// lengthSlot 返回头部中第一个不等于哨兵值的长度槽的序号及其长度.
// 所有槽都是哨兵值时返回 (-1, 0).
func (f Format) lengthSlot(header []byte) (slot int, length uint32) {
	for j := 0; j < f.LengthSlotCount; j++ {
		off := f.LengthSlotOffset + j*f.LengthSlotStride
		if off+8 > len(header) {
			continue
		}
		l := binary.LittleEndian.Uint32(header[off:])
		if l != f.LengthSentinel {
			return j, l
		}
	}
	return -1, 0
}

// TrackLength 解析头部中声明的负载长度.
func (f Format) TrackLength(header []byte) uint32 {
	_, l := f.lengthSlot(header)
	return l
}

// patchLength 把 length 写入当前生效的长度槽; 所有槽都是哨兵值时写入第 0 个槽.
func (f Format) patchLength(header []byte, length uint32) {
	if f.LengthSlotCount == 0 {
		return
	}
	slot, _ := f.lengthSlot(header)
	if slot < 0 {
		slot = 0
	}
	off := f.LengthSlotOffset + slot*f.LengthSlotStride
	if off+4 > len(header) {
		return
	}
	binary.LittleEndian.PutUint32(header[off:], length)
}
