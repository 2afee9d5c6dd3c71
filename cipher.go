package gtaaudio

import "encoding/binary"

// cipherChunk 是进度回调的粒度 (字节).
const cipherChunk = 4096

// Cipher 是循环密钥 XOR 变换. 加密与解密是同一个操作.
type Cipher struct {
	key  []byte
	wide []uint64 // 密钥长度为 8 的倍数时, 按 8 字节一组预先展开
}

// NewCipher 创建一个使用指定密钥的 Cipher. 密钥会被复制.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	c := &Cipher{key: append([]byte(nil), key...)}
	if len(key)%8 == 0 {
		c.wide = make([]uint64, len(key)/8)
		for i := range c.wide {
			c.wide[i] = binary.LittleEndian.Uint64(c.key[i*8:])
		}
	}
	return c, nil
}

// Transform 对 buf 原地执行 XOR, buf[i] ^= key[i % len(key)].
func Transform(buf, key []byte, progress ProgressFunc) error {
	c, err := NewCipher(key)
	if err != nil {
		return err
	}
	c.Mask(buf, progress)
	return nil
}

// Mask 对 buf 原地执行 XOR. 每处理 4096 字节回调一次进度, 最后一次回调 processed == total.
func (c *Cipher) Mask(buf []byte, progress ProgressFunc) {
	total := len(buf)
	if total == 0 {
		progress.report(0, 0)
		return
	}
	for start := 0; start < total; start += cipherChunk {
		end := start + cipherChunk
		if end > total {
			end = total
		}
		if c.wide != nil {
			c.maskWide(buf, start, end)
		} else {
			c.maskBytes(buf, start, end)
		}
		progress.report(int64(end), int64(total))
	}
}

// maskBytes 逐字节处理 [start, end).
func (c *Cipher) maskBytes(buf []byte, start, end int) {
	klen := len(c.key)
	k := start % klen
	for i := start; i < end; i++ {
		buf[i] ^= c.key[k]
		k++
		if k == klen {
			k = 0
		}
	}
}

// maskWide 按 8 字节一组处理 [start, end), 尾部不足 8 字节的部分逐字节处理.
// start 必须是 8 的倍数.
func (c *Cipher) maskWide(buf []byte, start, end int) {
	klen := len(c.key)
	i := start
	for ; i+8 <= end; i += 8 {
		w := binary.LittleEndian.Uint64(buf[i:])
		binary.LittleEndian.PutUint64(buf[i:], w^c.wide[(i%klen)/8])
	}
	if i < end {
		c.maskBytes(buf, i, end)
	}
}
