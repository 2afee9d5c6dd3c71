package gtaaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// BackupExt 是重建前快照文件的后缀.
const BackupExt = ".bak.lz4"

var backupMagic = [4]byte{'G', 'A', 'B', '1'}

const (
	backupRaw byte = 0
	backupLz4 byte = 1
)

// writeFileAtomic 先写入同目录下的临时文件, 再重命名覆盖目标文件.
// 写入失败时目标文件保持不变.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return ioErr("create temp for", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioErr("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioErr("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioErr("close", tmpName, err)
	}
	if st, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, st.Mode().Perm())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ioErr("rename", tmpName, err)
	}
	return nil
}

// writeBackup 把 data 压缩后写到 path + BackupExt.
// 压不动的数据按原样存储.
func writeBackup(path string, data []byte) error {
	var out bytes.Buffer
	out.Write(backupMagic[:])

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress backup of %s: %w", path, err)
	}

	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(data)))
	if n > 0 && n < len(data) {
		out.WriteByte(backupLz4)
		out.Write(size[:])
		out.Write(dst[:n])
	} else {
		out.WriteByte(backupRaw)
		out.Write(size[:])
		out.Write(data)
	}
	return writeFileAtomic(path+BackupExt, out.Bytes())
}

// ReadBackup 读取并解压一个快照文件.
func ReadBackup(backupPath string) ([]byte, error) {
	raw, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, ioErr("read", backupPath, err)
	}
	if len(raw) < 13 || !bytes.Equal(raw[:4], backupMagic[:]) {
		return nil, fmt.Errorf("%w: %s is not a backup file", ErrInvalidFormat, backupPath)
	}
	mode := raw[4]
	size := binary.LittleEndian.Uint64(raw[5:13])
	body := raw[13:]

	switch mode {
	case backupRaw:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: backup size mismatch: got=%d expected=%d", ErrInvalidFormat, len(body), size)
		}
		return body, nil
	case backupLz4:
		dec := make([]byte, size)
		n, err := lz4.UncompressBlock(body, dec)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress backup %s: %w", backupPath, err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("%w: backup size mismatch: got=%d expected=%d", ErrInvalidFormat, n, size)
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("%w: unknown backup mode %d", ErrInvalidFormat, mode)
	}
}

// RestoreBackup 把快照写回原文件 (去掉 BackupExt 后缀的路径), 返回被恢复的路径.
func RestoreBackup(backupPath string) (string, error) {
	if !strings.HasSuffix(backupPath, BackupExt) {
		return "", fmt.Errorf("%w: backup path must end with %s", ErrInvalidFormat, BackupExt)
	}
	data, err := ReadBackup(backupPath)
	if err != nil {
		return "", err
	}
	target := strings.TrimSuffix(backupPath, BackupExt)
	if err := writeFileAtomic(target, data); err != nil {
		return "", err
	}
	return target, nil
}
