package gtaaudio

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// bankRef 是 BankLkup.dat 中的一条记录.
type bankRef struct {
	HeaderOffset uint32 // bank 头部在包文件中的偏移
	DeclaredSize uint32 // bank PCM 区的总长度, 作为最后一个声音的结束位置
}

// parsePakFiles 把 PakFiles.dat 拆成定长记录, 取出以 0 结尾的包名.
// 空名字被跳过, 返回切片中的位置就是 BankLkup.dat 使用的包序号.
func (f Format) parsePakFiles(data []byte) []string {
	var names []string
	for off := 0; off < len(data); off += f.PakRecordSize {
		end := off + f.PakRecordSize
		if end > len(data) {
			end = len(data)
		}
		rec := data[off:end]
		if i := bytes.IndexByte(rec, 0); i >= 0 {
			rec = rec[:i]
		}
		if name := decodeName(rec); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// decodeName 宽松地解码包名: 合法 UTF-8 原样使用, 否则按 Windows-1252 解码.
func decodeName(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// parseBankLookup 解析 BankLkup.dat, 按包序号分组并保持文件中的顺序.
// 末尾不完整的记录会被跳过并作为警告返回.
func (f Format) parseBankLookup(data []byte) (map[int][]bankRef, []error) {
	refs := make(map[int][]bankRef)
	var warnings []error

	n := len(data) / f.LookupRecordSize
	for i := 0; i < n; i++ {
		rec := data[i*f.LookupRecordSize:]
		pkg := int(rec[0])
		// rec[1:4] padding
		refs[pkg] = append(refs[pkg], bankRef{
			HeaderOffset: binary.LittleEndian.Uint32(rec[4:]),
			DeclaredSize: binary.LittleEndian.Uint32(rec[8:]),
		})
	}
	if rest := len(data) % f.LookupRecordSize; rest != 0 {
		warnings = append(warnings, malformed("%s: %d trailing byte(s) after %d records", BankLkupName, rest, n))
	}
	return refs, warnings
}
