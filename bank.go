package gtaaudio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vazrupe/endibuf"
)

// Package 是 PakFiles.dat 中登记的一个 SFX 包文件.
type Package struct {
	Index   int    // 在非空包名中的位置, 即 BankLkup.dat 中的包序号
	Name    string // 包名
	Path    string // {root}/audio/SFX/{Name}
	Missing bool   // 包文件不存在
}

// Sound 是音效包中的一段 PCM 片段.
type Sound struct {
	Package      int    // 所属包在 BankContainer.Packages() 中的序号
	HeaderOffset int64  // bank 头部在包文件中的偏移
	PCMOffset    int64  // PCM 相对 bank 头部末尾的偏移
	PCM          []byte // 单声道 16 位小端 PCM, 长度恒为偶数
	Window       int    // 加载时片段占用的字节数, 重建时只在这个范围内覆盖
	Rate         int    // 采样率
	Name         string // {package}_b{声音在 bank 中的序号}
}

// Start 返回片段在包文件中的绝对偏移.
func (s *Sound) Start(f Format) int64 {
	return s.HeaderOffset + int64(f.BankHeaderSize) + s.PCMOffset
}

// SoundInfo 是 List 返回的音效摘要.
type SoundInfo struct {
	Index   int
	Name    string
	Package string
	Rate    int
	Size    int
	Window  int
}

// BankContainer 持有从所有 SFX 包中解析出的音效, 按包顺序平铺.
// 不提供内部加锁, 同一实例的操作需要调用方串行化.
type BankContainer struct {
	root     string
	format   Format
	opts     Options
	packages []Package
	sounds   []*Sound
	warnings []error
}

type soundRecord struct {
	PCMOffset uint32
	Rate      uint16
}

// LoadBank 从游戏根目录加载音效包. progress 在处理每个包之前报告 (包序号, 包总数).
// CONFIG 目录或索引文件缺失时返回一个空的容器以及对应的错误.
func LoadBank(root string, format Format, opts Options, progress ProgressFunc) (*BankContainer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	c := &BankContainer{root: root, format: format, opts: opts}
	if err := c.load(progress); err != nil {
		c.packages = nil
		c.sounds = nil
		return c, err
	}
	return c, nil
}

func (c *BankContainer) load(progress ProgressFunc) error {
	configDir := filepath.Join(c.root, filepath.FromSlash(ConfigDir))
	if st, err := os.Stat(configDir); err != nil || !st.IsDir() {
		return fmt.Errorf("%w: %s", ErrConfigMissing, configDir)
	}

	pakData, err := readLookupFile(filepath.Join(configDir, PakFilesName), ErrPakFilesMissing)
	if err != nil {
		return err
	}
	names := c.format.parsePakFiles(pakData)

	lkupData, err := readLookupFile(filepath.Join(configDir, BankLkupName), ErrBankLkupMissing)
	if err != nil {
		return err
	}
	refs, warnings := c.format.parseBankLookup(lkupData)
	c.warnings = append(c.warnings, warnings...)

	sfxDir := filepath.Join(c.root, filepath.FromSlash(SFXDir))
	total := int64(len(names))
	for pi, name := range names {
		progress.report(int64(pi), total)

		pkg := Package{Index: pi, Name: name, Path: filepath.Join(sfxDir, name)}
		if !filepath.IsLocal(name) {
			c.warnings = append(c.warnings, malformed("%s: package name %q escapes %s", PakFilesName, name, SFXDir))
			pkg.Missing = true
			c.packages = append(c.packages, pkg)
			continue
		}

		data, err := os.ReadFile(pkg.Path)
		if err != nil {
			pkg.Missing = true
			if !errors.Is(err, fs.ErrNotExist) {
				c.warnings = append(c.warnings, ioErr("read", pkg.Path, err))
			}
			c.packages = append(c.packages, pkg)
			continue
		}
		c.packages = append(c.packages, pkg)

		for _, ref := range refs[pi] {
			c.loadBank(pi, name, data, ref)
		}
	}
	progress.report(total, total)
	return nil
}

func readLookupFile(path string, missing error) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", missing, path)
	}
	if err != nil {
		return nil, ioErr("read", path, err)
	}
	return data, nil
}

// loadBank 解析一个 bank 头部并切出其中的每个声音.
func (c *BankContainer) loadBank(pi int, pkgName string, data []byte, ref bankRef) {
	hsz := int64(c.format.BankHeaderSize)
	dataLen := int64(len(data))
	off := int64(ref.HeaderOffset)
	if off < 0 || off+hsz > dataLen {
		c.warnings = append(c.warnings, malformed("%s: bank header at %d exceeds file length %d", pkgName, off, dataLen))
		return
	}
	header := data[off : off+hsz]

	count, recs := readSoundTable(header)
	if len(recs) < count {
		c.warnings = append(c.warnings, malformed("%s: bank at %d lists %d sounds, header holds %d", pkgName, off, count, len(recs)))
	}

	for si, rec := range recs {
		var next uint32
		if si < count-1 {
			nb := soundTableOff + (si+1)*soundRecSize
			if nb+4 <= len(header) {
				next = binary.LittleEndian.Uint32(header[nb:])
			} else {
				next = rec.PCMOffset
			}
		} else {
			next = ref.DeclaredSize
		}

		length := int64(next) - int64(rec.PCMOffset)
		if length <= 0 {
			continue
		}
		start := off + hsz + int64(rec.PCMOffset)
		if start+length > dataLen {
			c.warnings = append(c.warnings, malformed("%s_b%d: pcm [%d, %d) exceeds file length %d",
				pkgName, si, start, start+length, dataLen))
			continue
		}

		rate := int(rec.Rate)
		if rate == 0 {
			rate = c.format.DefaultSampleRate
		}
		c.sounds = append(c.sounds, &Sound{
			Package:      pi,
			HeaderOffset: off,
			PCMOffset:    int64(rec.PCMOffset),
			PCM:          append([]byte(nil), data[start:start+(length&^1)]...),
			Window:       int(length),
			Rate:         rate,
			Name:         fmt.Sprintf("%s_b%d", pkgName, si),
		})
	}
}

// readSoundTable 读取 bank 头部的声音数量和声音表. 表超出头部范围时截断.
func readSoundTable(header []byte) (count int, recs []soundRecord) {
	r := endibuf.NewReader(bytes.NewReader(header))
	r.Endian = binary.LittleEndian

	c, err := r.ReadUint16()
	if err != nil {
		return 0, nil
	}
	count = int(c)
	if _, err := r.ReadBytes(soundTableOff - 2); err != nil {
		return count, nil
	}

	for si := 0; si < count; si++ {
		base := soundTableOff + si*soundRecSize
		if base+soundRecSize > len(header) {
			break
		}
		pcmOff, _ := r.ReadUint32()
		r.ReadUint32() // reserved
		rate, _ := r.ReadUint16()
		r.ReadUint16() // reserved
		recs = append(recs, soundRecord{PCMOffset: pcmOff, Rate: rate})
	}
	return count, recs
}

// Root 返回游戏根目录.
func (c *BankContainer) Root() string { return c.root }

// Len 返回音效数量.
func (c *BankContainer) Len() int { return len(c.sounds) }

// Packages 返回 PakFiles.dat 中登记的包.
func (c *BankContainer) Packages() []Package {
	return append([]Package(nil), c.packages...)
}

// Warnings 返回加载和重建过程中跳过的记录. 每个错误都包装了 ErrMalformedRecord 或 ErrIO.
func (c *BankContainer) Warnings() []error {
	return append([]error(nil), c.warnings...)
}

// Sound 返回第 index 个音效.
func (c *BankContainer) Sound(index int) (*Sound, error) {
	if index < 0 || index >= len(c.sounds) {
		return nil, indexErr(index, len(c.sounds))
	}
	return c.sounds[index], nil
}

// List 返回全部音效的摘要.
func (c *BankContainer) List() []SoundInfo {
	infos := make([]SoundInfo, len(c.sounds))
	for i, s := range c.sounds {
		infos[i] = SoundInfo{
			Index:   i,
			Name:    s.Name,
			Package: c.packages[s.Package].Name,
			Rate:    s.Rate,
			Size:    len(s.PCM),
			Window:  s.Window,
		}
	}
	return infos
}

// WAV 返回第 index 个音效包装后的 WAV 数据, 用于预览.
func (c *BankContainer) WAV(index int) ([]byte, error) {
	s, err := c.Sound(index)
	if err != nil {
		return nil, err
	}
	return WrapPCM(s.PCM, s.Rate), nil
}

// ExportPath 返回第 index 个音效导出到 dir 时的文件路径.
func (c *BankContainer) ExportPath(index int, dir string) (string, error) {
	s, err := c.Sound(index)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.Name+".wav"), nil
}

// Export 把第 index 个音效写成 {dir}/{name}.wav.
func (c *BankContainer) Export(index int, dir string) error {
	dst, err := c.ExportPath(index, dir)
	if err != nil {
		return err
	}
	s := c.sounds[index]
	return WriteWav(dst, s.PCM, s.Rate)
}

// ExportAll 依次导出全部音效, 每完成一个报告一次 (已完成, 总数).
func (c *BankContainer) ExportAll(dir string, progress ProgressFunc) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioErr("create", dir, err)
	}
	total := int64(len(c.sounds))
	if total == 0 {
		progress.report(0, 0)
		return nil
	}
	for i := range c.sounds {
		if err := c.Export(i, dir); err != nil {
			return err
		}
		progress.report(int64(i+1), total)
	}
	return nil
}

// Replace 用 WAV 文件中的 PCM 替换第 index 个音效. 只接受单声道 16 位 PCM.
// 采样率不会写回包文件, 音效保留原来的采样率.
func (c *BankContainer) Replace(index int, newFile string) error {
	if index < 0 || index >= len(c.sounds) {
		return indexErr(index, len(c.sounds))
	}
	pcm, _, err := ReadWav(newFile)
	if err != nil {
		return err
	}
	return c.ReplacePCM(index, pcm)
}

// ReplacePCM 用 16 位 PCM 替换第 index 个音效. pcm 会被复制.
func (c *BankContainer) ReplacePCM(index int, pcm []byte) error {
	if index < 0 || index >= len(c.sounds) {
		return indexErr(index, len(c.sounds))
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("%w: odd pcm length %d", ErrUnsupportedAudio, len(pcm))
	}
	c.sounds[index].PCM = append([]byte(nil), pcm...)
	return nil
}

// Rebuild 把每个音效写回所属的包文件. 每个包文件在写入前重新从磁盘读取,
// 音效只在加载时的原始窗口内覆盖: 新 PCM 较长时截断, 较短时窗口尾部保留原数据.
// 每写完一个包报告一次 (已完成包数, 包总数). 中途失败时已写完的包不会回滚.
func (c *BankContainer) Rebuild(progress ProgressFunc) error {
	var order []int
	groups := make(map[int][]*Sound)
	for _, s := range c.sounds {
		if _, ok := groups[s.Package]; !ok {
			order = append(order, s.Package)
		}
		groups[s.Package] = append(groups[s.Package], s)
	}

	total := int64(len(order))
	if total == 0 {
		progress.report(0, 0)
		return nil
	}
	for done, pi := range order {
		if err := c.rebuildPackage(c.packages[pi], groups[pi]); err != nil {
			return err
		}
		progress.report(int64(done+1), total)
	}
	return nil
}

func (c *BankContainer) rebuildPackage(pkg Package, sounds []*Sound) error {
	data, err := os.ReadFile(pkg.Path)
	if err != nil {
		return ioErr("read", pkg.Path, err)
	}
	if c.opts.Backup {
		if err := writeBackup(pkg.Path, data); err != nil {
			return err
		}
	}

	dataLen := int64(len(data))
	for _, s := range sounds {
		start := s.Start(c.format)
		end := start + int64(s.Window)
		if start < 0 || end > dataLen {
			c.warnings = append(c.warnings, malformed("%s: window [%d, %d) exceeds current file length %d",
				s.Name, start, end, dataLen))
			continue
		}
		copy(data[start:end], s.PCM)
	}
	return writeFileAtomic(pkg.Path, data)
}
