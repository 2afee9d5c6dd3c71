package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/WJQSERVER/gtaaudio"
	"golang.org/x/sync/errgroup"
)

var configFlag *string

// defineFlags 注册命令行参数, 返回 -config 的值.
// 其余参数在 loadConfig 中通过 flag.Visit 读取, 只有显式给出时才覆盖配置文件.
func defineFlags(fs *flag.FlagSet) *string {
	config := fs.String("config", "", "配置文件路径 (yaml/json/toml)")
	fs.String(keyKey, gtaaudio.DefaultKeyHex, "XOR 密钥 (十六进制)")
	fs.String(keyExt, ".ogg", "导出音轨使用的扩展名")
	fs.Int(keyRate, gtaaudio.DefaultSampleRate, "采样率字段为 0 时使用的采样率")
	fs.Bool(keyBackup, false, "重建前为被覆盖的文件写出 .bak.lz4 快照")
	fs.Bool(keyPatchLength, false, "重建时把实际负载长度写回音轨头部")
	fs.Bool(keyCheckType, false, "替换音轨时拒绝非 Ogg 文件")
	fs.Int(keyParallel, runtime.NumCPU(), "stream-export 并行处理的文件数量")
	return config
}

func init() {
	configFlag = defineFlags(flag.CommandLine)

	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "GTA SA 音频容器编辑器\n\n")
		fmt.Fprintf(os.Stderr, "用法: %s [选项] <命令> <参数...>\n\n", name)
		fmt.Fprintf(os.Stderr, "命令:\n")
		fmt.Fprintf(os.Stderr, "  stream-list <stream文件>\n")
		fmt.Fprintf(os.Stderr, "  stream-export <输出目录> <stream文件...>\n")
		fmt.Fprintf(os.Stderr, "  stream-replace <stream文件> <序号> <新音轨文件>\n")
		fmt.Fprintf(os.Stderr, "  stream-rebuild <stream文件>\n")
		fmt.Fprintf(os.Stderr, "  bank-list <游戏根目录>\n")
		fmt.Fprintf(os.Stderr, "  bank-export <游戏根目录> <输出目录>\n")
		fmt.Fprintf(os.Stderr, "  bank-replace <游戏根目录> <序号> <wav文件>\n")
		fmt.Fprintf(os.Stderr, "  restore <快照文件.bak.lz4>\n\n")
		fmt.Fprintf(os.Stderr, "序号从 1 开始, 与 list 命令的输出一致.\n\n")
		fmt.Fprintf(os.Stderr, "选项:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n示例:\n")
		fmt.Fprintf(os.Stderr, "  %s stream-export ./out AA BEATS\n", name)
		fmt.Fprintf(os.Stderr, "  %s -backup bank-replace \"C:\\Games\\GTA San Andreas\" 12 horn.wav\n", name)
	}
}

func main() {
	log.SetFlags(0) // 不显示日期时间前缀
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFlag, flag.CommandLine, runtime.NumCPU())
	if err != nil {
		log.Fatalf("错误: 配置无效: %v", err)
	}

	if err := run(cfg, args[0], args[1:]); err != nil {
		log.Fatalf("错误: %v", err)
	}
}

func run(cfg *appConfig, cmd string, args []string) error {
	need := func(n int) error {
		if len(args) < n {
			flag.Usage()
			return fmt.Errorf("%s 需要 %d 个参数", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "stream-list":
		if err := need(1); err != nil {
			return err
		}
		return streamList(cfg, args[0])
	case "stream-export":
		if err := need(2); err != nil {
			return err
		}
		return streamExport(cfg, args[0], args[1:])
	case "stream-replace":
		if err := need(3); err != nil {
			return err
		}
		return streamReplace(cfg, args[0], args[1], args[2])
	case "stream-rebuild":
		if err := need(1); err != nil {
			return err
		}
		return streamRebuild(cfg, args[0])
	case "bank-list":
		if err := need(1); err != nil {
			return err
		}
		return bankList(cfg, args[0])
	case "bank-export":
		if err := need(2); err != nil {
			return err
		}
		return bankExport(cfg, args[0], args[1])
	case "bank-replace":
		if err := need(3); err != nil {
			return err
		}
		return bankReplace(cfg, args[0], args[1], args[2])
	case "restore":
		if err := need(1); err != nil {
			return err
		}
		target, err := gtaaudio.RestoreBackup(args[0])
		if err != nil {
			return err
		}
		log.Printf("已恢复: %s", target)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("未知命令 %q", cmd)
	}
}

// runTask 在后台运行 fn, 在终端上显示进度, 返回 fn 的结果.
func runTask(label string, fn func(progress gtaaudio.ProgressFunc) error) error {
	task := gtaaudio.Start(fn)
	lastPct := -1
	for p := range task.Progress() {
		pct := 100
		if p.Total > 0 {
			pct = int(p.Processed * 100 / p.Total)
		}
		if pct != lastPct {
			fmt.Fprintf(os.Stderr, "\r%s: %3d%%", label, pct)
			lastPct = pct
		}
	}
	err := task.Wait()
	if lastPct >= 0 {
		fmt.Fprintln(os.Stderr)
	}
	return err
}

func parseIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("无效的序号 %q: %w", s, err)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("序号 %d 超出范围 (1-%d): %w", i, n, gtaaudio.ErrIndexOutOfRange)
	}
	return i - 1, nil
}

func loadStream(cfg *appConfig, path string) (*gtaaudio.StreamContainer, error) {
	var s *gtaaudio.StreamContainer
	err := runTask("解密 "+filepath.Base(path), func(progress gtaaudio.ProgressFunc) error {
		var err error
		s, err = gtaaudio.LoadStream(path, cfg.Format, cfg.Options, progress)
		return err
	})
	return s, err
}

func streamList(cfg *appConfig, path string) error {
	s, err := loadStream(cfg, path)
	if err != nil {
		return err
	}
	for _, t := range s.List() {
		fmt.Printf("%4d  %-24s %10d", t.Index+1, t.Name, t.Size)
		if int(t.Declared) != t.Size {
			fmt.Printf("  (头部声明 %d)", t.Declared)
		}
		fmt.Println()
	}
	log.Printf("共 %d 条音轨", s.Len())
	return nil
}

// streamExport 以文件为单位并行导出, 每个 goroutine 独占一个容器.
func streamExport(cfg *appConfig, outDir string, files []string) error {
	var g errgroup.Group
	g.SetLimit(min(cfg.Parallel, len(files)))

	log.Printf("开始导出 %d 个文件，并行数: %d", len(files), min(cfg.Parallel, len(files)))
	for _, file := range files {
		file := file
		g.Go(func() error {
			s, err := gtaaudio.LoadStream(file, cfg.Format, cfg.Options, nil)
			if err != nil {
				log.Printf("加载失败: %s. 错误: %v", file, err)
				return err
			}
			if err := s.ExportAll(outDir, nil); err != nil {
				log.Printf("导出失败: %s. 错误: %v", file, err)
				return err
			}
			log.Printf("成功导出: %s (%d 条音轨)", file, s.Len())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("所有导出任务完成。")
	return nil
}

func streamReplace(cfg *appConfig, path, index, newFile string) error {
	s, err := loadStream(cfg, path)
	if err != nil {
		return err
	}
	i, err := parseIndex(index, s.Len())
	if err != nil {
		return err
	}
	if err := s.Replace(i, newFile); err != nil {
		return err
	}
	t, _ := s.Track(i)
	log.Printf("已替换 %s <- %s (%d 字节)", t.Name, newFile, len(t.Payload))
	if !cfg.Options.PatchLength && int(cfg.Format.TrackLength(t.Header)) != len(t.Payload) {
		log.Printf("警告: 头部声明长度 %d 与新负载长度 %d 不一致, 可使用 -patch-length",
			cfg.Format.TrackLength(t.Header), len(t.Payload))
	}
	return runTask("重建 "+filepath.Base(path), s.Rebuild)
}

func streamRebuild(cfg *appConfig, path string) error {
	s, err := loadStream(cfg, path)
	if err != nil {
		return err
	}
	return runTask("重建 "+filepath.Base(path), s.Rebuild)
}

func loadBank(cfg *appConfig, root string) (*gtaaudio.BankContainer, error) {
	var c *gtaaudio.BankContainer
	err := runTask("加载音效包", func(progress gtaaudio.ProgressFunc) error {
		var err error
		c, err = gtaaudio.LoadBank(root, cfg.Format, cfg.Options, progress)
		return err
	})
	if c != nil {
		for _, w := range c.Warnings() {
			log.Printf("跳过: %v", w)
		}
	}
	return c, err
}

func bankList(cfg *appConfig, root string) error {
	c, err := loadBank(cfg, root)
	if err != nil {
		return err
	}
	for _, s := range c.List() {
		fmt.Printf("%6d  %-32s %6d Hz %10d\n", s.Index+1, s.Name, s.Rate, s.Size)
	}
	log.Printf("共 %d 个音效", c.Len())
	return nil
}

func bankExport(cfg *appConfig, root, outDir string) error {
	c, err := loadBank(cfg, root)
	if err != nil {
		return err
	}
	return runTask("导出音效", func(progress gtaaudio.ProgressFunc) error {
		return c.ExportAll(outDir, progress)
	})
}

func bankReplace(cfg *appConfig, root, index, wavFile string) error {
	c, err := loadBank(cfg, root)
	if err != nil {
		return err
	}
	i, err := parseIndex(index, c.Len())
	if err != nil {
		return err
	}
	if err := c.Replace(i, wavFile); err != nil {
		return err
	}
	s, _ := c.Sound(i)
	log.Printf("已替换 %s <- %s (%d 字节, 窗口 %d 字节)", s.Name, wavFile, len(s.PCM), s.Window)
	if len(s.PCM) > s.Window {
		log.Printf("警告: 新数据超出原窗口, 将截断 %d 字节", len(s.PCM)-s.Window)
	}
	seen := len(c.Warnings())
	if err := runTask("重建音效包", c.Rebuild); err != nil {
		return err
	}
	for _, w := range c.Warnings()[seen:] {
		log.Printf("跳过: %v", w)
	}
	return nil
}
