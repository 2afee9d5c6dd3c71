package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/WJQSERVER/gtaaudio"
	"github.com/spf13/viper"
)

// 配置项名称, 同时用作命令行参数名和配置文件键名.
const (
	keyKey         = "key"
	keyExt         = "ext"
	keyRate        = "rate"
	keyBackup      = "backup"
	keyPatchLength = "patch-length"
	keyCheckType   = "check-type"
	keyParallel    = "p"
)

// appConfig 是合并了配置文件, 环境变量和命令行参数之后的最终配置.
type appConfig struct {
	Format   gtaaudio.Format
	Options  gtaaudio.Options
	Parallel int
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 (GTAAUDIO_*) < 显式给出的命令行参数 的顺序合并配置.
func loadConfig(path string, fs *flag.FlagSet, parallelDefault int) (*appConfig, error) {
	v := viper.New()
	v.SetDefault(keyKey, gtaaudio.DefaultKeyHex)
	v.SetDefault(keyExt, ".ogg")
	v.SetDefault(keyRate, gtaaudio.DefaultSampleRate)
	v.SetDefault(keyBackup, false)
	v.SetDefault(keyPatchLength, false)
	v.SetDefault(keyCheckType, false)
	v.SetDefault(keyParallel, parallelDefault)

	v.SetEnvPrefix("GTAAUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// 只有显式给出的参数才覆盖配置文件
	fs.Visit(func(f *flag.Flag) {
		if g, ok := f.Value.(flag.Getter); ok {
			v.Set(f.Name, g.Get())
		}
	})

	key, err := gtaaudio.ParseKey(v.GetString(keyKey))
	if err != nil {
		return nil, err
	}
	format := gtaaudio.DefaultFormat()
	format.Key = key
	format.StreamExt = v.GetString(keyExt)
	if format.StreamExt != "" && !strings.HasPrefix(format.StreamExt, ".") {
		format.StreamExt = "." + format.StreamExt
	}
	format.DefaultSampleRate = v.GetInt(keyRate)
	if err := format.Validate(); err != nil {
		return nil, err
	}

	parallel := v.GetInt(keyParallel)
	if parallel <= 0 {
		parallel = 1
	}

	return &appConfig{
		Format: format,
		Options: gtaaudio.Options{
			Backup:           v.GetBool(keyBackup),
			PatchLength:      v.GetBool(keyPatchLength),
			CheckPayloadType: v.GetBool(keyCheckType),
		},
		Parallel: parallel,
	}, nil
}
