package gtaaudio

import (
	"fmt"

	"github.com/h2non/filetype"
)

// checkOggPayload 在能识别出文件类型时要求它是 Ogg. 无法识别的数据放行.
func checkOggPayload(name string, data []byte) error {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil
	}
	if kind.Extension != "ogg" {
		return fmt.Errorf("%w: %s looks like %s (%s), expected ogg",
			ErrUnsupportedAudio, name, kind.Extension, kind.MIME.Value)
	}
	return nil
}
