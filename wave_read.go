package gtaaudio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// ReadWav 读取一个 WAV 文件, 返回其中的 16 位小端 PCM 数据和采样率.
// 音效包的重建是按原位置覆盖的, 所以只接受单声道 16 位 PCM.
func ReadWav(path string) (pcm []byte, rate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, ioErr("open", path, err)
	}
	defer f.Close()

	pcm, rate, err = DecodeWav(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return pcm, rate, nil
}

// DecodeWav 从 r 解码单声道 16 位 PCM WAV.
func DecodeWav(r io.ReadSeeker) (pcm []byte, rate int, err error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: invalid wav: %w", ErrUnsupportedAudio, err)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, 0, fmt.Errorf("%w: wav format %d, expected PCM", ErrUnsupportedAudio, d.WavAudioFormat)
	}
	if d.NumChans != waveChannels || d.BitDepth != waveBits {
		return nil, 0, fmt.Errorf("%w: %d channel(s) %d-bit, expected mono 16-bit",
			ErrUnsupportedAudio, d.NumChans, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read pcm: %w", ErrUnsupportedAudio, err)
	}

	pcm = make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm, int(d.SampleRate), nil
}
