package gtaaudio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthSlotScan(t *testing.T) {
	f := DefaultFormat()

	t.Run("first non-sentinel slot wins", func(t *testing.T) {
		h := trackBytes(f, map[int]uint32{3: 500, 5: 900}, nil)
		assert.Equal(t, uint32(500), f.TrackLength(h))
	})
	t.Run("all sentinel", func(t *testing.T) {
		h := trackBytes(f, nil, nil)
		assert.Equal(t, uint32(0), f.TrackLength(h))
	})
	t.Run("zero is a real length", func(t *testing.T) {
		h := trackBytes(f, map[int]uint32{0: 0, 1: 77}, nil)
		assert.Equal(t, uint32(0), f.TrackLength(h))
	})
}

func TestParseStreamSentinelSlots(t *testing.T) {
	f := DefaultFormat()
	payload := pattern(500, 1)
	plain := trackBytes(f, map[int]uint32{3: 500}, payload)

	tracks, err := ParseStream(plain, "AA", f)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Len(t, tracks[0].Payload, 500)
	assert.Equal(t, payload, tracks[0].Payload)
	assert.Len(t, tracks[0].Header, TrackHeaderSize)
}

func TestParseStreamTruncatedTail(t *testing.T) {
	f := DefaultFormat()
	plain := concat(
		trackBytes(f, map[int]uint32{0: 10}, pattern(10, 0)),
		trackBytes(f, map[int]uint32{0: 1000}, pattern(20, 0)), // 声明长度超出剩余数据
	)

	tracks, err := ParseStream(plain, "AA", f)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "AA_1", tracks[0].Name)
}

func TestParseStreamShortTail(t *testing.T) {
	f := DefaultFormat()
	plain := concat(
		trackBytes(f, map[int]uint32{0: 4}, pattern(4, 0)),
		make([]byte, TrackHeaderSize-1), // 不足一个头部
	)
	tracks, err := ParseStream(plain, "AA", f)
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
}

func TestParseStreamEmpty(t *testing.T) {
	tracks, err := ParseStream(nil, "AA", DefaultFormat())
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestStreamEndToEnd(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	p1, p2 := pattern(10, 0x10), pattern(20, 0x80)
	path := writeStream(t, f, dir, "BEATS", concat(
		trackBytes(f, map[int]uint32{0: 10}, p1),
		trackBytes(f, map[int]uint32{0: 20}, p2),
	))

	var log progressLog
	s, err := LoadStream(path, f, Options{}, log.fn)
	require.NoError(t, err)
	log.requireFinished(t)

	require.Equal(t, 2, s.Len())
	infos := s.List()
	assert.Equal(t, "BEATS_1", infos[0].Name)
	assert.Equal(t, "BEATS_2", infos[1].Name)
	assert.Equal(t, 10, infos[0].Size)
	assert.Equal(t, 20, infos[1].Size)
	assert.Equal(t, uint32(20), infos[1].Declared)

	out := filepath.Join(dir, "out")
	var exportLog progressLog
	require.NoError(t, s.ExportAll(out, exportLog.fn))
	exportLog.requireFinished(t)
	assert.Equal(t, []Progress{{1, 2}, {2, 2}}, exportLog.calls)

	got1, err := os.ReadFile(filepath.Join(out, "BEATS_1.ogg"))
	require.NoError(t, err)
	assert.Equal(t, p1, got1)
	got2, err := os.ReadFile(filepath.Join(out, "BEATS_2.ogg"))
	require.NoError(t, err)
	assert.Equal(t, p2, got2)
}

func TestStreamRebuildRoundTrip(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	plain := concat(
		trackBytes(f, map[int]uint32{2: 33}, pattern(33, 1)),
		trackBytes(f, nil, nil),
		trackBytes(f, map[int]uint32{7: 4099}, pattern(4099, 2)),
	)
	path := writeStream(t, f, dir, "AA.dat", plain)
	orig, err := os.ReadFile(path)
	require.NoError(t, err)

	s, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	var log progressLog
	require.NoError(t, s.Rebuild(log.fn))
	log.requireFinished(t)
	assert.Len(t, log.calls, 2*3)

	rebuilt, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, rebuilt)

	again, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, s.Len(), again.Len())
	for i := 0; i < s.Len(); i++ {
		a, err := s.Track(i)
		require.NoError(t, err)
		b, err := again.Track(i)
		require.NoError(t, err)
		assert.Equal(t, a.Header, b.Header)
		assert.Equal(t, a.Payload, b.Payload)
		assert.Equal(t, "AA_"+string(rune('1'+i)), b.Name)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestStreamReplace(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	path := writeStream(t, f, dir, "AA", concat(
		trackBytes(f, map[int]uint32{0: 10}, pattern(10, 0)),
		trackBytes(f, map[int]uint32{0: 20}, pattern(20, 0)),
	))
	s, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)

	newFile := filepath.Join(dir, "new.ogg")
	repl := pattern(20, 0xEE)
	require.NoError(t, os.WriteFile(newFile, repl, 0o644))

	assert.ErrorIs(t, s.Replace(2, newFile), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Replace(-1, newFile), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Replace(0, filepath.Join(dir, "missing.ogg")), ErrIO)

	before, err := s.Track(1)
	require.NoError(t, err)
	header := append([]byte(nil), before.Header...)
	require.NoError(t, s.Replace(1, newFile))
	after, err := s.Track(1)
	require.NoError(t, err)
	assert.Equal(t, repl, after.Payload)
	assert.Equal(t, header, after.Header)

	// 同样长度的替换在重建后可以被重新解析
	require.NoError(t, s.Rebuild(nil))
	again, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, again.Len())
	tr, err := again.Track(1)
	require.NoError(t, err)
	assert.Equal(t, repl, tr.Payload)
}

func TestStreamRebuildKeepsStaleLength(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	path := writeStream(t, f, dir, "AA", trackBytes(f, map[int]uint32{1: 10}, pattern(10, 0)))
	s, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.ReplacePayload(0, pattern(25, 3)))
	require.NoError(t, s.Rebuild(nil))

	plain := readPlain(t, f, path)
	require.Len(t, plain, TrackHeaderSize+25)
	assert.Equal(t, uint32(10), f.TrackLength(plain[:TrackHeaderSize]))
}

func TestStreamRebuildPatchLength(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	path := writeStream(t, f, dir, "AA", concat(
		trackBytes(f, map[int]uint32{1: 10}, pattern(10, 0)),
		trackBytes(f, nil, nil),
		trackBytes(f, map[int]uint32{0: 5}, pattern(5, 0)),
	))
	s, err := LoadStream(path, f, Options{PatchLength: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.ReplacePayload(0, pattern(25, 3)))
	require.NoError(t, s.ReplacePayload(1, pattern(7, 4)))
	require.NoError(t, s.Rebuild(nil))

	plain := readPlain(t, f, path)
	h0 := plain[:TrackHeaderSize]
	assert.Equal(t, f.LengthSentinel, binary.LittleEndian.Uint32(h0[LengthSlotOffset:]))
	assert.Equal(t, uint32(25), binary.LittleEndian.Uint32(h0[LengthSlotOffset+LengthSlotStride:]))

	again, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, again.Len())
	for i, n := range []int{25, 7, 5} {
		tr, err := again.Track(i)
		require.NoError(t, err)
		assert.Len(t, tr.Payload, n, "track %d", i)
	}
}

func TestStreamCheckPayloadType(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	path := writeStream(t, f, dir, "AA", trackBytes(f, map[int]uint32{0: 4}, []byte("OggS")))

	s, err := LoadStream(path, f, Options{CheckPayloadType: true}, nil)
	require.NoError(t, err)

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	assert.ErrorIs(t, s.ReplacePayload(0, png), ErrUnsupportedAudio)

	ogg := append([]byte("OggS"), make([]byte, 60)...)
	assert.NoError(t, s.ReplacePayload(0, ogg))
	assert.NoError(t, s.ReplacePayload(0, []byte{1, 2, 3}), "unknown data is accepted")
}

func TestStreamRebuildBackup(t *testing.T) {
	f := DefaultFormat()
	dir := t.TempDir()
	path := writeStream(t, f, dir, "AA", trackBytes(f, map[int]uint32{0: 10}, pattern(10, 0)))
	orig, err := os.ReadFile(path)
	require.NoError(t, err)

	s, err := LoadStream(path, f, Options{Backup: true}, nil)
	require.NoError(t, err)
	require.NoError(t, s.ReplacePayload(0, pattern(10, 0x55)))
	require.NoError(t, s.Rebuild(nil))

	changed, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEqual(t, orig, changed)

	target, err := RestoreBackup(path + BackupExt)
	require.NoError(t, err)
	assert.Equal(t, path, target)
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, restored)
}

func TestStreamExportIndex(t *testing.T) {
	f := DefaultFormat()
	f.StreamExt = ".bin"
	dir := t.TempDir()
	path := writeStream(t, f, dir, "AA", trackBytes(f, map[int]uint32{0: 3}, []byte{7, 8, 9}))
	s, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Export(1, dir), ErrIndexOutOfRange)
	require.NoError(t, s.Export(0, dir))
	got, err := os.ReadFile(filepath.Join(dir, "AA_1.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8, 9}, got)
}

func TestLoadStreamErrors(t *testing.T) {
	f := DefaultFormat()
	_, err := LoadStream(filepath.Join(t.TempDir(), "nope"), f, Options{}, nil)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := f
	bad.Key = nil
	_, err = LoadStream("whatever", bad, Options{}, nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestStreamAlternateFormat(t *testing.T) {
	f := DefaultFormat()
	f.Key = []byte{0x11, 0x22, 0x33}
	f.TrackHeaderSize = 64
	f.LengthSlotOffset = 16
	f.LengthSlotCount = 2
	f.LengthSentinel = 0xFFFFFFFF
	require.NoError(t, f.Validate())

	dir := t.TempDir()
	path := writeStream(t, f, dir, "X", concat(
		trackBytes(f, map[int]uint32{1: 3}, []byte{1, 2, 3}),
		trackBytes(f, map[int]uint32{0: 1}, []byte{4}),
	))
	s, err := LoadStream(path, f, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	tr, err := s.Track(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, tr.Payload)
}
