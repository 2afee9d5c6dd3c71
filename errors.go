package gtaaudio

import (
	"errors"
	"fmt"
)

var (
	ErrConfigMissing     = errors.New("audio config directory not found")
	ErrLookupFileMissing = errors.New("lookup file not found")
	ErrPakFilesMissing   = fmt.Errorf("%s: %w", PakFilesName, ErrLookupFileMissing)
	ErrBankLkupMissing   = fmt.Errorf("%s: %w", BankLkupName, ErrLookupFileMissing)
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrIO                = errors.New("i/o error")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrInvalidFormat     = errors.New("invalid format")
	ErrUnsupportedAudio  = errors.New("unsupported audio")
	ErrEmptyKey          = errors.New("empty cipher key")
)

// ioErr 同时包装 ErrIO 与底层错误, 方便调用方用 errors.Is/As 判断.
func ioErr(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

func indexErr(index, n int) error {
	return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, n)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
}
