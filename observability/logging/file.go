package logging

import (
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes an optional rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer returns stdout when no path is configured, otherwise a writer that
// tees stdout into a size-rotated file. The closer releases the file.
func (c FileConfig) Writer() (io.Writer, io.Closer) {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		return os.Stdout, nopCloser{}
	}
	size := c.MaxSizeMB
	if size <= 0 {
		size = 100
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
	return io.MultiWriter(os.Stdout, rotating), rotating
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
