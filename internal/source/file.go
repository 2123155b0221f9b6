package source

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// File ingests a sequential MPEG-TS byte stream from a file or named pipe,
// standing in for the ASI capture-card contract of spec.md §1: a plain byte
// source with no hardware PID filter, always running in budget-mode-
// compatible full capture.
type File struct {
	noFilter
	log  *slog.Logger
	path string
	f    *os.File
}

// NewFile returns a File source reading from path. If log is nil,
// slog.Default() is used.
func NewFile(path string, log *slog.Logger) *File {
	return &File{log: defaultLog(log, "source.file"), path: path}
}

func (s *File) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	s.f = f
	s.log.Info("opened", "path", s.path)
	return nil
}

func (s *File) Read(buf []byte) (int, error) {
	n, err := io.ReadFull(s.f, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func (s *File) Reset() error {
	s.log.Warn("resetting source")
	if s.f != nil {
		s.f.Close()
	}
	return s.Open()
}

func (s *File) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
