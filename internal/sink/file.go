package sink

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/zsiec/dvbrelay/internal/demux"
)

// File writes every output's packets to its own file, useful for tests and
// for recording a relayed feed to disk.
type File struct {
	log *slog.Logger

	mu    sync.Mutex
	files map[*demux.Output]*os.File
}

// NewFile returns an empty File sink. If log is nil, slog.Default() is used.
func NewFile(log *slog.Logger) *File {
	return &File{log: defaultLog(log, "sink.file"), files: make(map[*demux.Output]*os.File)}
}

// Register opens (creating/truncating) path for output.
func (f *File) Register(output *demux.Output, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	f.mu.Lock()
	if old, ok := f.files[output]; ok {
		old.Close()
	}
	f.files[output] = file
	f.mu.Unlock()
	return nil
}

// Close closes every registered output's file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for o, file := range f.files {
		file.Close()
		delete(f.files, o)
	}
	return nil
}

// Put implements Sink.
func (f *File) Put(output *demux.Output, pid uint16, packet []byte, dts int64) {
	f.mu.Lock()
	file := f.files[output]
	f.mu.Unlock()
	if file == nil {
		return
	}
	if _, err := file.Write(packet); err != nil {
		f.log.Debug("write error", "pid", pid, "error", err)
	}
}
