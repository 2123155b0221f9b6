package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zsiec/dvbrelay/internal/demux"
)

func TestFileSinkWritesRegisteredOutputsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ts")

	f := NewFile(nil)
	defer f.Close()

	registered := &demux.Output{}
	unregistered := &demux.Output{}
	if err := f.Register(registered, path); err != nil {
		t.Fatalf("Register: %v", err)
	}

	packet := make([]byte, 188)
	packet[0] = 0x47
	f.Put(registered, 0x0100, packet, 1000)
	f.Put(unregistered, 0x0100, packet, 1000) // silently dropped, no file to write to

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 188 {
		t.Errorf("file contains %d bytes, want 188 (one packet from the registered output only)", len(got))
	}
}

func TestFileSinkRegisterTwiceClosesThePreviousFile(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "first.ts")
	path2 := filepath.Join(dir, "second.ts")

	f := NewFile(nil)
	o := &demux.Output{}

	if err := f.Register(o, path1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.Register(o, path2); err != nil {
		t.Fatalf("Register: %v", err)
	}

	packet := make([]byte, 188)
	f.Put(o, 0x0100, packet, 1000)
	f.Close()

	got, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 188 {
		t.Errorf("second file contains %d bytes, want 188 (writes should follow re-registration)", len(got))
	}
}
