package wavdump

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_WriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w := New(path, 48000)
	w.WriteStereo([]int16{100, -100, 200, -200, 300, -300})

	if len(w.buffer) != 3 {
		t.Fatalf("buffered %d frames, want 3", len(w.buffer))
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty WAV file")
	}
}

func TestWriter_OddSampleTrailingByteIgnored(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "out.wav"), 44100)
	w.WriteStereo([]int16{1, 2, 3})
	if len(w.buffer) != 1 {
		t.Fatalf("buffered %d frames, want 1 (trailing odd sample dropped)", len(w.buffer))
	}
}
