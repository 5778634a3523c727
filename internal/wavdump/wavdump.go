// Package wavdump captures the APU's stereo output stream to a WAV file for
// offline inspection. Like Gopher2600's wavwriter, samples are buffered in
// memory in their entirety and encoded once at the end of a run -- fine for
// a debugging aid, not meant for long unattended captures.
package wavdump

import (
	"os"

	wav "github.com/youpy/go-wav"
)

// Writer accumulates interleaved stereo int16 samples and flushes them to a
// WAV file on Close.
type Writer struct {
	path       string
	sampleRate uint32
	buffer     []wav.Sample
}

// New prepares a writer that will encode to path at the given sample rate
// once Close is called.
func New(path string, sampleRate int) *Writer {
	return &Writer{path: path, sampleRate: uint32(sampleRate)}
}

// WriteStereo appends interleaved L,R frames, as returned by
// Machine.APUPullStereo, to the capture buffer.
func (w *Writer) WriteStereo(frames []int16) {
	for i := 0; i+1 < len(frames); i += 2 {
		var s wav.Sample
		s.Values[0] = int(frames[i])
		s.Values[1] = int(frames[i+1])
		w.buffer = append(w.buffer, s)
	}
}

// Close encodes the buffered samples to disk as a 16-bit stereo WAV file.
func (w *Writer) Close() error {
	f, err := os.Create(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewWriter(f, uint32(len(w.buffer)), 2, w.sampleRate, 16)
	enc.WriteSamples(w.buffer)
	return nil
}
