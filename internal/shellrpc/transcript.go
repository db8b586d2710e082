package shellrpc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Transcript records every byte of session output to a zstd-compressed
// file, so long package-manager runs stay cheap to keep around.
type Transcript struct {
	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	closed bool
}

// NewTranscript creates the transcript file, creating parent directories
// as needed.
func NewTranscript(path string) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transcript dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("transcript encoder: %w", err)
	}
	return &Transcript{f: f, enc: enc}, nil
}

// Write appends a chunk; safe for concurrent use, no-op after Close.
func (t *Transcript) Write(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || len(data) == 0 {
		return
	}
	_, _ = t.enc.Write(data)
}

// Close flushes the compressed stream and closes the file. Idempotent.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.enc.Close()
	if cerr := t.f.Close(); err == nil {
		err = cerr
	}
	return err
}
