// Package mock provides a test double for the audio.Source interface.
//
// Use Source to feed scripted frames to a consumer without a live device:
//
//	src := mock.NewSource([]float32{0.1, 0.2})
//	frame, _ := src.ReadFrame()
package mock

import (
	"errors"
	"sync"

	"github.com/auricvoice/auric/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// ErrClosed is returned from ReadFrame once the source is closed.
var ErrClosed = errors.New("mock: source closed")

// Source is a mock implementation of audio.Source. It yields its scripted
// frames in order, then blocks until Close is called.
type Source struct {
	mu     sync.Mutex
	frames [][]float32
	idx    int

	// ReadErr, if non-nil, is returned from every ReadFrame call once the
	// scripted frames are exhausted, instead of blocking.
	ReadErr error

	closed    chan struct{}
	closeOnce sync.Once
}

// NewSource returns a Source scripted with the given frames.
func NewSource(frames ...[]float32) *Source {
	return &Source{frames: frames, closed: make(chan struct{})}
}

// ReadFrame returns the next scripted frame. When the script is exhausted it
// returns ReadErr if set, otherwise blocks until Close.
func (s *Source) ReadFrame() ([]float32, error) {
	s.mu.Lock()
	if s.idx < len(s.frames) {
		frame := s.frames[s.idx]
		s.idx++
		s.mu.Unlock()
		return frame, nil
	}
	readErr := s.ReadErr
	s.mu.Unlock()

	if readErr != nil {
		return nil, readErr
	}
	<-s.closed
	return nil, ErrClosed
}

// Close unblocks any pending ReadFrame. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Drained reports whether every scripted frame has been read. Thread-safe.
func (s *Source) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx >= len(s.frames)
}

// Factory returns an audio.SourceFactory that always opens src.
func Factory(src audio.Source) audio.SourceFactory {
	return func(int, int) (audio.Source, error) { return src, nil }
}
