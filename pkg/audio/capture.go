package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Source yields successive frames of mono float32 samples from an audio
// input. The continuous listener and the command recorder both consume a
// Source, so tests can substitute scripted frames for a live microphone.
type Source interface {
	// ReadFrame blocks until one frame of samples is available and returns a
	// copy the caller may retain. Returns an error when the device fails or
	// the source is closed.
	ReadFrame() ([]float32, error)

	// Close releases the underlying device. ReadFrame calls after Close
	// return an error.
	Close() error
}

// SourceFactory opens a Source with the given format. The process-wide
// portaudio runtime must be initialised (via Initialize) before a factory
// backed by real hardware is used.
type SourceFactory func(sampleRate, frameSize int) (Source, error)

var initOnce sync.Once

// Initialize starts the portaudio runtime. Call once at process startup,
// before opening any Microphone. Safe to call multiple times.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		err = portaudio.Initialize()
	})
	return err
}

// Terminate shuts down the portaudio runtime. Call once at process shutdown,
// after all Microphones are closed.
func Terminate() error {
	return portaudio.Terminate()
}

// Compile-time interface assertion.
var _ Source = (*Microphone)(nil)

// Microphone is a Source backed by the default portaudio input device.
// Not safe for concurrent ReadFrame calls.
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	closed bool
}

// OpenMicrophone opens the default input device at the given sample rate,
// delivering frames of frameSize samples. The caller must Close the returned
// Microphone.
func OpenMicrophone(sampleRate, frameSize int) (Source, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("audio: invalid capture format %d Hz / %d samples", sampleRate, frameSize)
	}

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open default input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audio: start input stream: %w", err)
	}

	return &Microphone{stream: stream, buf: buf}, nil
}

// ReadFrame blocks until the device delivers one frame and returns a copy.
func (m *Microphone) ReadFrame() ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("audio: microphone is closed")
	}
	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("audio: read input stream: %w", err)
	}
	frame := make([]float32, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

// Close stops and releases the input stream. Safe to call more than once.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	return err
}
