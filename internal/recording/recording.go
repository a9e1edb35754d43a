// Package recording buffers raw audio while a free-form utterance is being
// captured and serializes it to a WAV artifact for the offline transcription
// pass.
//
// A Session owns a dedicated capture stream at a higher sample rate than the
// continuous listening stream; the two never share a device handle. Frames
// are append-only and read back only after the stream is confirmed closed.
// Artifacts are transient files whose names are an MD5 hash of a timestamped
// filename; the caller deletes them once transcription completes.
package recording

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/auricvoice/auric/pkg/audio"
)

// DefaultSampleRate is the capture rate for recording sessions, deliberately
// higher than the 16 kHz continuous recognizer stream.
const DefaultSampleRate = 44100

// defaultFrameSize is the per-read frame length in samples.
const defaultFrameSize = 1024

// Option is a functional option for Start.
type Option func(*Session)

// WithSampleRate overrides the capture sample rate.
// Default: DefaultSampleRate.
func WithSampleRate(rate int) Option {
	return func(s *Session) { s.sampleRate = rate }
}

// WithArtifactDir sets the directory artifacts are written to.
// Default: the OS temp directory.
func WithArtifactDir(dir string) Option {
	return func(s *Session) { s.dir = dir }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session is one in-progress free-form capture. Create with Start; every
// session must be finished with exactly one Stop call.
type Session struct {
	sampleRate int
	dir        string
	log        *slog.Logger

	src       audio.Source
	startedAt time.Time

	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	frames  []float32
	readErr error
	stopped bool
}

// Start opens a capture stream via factory and begins buffering frames.
func Start(factory audio.SourceFactory, opts ...Option) (*Session, error) {
	s := &Session{
		sampleRate: DefaultSampleRate,
		dir:        os.TempDir(),
		log:        slog.Default(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	src, err := factory(s.sampleRate, defaultFrameSize)
	if err != nil {
		return nil, fmt.Errorf("recording: open capture stream: %w", err)
	}
	s.src = src
	s.startedAt = time.Now()

	go s.readLoop()

	s.log.Debug("recording session started", "sample_rate", s.sampleRate)
	return s, nil
}

// StartedAt returns when the capture began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// readLoop drains the source into the frame buffer until Stop closes the
// stop channel or the device fails.
func (s *Session) readLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		frame, err := s.src.ReadFrame()
		if err != nil {
			select {
			case <-s.stop:
				// Close raced with a blocking read; not a device failure.
				return
			default:
			}
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			s.log.Warn("recording capture failed", "error", err)
			return
		}

		s.mu.Lock()
		s.frames = append(s.frames, frame...)
		s.mu.Unlock()
	}
}

// Stop ends the capture. With cut=true the buffered frames are discarded and
// no artifact is written. Otherwise the frames are serialized to a WAV file
// and its path returned; an empty path with nil error means nothing was
// captured. Calling Stop more than once returns an error.
func (s *Session) Stop(cut bool) (string, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", errors.New("recording: session already stopped")
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	_ = s.src.Close()
	<-s.done

	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	readErr := s.readErr
	s.mu.Unlock()

	if cut {
		s.log.Debug("recording session cut", "discarded_samples", len(frames))
		return "", nil
	}
	if readErr != nil {
		return "", fmt.Errorf("recording: capture aborted: %w", readErr)
	}
	if len(frames) == 0 {
		return "", nil
	}

	path := filepath.Join(s.dir, artifactName(time.Now()))
	if err := audio.WriteWAV(path, frames, s.sampleRate); err != nil {
		return "", fmt.Errorf("recording: write artifact: %w", err)
	}

	s.log.Debug("recording artifact written",
		"path", path,
		"samples", len(frames),
		"duration", time.Duration(float64(len(frames))/float64(s.sampleRate)*float64(time.Second)))
	return path, nil
}

// artifactName hashes a timestamped filename so concurrent sessions and
// repeated captures never collide.
func artifactName(ts time.Time) string {
	seed := fmt.Sprintf("recording_%d.wav", ts.UnixNano())
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:]) + ".wav"
}
