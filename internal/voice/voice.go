// Package voice turns text into audible speech.
//
// Manager synthesizes a reply through a tts.Provider, decodes the WAV it
// returns, and plays it through a Sink (the default sink wraps the system
// speaker). While its own audio is playing the manager self-identifies as
// the speech source, which the dialogue machine uses to tell echo from
// barge-in. Playback is interruptible at any time.
package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	beepwav "github.com/faiface/beep/wav"

	"github.com/auricvoice/auric/internal/observe"
	"github.com/auricvoice/auric/pkg/provider/tts"
)

// resampleQuality is the beep resampler quality for rate-mismatched clips.
const resampleQuality = 4

// Sink plays decoded audio. Implementations must call done exactly once per
// Play, when the stream finishes or is cleared.
type Sink interface {
	// Start prepares the output device for the given sample rate. Called
	// before the first Play; subsequent streams are resampled to this rate.
	Start(sampleRate beep.SampleRate) error

	// Play schedules the stream and returns immediately.
	Play(stream beep.Streamer, done func())

	// Clear drops everything queued or playing.
	Clear()
}

// SpeakerSink is the default Sink backed by faiface/beep's speaker.
type SpeakerSink struct {
	once    sync.Once
	initErr error
}

var _ Sink = (*SpeakerSink)(nil)

func (s *SpeakerSink) Start(sampleRate beep.SampleRate) error {
	s.once.Do(func() {
		s.initErr = speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond))
	})
	return s.initErr
}

func (s *SpeakerSink) Play(stream beep.Streamer, done func()) {
	speaker.Play(beep.Seq(stream, beep.Callback(done)))
}

func (s *SpeakerSink) Clear() {
	speaker.Clear()
}

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithVoice selects the synthesis voice.
func WithVoice(v tts.VoiceProfile) Option {
	return func(m *Manager) { m.voice = v }
}

// WithSink replaces the default speaker sink.
func WithSink(s Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithNotify registers callbacks fired when playback starts and when it ends
// on its own. An interrupted playback fires neither started-after nor ended.
func WithNotify(started, ended func()) Option {
	return func(m *Manager) {
		m.onStart = started
		m.onEnd = ended
	}
}

// Manager is the speech output side of the assistant. Safe for concurrent
// use.
type Manager struct {
	tts     tts.Provider
	voice   tts.VoiceProfile
	sink    Sink
	log     *slog.Logger
	metrics *observe.Metrics

	onStart func()
	onEnd   func()

	mu       sync.Mutex
	speaking bool
	outRate  beep.SampleRate
}

// New creates a Manager over a synthesis provider.
func New(provider tts.Provider, opts ...Option) *Manager {
	m := &Manager{
		tts:     provider,
		sink:    &SpeakerSink{},
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Speak synthesizes text and starts playback, returning once the clip is
// scheduled. Empty or whitespace-only text is a no-op.
func (m *Manager) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	start := time.Now()
	audio, err := m.tts.Synthesize(ctx, text, m.voice)
	m.metrics.SynthesizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.metrics.RecordProviderError(ctx, m.providerLabel(), "tts")
		return fmt.Errorf("voice: synthesize: %w", err)
	}

	stream, format, err := beepwav.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err != nil {
		return fmt.Errorf("voice: decode clip: %w", err)
	}

	m.mu.Lock()
	if m.outRate == 0 {
		if err := m.sink.Start(format.SampleRate); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("voice: open output device: %w", err)
		}
		m.outRate = format.SampleRate
	}
	var playable beep.Streamer = stream
	if format.SampleRate != m.outRate {
		playable = beep.Resample(resampleQuality, format.SampleRate, m.outRate, stream)
	}
	m.speaking = true
	m.mu.Unlock()

	if m.onStart != nil {
		m.onStart()
	}

	m.log.Debug("speaking", "chars", len(text))
	m.sink.Play(playable, func() {
		m.mu.Lock()
		wasSpeaking := m.speaking
		m.speaking = false
		m.mu.Unlock()
		if wasSpeaking && m.onEnd != nil {
			m.onEnd()
		}
	})
	return nil
}

// providerLabel names the synthesis backend for error metrics.
func (m *Manager) providerLabel() string {
	if m.voice.Provider != "" {
		return m.voice.Provider
	}
	return "tts"
}

// SelfIdentified reports whether the audio currently playing is the
// assistant's own voice.
func (m *Manager) SelfIdentified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// Interrupt stops playback immediately without firing the ended callback;
// the caller interrupting already knows playback is over.
func (m *Manager) Interrupt() {
	m.mu.Lock()
	wasSpeaking := m.speaking
	m.speaking = false
	m.mu.Unlock()

	if wasSpeaking {
		m.sink.Clear()
		m.log.Debug("playback interrupted")
	}
}
