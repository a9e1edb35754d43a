// Package listen runs the continuous microphone loop: it pumps the low-rate
// capture stream into a streaming recognizer session and forwards committed
// transcripts to the dialogue machine.
//
// The loop is resilient by construction. A device read failure or a dead
// recognizer session tears both down and reopens them after a backoff; the
// listener never stops silently while its context is alive.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/auricvoice/auric/pkg/audio"
	"github.com/auricvoice/auric/pkg/provider/stt"
)

const (
	// DefaultSampleRate is the continuous recognition stream rate.
	DefaultSampleRate = 16000

	// DefaultFrameSize is the capture frame length in samples.
	DefaultFrameSize = 1024

	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// TextSink receives every final transcript the recognizer commits.
// dialogue.Machine.Recognized satisfies it.
type TextSink func(text string)

// Option is a functional option for configuring a Listener.
type Option func(*Listener)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) { ln.log = l }
}

// WithSampleRate overrides the capture and recognition sample rate.
func WithSampleRate(rate int) Option {
	return func(ln *Listener) { ln.sampleRate = rate }
}

// WithFrameSize overrides the capture frame length.
func WithFrameSize(n int) Option {
	return func(ln *Listener) { ln.frameSize = n }
}

// WithLanguage sets the recognition language tag. Empty lets the backend
// auto-detect.
func WithLanguage(tag string) Option {
	return func(ln *Listener) { ln.language = tag }
}

// WithNoiseGate drops capture frames whose RMS level is below threshold, so
// room noise never reaches the recognizer. Zero disables the gate.
func WithNoiseGate(threshold float64) Option {
	return func(ln *Listener) { ln.noiseGate = threshold }
}

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(ln *Listener) {
		if initial > 0 {
			ln.initialBackoff = initial
		}
		if max > 0 {
			ln.maxBackoff = max
		}
	}
}

// Listener owns the continuous capture stream and its recognizer session.
type Listener struct {
	provider stt.Provider
	source   audio.SourceFactory
	sink     TextSink
	log      *slog.Logger

	sampleRate     int
	frameSize      int
	language       string
	noiseGate      float64
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New builds a Listener that feeds finals from provider into sink, reading
// audio from sources opened by factory.
func New(provider stt.Provider, factory audio.SourceFactory, sink TextSink, opts ...Option) *Listener {
	ln := &Listener{
		provider:       provider,
		source:         factory,
		sink:           sink,
		log:            slog.Default(),
		sampleRate:     DefaultSampleRate,
		frameSize:      DefaultFrameSize,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, o := range opts {
		o(ln)
	}
	return ln
}

// Run pumps audio until ctx is cancelled. Device and session failures are
// retried with exponential backoff; Run only returns the context's error.
func (ln *Listener) Run(ctx context.Context) error {
	backoff := ln.initialBackoff
	for {
		err := ln.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ln.log.Warn("listening session ended, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > ln.maxBackoff {
			backoff = ln.maxBackoff
		}
	}
}

// session runs one capture stream against one recognizer session and returns
// when either side fails or ctx is cancelled.
func (ln *Listener) session(ctx context.Context) error {
	handle, err := ln.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: ln.sampleRate,
		Channels:   1,
		Language:   ln.language,
	})
	if err != nil {
		return fmt.Errorf("listen: open recognition session: %w", err)
	}
	defer handle.Close()

	src, err := ln.source(ln.sampleRate, ln.frameSize)
	if err != nil {
		return fmt.Errorf("listen: open capture source: %w", err)
	}
	defer src.Close()

	ln.log.Info("listening", "sample_rate", ln.sampleRate, "frame_size", ln.frameSize)

	// Pump device frames into the session from a dedicated goroutine so the
	// blocking ReadFrame never starves the transcript drain below.
	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- ln.pump(ctx, src, handle)
	}()

	finals := handle.Finals()
	partials := handle.Partials()
	for {
		select {
		case <-ctx.Done():
			src.Close()
			handle.Close()
			<-pumpErr
			return ctx.Err()
		case err := <-pumpErr:
			return err
		case t, ok := <-finals:
			if !ok {
				src.Close()
				<-pumpErr
				return errors.New("listen: recognition session closed")
			}
			if t.Text != "" {
				ln.log.Debug("recognized", "text", t.Text, "confidence", t.Confidence)
				ln.sink(t.Text)
			}
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			ln.log.Debug("partial", "text", t.Text)
		}
	}
}

// pump reads frames until the source fails or ctx is cancelled.
func (ln *Listener) pump(ctx context.Context, src audio.Source, handle stt.SessionHandle) error {
	for {
		frame, err := src.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("listen: read capture frame: %w", err)
		}
		if ln.noiseGate > 0 && audio.RMS(frame) < ln.noiseGate {
			continue
		}
		if err := handle.SendAudio(audio.Float32ToPCM16(frame)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("listen: send audio: %w", err)
		}
	}
}
