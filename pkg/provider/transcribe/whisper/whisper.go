// Package whisper provides an offline transcription provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all calls; each
// TranscribeFile call creates its own whisper context, so concurrent
// transcriptions do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/wav"

	"github.com/auricvoice/auric/pkg/provider/transcribe"
)

// whisperSampleRate is the only sample rate whisper.cpp accepts. Input audio
// at other rates is resampled before inference.
const whisperSampleRate = 16000

var _ transcribe.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage forces the source language (e.g., "en", "de"). Defaults to
// "auto", letting whisper detect the language from the audio.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements transcribe.Provider using a locally loaded whisper.cpp
// model. Safe for concurrent use; the model is shared, contexts are per-call.
type Provider struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{
		model:    model,
		language: "auto",
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// TranscribeFile implements transcribe.Provider. It decodes the WAV file at
// path to 16 kHz mono float32 samples, runs inference with a fresh whisper
// context, and returns the concatenated segment text.
//
// Cancellation is checked before inference starts and again before segment
// collection; whisper.cpp itself cannot be interrupted mid-inference.
func (p *Provider) TranscribeFile(ctx context.Context, path string, task transcribe.Task) (transcribe.Result, error) {
	if !task.IsValid() {
		return transcribe.Result{}, fmt.Errorf("whisper: invalid task %q", task)
	}
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: %w", err)
	}

	samples, err := decodeWAV(path)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: decode %q: %w", path, err)
	}
	if len(samples) == 0 {
		return transcribe.Result{}, fmt.Errorf("whisper: %q contains no audio", path)
	}

	// Contexts are cheap but not thread-safe; one per call.
	wctx, err := p.model.NewContext()
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: set language %q: %w", p.language, err)
	}
	wctx.SetTranslate(task == transcribe.TaskTranslate)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transcribe.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if t := strings.TrimSpace(segment.Text); t != "" {
			parts = append(parts, t)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return transcribe.Result{
		Text:     strings.Join(parts, " "),
		Language: lang,
	}, nil
}

// decodeWAV reads a PCM WAV file and returns 16 kHz mono float32 samples in
// [-1, 1], downmixing and resampling as needed.
func decodeWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, errors.New("empty wav file")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		s := float64(v) * scale
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = float32(s)
	}

	channels := 1
	rate := whisperSampleRate
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	if channels > 1 {
		samples = downmix(samples, channels)
	}
	if rate != whisperSampleRate {
		samples = resample(samples, rate, whisperSampleRate)
	}
	return samples, nil
}

// downmix averages interleaved channels into mono.
func downmix(in []float32, channels int) []float32 {
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// resample performs linear-interpolation resampling. Adequate for speech fed
// to whisper; a polyphase filter would be overkill here.
func resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}
	ratio := float64(toRate) / float64(fromRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
