package coqui

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auricvoice/auric/pkg/provider/tts"
)

// ---- test helpers ----

// buildTestWAV constructs a minimal but valid RIFF/WAVE byte slice containing
// the supplied raw PCM samples with a standard 44-byte header.
func buildTestWAV(pcm []byte) []byte {
	fmtSize := uint32(16)
	dataSize := uint32(len(pcm))
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize)

	buf := make([]byte, 0, 12+8+fmtSize+8+dataSize)
	le := binary.LittleEndian

	putU32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	buf = append(buf, []byte("RIFF")...)
	putU32(fileSize)
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	putU32(fmtSize)
	putU16(1)     // PCM format
	putU16(1)     // mono
	putU32(22050) // sample rate
	putU32(44100) // byte rate
	putU16(2)     // block align
	putU16(16)    // bits per sample

	buf = append(buf, []byte("data")...)
	putU32(dataSize)
	buf = append(buf, pcm...)

	return buf
}

// ---- constructor tests ----

func TestNew_EmptyServerURL(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty serverURL")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	p, err := New("http://localhost:5002/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("expected trailing slash trimmed, got %q", p.serverURL)
	}
}

// ---- Synthesize tests ----

func TestSynthesize(t *testing.T) {
	wantWAV := buildTestWAV([]byte{1, 2, 3, 4})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("text"); got != "opening chrome" {
			t.Errorf("expected text param 'opening chrome', got %q", got)
		}
		if got := q.Get("speaker_id"); got != "p225" {
			t.Errorf("expected speaker_id 'p225', got %q", got)
		}
		if got := q.Get("language_id"); got != "en" {
			t.Errorf("expected language_id 'en', got %q", got)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wantWAV)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "opening chrome", tts.VoiceProfile{ID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != len(wantWAV) {
		t.Errorf("expected %d bytes, got %d", len(wantWAV), len(got))
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "   ", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestSynthesize_NotWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not audio"))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for non-WAV response")
	}
}

// ---- ListVoices tests ----

func TestListVoices_MultiSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != detailsEndpoint {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model_name":"vctk","language":"en","speakers":["p226","p225"]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}
	// Sorted output.
	if voices[0].ID != "p225" || voices[1].ID != "p226" {
		t.Errorf("expected sorted speakers [p225 p226], got [%s %s]", voices[0].ID, voices[1].ID)
	}
	if voices[0].Provider != "coqui" {
		t.Errorf("expected provider 'coqui', got %q", voices[0].Provider)
	}
}

func TestListVoices_SingleSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model_name":"tacotron2-DDC","language":"en"}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("expected 1 voice, got %d", len(voices))
	}
	if voices[0].ID != "tacotron2-DDC" {
		t.Errorf("expected model name as voice ID, got %q", voices[0].ID)
	}
}
