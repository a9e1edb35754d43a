package config_test

import (
	"errors"
	"testing"

	"github.com/auricvoice/auric/internal/config"
	"github.com/auricvoice/auric/pkg/provider/llm"
	llmmock "github.com/auricvoice/auric/pkg/provider/llm/mock"
	"github.com/auricvoice/auric/pkg/provider/tts"
	ttsmock "github.com/auricvoice/auric/pkg/provider/tts/mock"
)

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("mock", func(entry config.ProviderEntry) (llm.Provider, error) {
		gotEntry = entry
		return &llmmock.Provider{}, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
	if gotEntry.Model != "test-model" {
		t.Errorf("factory entry = %+v", gotEntry)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first := &ttsmock.Provider{}
	second := &ttsmock.Provider{}
	reg.RegisterTTS("coqui", func(config.ProviderEntry) (tts.Provider, error) { return first, nil })
	reg.RegisterTTS("coqui", func(config.ProviderEntry) (tts.Provider, error) { return second, nil })

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"})
	if err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	if p != second {
		t.Error("later registration did not overwrite the earlier one")
	}
}
