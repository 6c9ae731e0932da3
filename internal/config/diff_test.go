package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/meetscribe/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)
	d := config.Diff(cfg, mustLoad(t, sampleYAML))
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_HotReloadableFields(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, sampleYAML)
	new := mustLoad(t, sampleYAML)
	new.Server.LogLevel = config.LogWarn
	new.Capture.Language = "en"
	new.Capture.Keywords = append(new.Capture.Keywords, config.KeywordConfig{Keyword: "Kubernetes", Boost: 2})

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn {
		t.Errorf("log level: %+v", d)
	}
	if !d.LanguageChanged || d.NewLanguage != "en" {
		t.Errorf("language: %+v", d)
	}
	if !d.KeywordsChanged || len(d.NewKeywords) != 2 {
		t.Errorf("keywords: %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("hot-reloadable edits must not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, sampleYAML)
	new := mustLoad(t, sampleYAML)
	new.Server.ListenAddr = ":7070"
	new.Providers.STT.Model = "base"
	new.Capture.WindowSize = 4096
	new.Storage.PostgresDSN = ""

	d := config.Diff(old, new)
	want := []string{"server", "providers", "capture", "storage"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.LanguageChanged || d.KeywordsChanged {
		t.Errorf("unexpected hot-reload flags: %+v", d)
	}
}
