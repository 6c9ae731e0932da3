package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are reported individually; everything else that changed is listed
// in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LanguageChanged bool
	NewLanguage     string

	KeywordsChanged bool
	NewKeywords     []KeywordConfig

	// RestartRequired names the top-level keys whose changes are ignored
	// until the process restarts.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.LanguageChanged && !d.KeywordsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Capture.Language != new.Capture.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Capture.Language
	}
	if !slices.Equal(old.Capture.Keywords, new.Capture.Keywords) {
		d.KeywordsChanged = true
		d.NewKeywords = slices.Clone(new.Capture.Keywords)
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldCapture, newCapture := old.Capture, new.Capture
	oldCapture.Language, newCapture.Language = "", ""
	oldCapture.Keywords, newCapture.Keywords = nil, nil

	for _, f := range []struct {
		key      string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"auth", old.Auth, new.Auth},
		{"providers", old.Providers, new.Providers},
		{"capture", oldCapture, newCapture},
		{"storage", old.Storage, new.Storage},
	} {
		if !reflect.DeepEqual(f.old, f.new) {
			d.RestartRequired = append(d.RestartRequired, f.key)
		}
	}

	return d
}
