package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{"info console", Config{Level: "info", Format: "console"}, zerolog.InfoLevel, false},
		{"upper-case level", Config{Level: "DEBUG", Format: "json", Output: "stdout"}, zerolog.DebugLevel, false},
		{"disabled", Config{Level: "disabled", Format: "json"}, zerolog.Disabled, false},
		{"bad level", Config{Level: "loud"}, zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardpulse.log")
	log, err := New(Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info().Str("query", "Joe Burrow").Msg("search started")
	log.Debug().Msg("filtered out")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(b, &line); err != nil {
		t.Fatalf("want exactly one JSON line, got %q: %v", b, err)
	}
	if line["message"] != "search started" || line["query"] != "Joe Burrow" {
		t.Errorf("log line = %v", line)
	}
}
