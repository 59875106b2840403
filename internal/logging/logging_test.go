package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"defaults", Config{}, zapcore.InfoLevel, false},
		{"debug console", Config{Level: "debug", Format: "console"}, zapcore.DebugLevel, false},
		{"upper case level", Config{Level: "WARN", Format: "json"}, zapcore.WarnLevel, false},
		{"unknown level", Config{Level: "loud"}, zapcore.InfoLevel, false},
		{"unknown format", Config{Format: "xml"}, zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, atom, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if atom.Level() != tt.wantLevel {
				t.Errorf("level = %v, want %v", atom.Level(), tt.wantLevel)
			}
			if logger == nil {
				t.Fatal("New() returned a nil logger")
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smbpoll.log")

	logger, atom, err := New(Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("poll finished")

	if err := SetLevel(atom, "debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	logger.Debug("now visible")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)

	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(out, "poll finished") || !strings.Contains(out, "now visible") {
		t.Errorf("log output = %q", out)
	}
}

func TestSetLevel_Invalid(t *testing.T) {
	_, atom, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := SetLevel(atom, "loud"); err == nil {
		t.Error("SetLevel() accepted an unknown level")
	}
	if atom.Level() != zapcore.InfoLevel {
		t.Errorf("level = %v after a rejected change", atom.Level())
	}
}
