package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLevel(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	Setup(Options{Level: "debug"})
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %v", log.GetLevel())
	}

	Setup(Options{Level: "nonsense"})
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected fallback to info, got %v", log.GetLevel())
	}
}

func TestSetupFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "safetrack.log")
	Setup(Options{Level: "info", File: path})
	log.Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output in file")
	}
}
