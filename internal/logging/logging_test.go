package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_Level(t *testing.T) {
	if got := New("prod", "debug", "test").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("level = %s", got)
	}
	if got := New("prod", "nonsense", "test").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("bad level must fall back to info, got %s", got)
	}
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	log := New("prod", "info", "api-server", WithFile(path, 1, 1))

	log.Info().Str("appointment_id", "a1").Msg("booked")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(b)
	if !strings.Contains(line, `"service":"api-server"`) || !strings.Contains(line, `"appointment_id":"a1"`) {
		t.Fatalf("log line = %s", line)
	}
}
