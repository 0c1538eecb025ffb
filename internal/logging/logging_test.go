package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithSessionTagsEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	log := WithSession(base, "sess-42")
	log.Info().Msg("negotiating")
	log.Info().Msg("ready")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, `"session_id":"sess-42"`) {
			t.Errorf("line missing session id: %s", line)
		}
	}
}
