package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown", "component", "pipeline")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "component=pipeline") {
		t.Fatalf("unexpected output: %q", out)
	}

	buf.Reset()
	NewWithWriter(&buf, "nonsense").Debug("debug line")
	if buf.Len() != 0 {
		t.Fatalf("unknown level must default to info")
	}
}
