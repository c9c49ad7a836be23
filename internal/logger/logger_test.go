package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("epoch done", "epoch", 3)

	output := buf.String()
	if !strings.Contains(output, "epoch done") {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"epoch":3`) {
		t.Fatalf("expected epoch attribute in JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn level, got: %s", buf.String())
	}
	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug).WithGroup("train").With("run", "abc")
	log.Debug("batch", "cost", 1.5, "note", "two words")

	output := buf.String()
	for _, part := range []string{"DEBUG", "batch", "train.run=abc", "train.cost=1.5",
		`train.note="two words"`} {
		if !strings.Contains(output, part) {
			t.Errorf("expected %q in output, got: %s", part, output)
		}
	}
	if strings.Count(output, "\n") != 1 {
		t.Errorf("expected a single line, got: %q", output)
	}
}

func TestContext(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("context logger not used, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, expected := range cases {
		actual, err := ParseLevel(name)
		if err != nil {
			t.Errorf("%q: %v", name, err)
		} else if actual != expected {
			t.Errorf("%q: expected %v but got %v", name, expected, actual)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestForFile(t *testing.T) {
	t.Parallel()
	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Fatal("regular file should not be a terminal")
	}
	log, err := ForFile(f, FormatAuto, slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("to file")
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{") {
		t.Errorf("expected JSON for a non-terminal, got: %s", data)
	}
	if _, err := ForFile(f, "xml", slog.LevelInfo); err == nil {
		t.Error("expected error for unknown format")
	}
}
