package tdslog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ha1tch/tdsdriver/tdslog"
)

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := tdslog.Config{DefaultLevel: tdslog.LevelWarn, Output: &buf, Format: tdslog.FormatText}
	l := tdslog.New(cfg)

	l.Connection().Debug("should not appear")
	l.Connection().Info("also should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below the configured level, got %q", buf.String())
	}

	l.Connection().Warn("this should appear")
	if !strings.Contains(buf.String(), "this should appear") {
		t.Fatalf("expected WARN message in output, got %q", buf.String())
	}
}

func TestLoggerPerCategoryLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := tdslog.Config{
		DefaultLevel:   tdslog.LevelError,
		CategoryLevels: map[tdslog.Category]tdslog.Level{tdslog.CategoryProtocol: tdslog.LevelDebug},
		Output:         &buf,
	}
	l := tdslog.New(cfg)

	l.Connection().Info("filtered by default level")
	l.Protocol().Debug("allowed by protocol override")

	out := buf.String()
	if strings.Contains(out, "filtered by default level") {
		t.Fatal("connection INFO should have been filtered at the default ERROR level")
	}
	if !strings.Contains(out, "allowed by protocol override") {
		t.Fatal("protocol DEBUG should have passed its category-level override")
	}
}

func TestLoggerTextFormatIncludesFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	l := tdslog.New(tdslog.Config{DefaultLevel: tdslog.LevelDebug, Output: &buf})

	l.Transaction().Error("commit failed", errNotInTran{}, "descriptor", "0102030405060708")

	out := buf.String()
	if !strings.Contains(out, "[transaction]") {
		t.Fatalf("missing category tag: %q", out)
	}
	if !strings.Contains(out, "descriptor=0102030405060708") {
		t.Fatalf("missing field: %q", out)
	}
	if !strings.Contains(out, `error="not in transaction"`) {
		t.Fatalf("missing error text: %q", out)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := tdslog.New(tdslog.Config{DefaultLevel: tdslog.LevelInfo, Output: &buf, Format: tdslog.FormatJSON})

	l.Connection().Info("logged in")

	out := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"category":"connection"`) {
		t.Fatalf("missing category field: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]tdslog.Level{
		"debug": tdslog.LevelDebug,
		"INFO":  tdslog.LevelInfo,
		"warn":  tdslog.LevelWarn,
		"ERROR": tdslog.LevelError,
		"off":   tdslog.LevelOff,
	}
	for s, want := range cases {
		got, err := tdslog.ParseLevel(s)
		if err != nil {
			t.Errorf("ParseLevel(%q): unexpected error %v", s, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", s, got, want)
		}
	}

	if _, err := tdslog.ParseLevel("bogus"); err == nil {
		t.Error("expected an error for an unknown level string")
	}
}

func TestSetLevelAffectsSubsequentLogs(t *testing.T) {
	var buf bytes.Buffer
	l := tdslog.New(tdslog.Config{DefaultLevel: tdslog.LevelInfo, Output: &buf})

	l.SetLevel(tdslog.CategoryConnection, tdslog.LevelOff)
	l.Connection().Warn("silenced")
	if buf.Len() != 0 {
		t.Fatalf("expected silence after SetLevel(..., LevelOff), got %q", buf.String())
	}
}

type errNotInTran struct{}

func (errNotInTran) Error() string { return "not in transaction" }
