package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "<not set>"},
		{"short", "***"},
		{"12345678", "***"},
		{"supersecretpassword", "su...rd"},
	}
	for _, c := range cases {
		if got := MaskSecret(c.in); got != c.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsErrorLineMatchesBothFormatters(t *testing.T) {
	text := []byte(`time="2026-08-30T10:00:00Z" level=error msg="boom"`)
	if !isErrorLine(text) {
		t.Error("text formatter error line not detected")
	}
	json := []byte(`{"level":"error","msg":"boom","time":"2026-08-30T10:00:00Z"}`)
	if !isErrorLine(json) {
		t.Error("JSON formatter error line not detected")
	}
	info := []byte(`time="2026-08-30T10:00:00Z" level=info msg="ok"`)
	if isErrorLine(info) {
		t.Error("info line misrouted to stderr")
	}
}

func TestConfigureLogger(t *testing.T) {
	ConfigureLogger("debug", "json")
	if Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %v", Logger.GetLevel())
	}
	if _, ok := Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("Expected JSON formatter")
	}

	ConfigureLogger("bogus", "text")
	if Logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected fallback to info level, got %v", Logger.GetLevel())
	}
}
