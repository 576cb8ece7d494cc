// Package common provides centralized logging infrastructure and Docker
// API helpers shared by every stackpilot component.
//
// The logging system is built on logrus with custom output handling that
// routes error-level messages to stderr while sending other log levels to
// stdout, enabling proper stream separation for containerized and scripted
// environments. Operators capture stderr for alerting and stdout for the
// regular deployment transcript.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log output to stdout or stderr based on
// the entry's level. Error-level messages go to stderr so shell pipelines
// and orchestration platforms can treat them with higher priority;
// everything else goes to stdout.
//
// The splitter operates on the final formatted output and therefore works
// with both the text and JSON logrus formatters.
type OutputSplitter struct{}

// The text formatter emits level=error, the JSON formatter "level":"error".
var errorMarkers = [][]byte{
	[]byte("level=error"),
	[]byte(`"level":"error"`),
}

func isErrorLine(p []byte) bool {
	for _, m := range errorMarkers {
		if bytes.Contains(p, m) {
			return true
		}
	}
	return false
}

// Write implements io.Writer for the OutputSplitter.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if isErrorLine(p) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger instance shared by all stackpilot packages.
// It is pre-configured with the OutputSplitter; the CLI layer adjusts level
// and format from configuration at startup.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// ConfigureLogger applies a log level and format ("text" or "json") to the
// global logger. Unknown levels fall back to info.
func ConfigureLogger(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// MaskSecret masks sensitive strings for safe logging.
// Shows first 2 and last 2 characters for strings longer than 8 chars,
// "***" for short strings and "<not set>" for empty strings.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}
