package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("json format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger, err := NewLogger(Options{Writer: &buf, Format: FormatJSON})
		if err != nil {
			t.Fatalf("NewLogger() error = %v", err)
		}
		logger.Warn("crawl stopped", "password", "secret")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("output is not JSON: %v: %s", err, buf.String())
		}
		if entry["msg"] != "crawl stopped" || entry["password"] != MaskValue {
			t.Errorf("entry = %v", entry)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() without file = %v", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		if _, err := NewLogger(Options{Format: "xml"}); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("err = %v, want ErrUnknownFormat", err)
		}
	})

	t.Run("file sink gets debug records", func(t *testing.T) {
		t.Parallel()

		var console bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "sitemapper.log")
		logger, err := NewLogger(Options{Writer: &console, File: path})
		if err != nil {
			t.Fatalf("NewLogger() error = %v", err)
		}
		logger.Debug("fetched", "url", "http://example.com/", "cookie", "a=b")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		if console.Len() != 0 {
			t.Errorf("console should not show debug when not verbose: %s", console.String())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("log file not written: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"fetched"`) || strings.Contains(string(data), "a=b") {
			t.Errorf("file content = %s", data)
		}
	})
}

func TestNilLoggerClose(t *testing.T) {
	t.Parallel()

	var l *Logger
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
