package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	lgberrors "github.com/meggersntexasv8/LightGBM/pkg/errors"
)

func TestZerologOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug).With(ComponentKey, "booster")

	logger.Info("model saved", PathKey, "/tmp/model.txt", IterationKey, 10)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "booster" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["path"] != "/tmp/model.txt" {
		t.Errorf("path = %v", entry["path"])
	}
	if entry["message"] != "model saved" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestZerologLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn should pass at warn level")
	}
}

func TestZerologErrorDetail(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Error("construction failed", lgberrors.NewMissingLabelError("file"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := entry["error"]; !ok {
		t.Error("error field missing")
	}
	detail, ok := entry["error_detail"].(map[string]interface{})
	if !ok {
		t.Fatalf("error_detail missing: %v", entry)
	}
	if detail["type"] != "MissingLabelError" {
		t.Errorf("error_detail.type = %v", detail["type"])
	}
}

func TestCaptureLoggerSharesSink(t *testing.T) {
	capture := NewCaptureLogger()
	derived := capture.With(ComponentKey, "train")
	derived.Info("iteration done", IterationKey, 3)
	capture.Warn("direct")

	entries := capture.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Message != "iteration done" || entries[0].Level != LevelInfo {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	found := false
	for i := 0; i+1 < len(entries[0].Fields); i += 2 {
		if entries[0].Fields[i] == ComponentKey && entries[0].Fields[i+1] == "train" {
			found = true
		}
	}
	if !found {
		t.Error("derived logger fields missing from captured entry")
	}
}

func TestDefaultLoggerSwap(t *testing.T) {
	old := GetLogger()
	defer SetLogger(old)

	capture := NewCaptureLogger()
	SetLogger(capture)
	GetLogger().Info("hello")

	if len(capture.Entries()) != 1 {
		t.Error("default logger swap did not take effect")
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelDebug:  "DEBUG",
		LevelInfo:   "INFO",
		LevelWarn:   "WARN",
		LevelError:  "ERROR",
		LevelSilent: "SILENT",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}
