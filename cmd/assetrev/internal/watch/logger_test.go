package watch

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type errTest struct {
	msg string
}

func (e errTest) Error() string { return e.msg }

func TestLogger_Ready(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf})

	logger.Ready("/srv/site/public/assets/build", []string{"images", "styles"})

	output := buf.String()
	if !strings.Contains(output, "/srv/site/public/assets/build") {
		t.Errorf("expected path in output: %s", output)
	}
	if !strings.Contains(output, "images, styles") {
		t.Errorf("expected classes in output: %s", output)
	}
	if !strings.Contains(output, "assetrev: ready") {
		t.Errorf("expected 'ready' in output: %s", output)
	}
}

func TestLogger_Ready_NoClasses(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf})

	logger.Ready("/root", nil)

	if strings.Contains(buf.String(), "classes:") {
		t.Errorf("expected no classes line: %s", buf.String())
	}
}

func TestLogger_FileChanged_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, Verbose: true, NoColor: true})

	logger.FileChanged("css/app.css", ChangeAdded)

	output := buf.String()
	if !strings.Contains(output, "+ css/app.css") {
		t.Errorf("expected '+ css/app.css' in output: %s", output)
	}
}

func TestLogger_FileChanged_NotVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf})

	logger.FileChanged("css/app.css", ChangeAdded)

	if output := buf.String(); output != "" {
		t.Errorf("expected no output when not verbose, got: %s", output)
	}
}

func TestLogger_Building(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf})

	logger.Building([]string{"css/app.css"})
	if !strings.Contains(buf.String(), "css/app.css") {
		t.Errorf("expected path in output: %s", buf.String())
	}

	buf.Reset()
	logger.Building([]string{"a.css", "b.css", "c.css"})
	if !strings.Contains(buf.String(), "3 changes") {
		t.Errorf("expected change count in output: %s", buf.String())
	}
}

func TestLogger_Built(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, NoColor: true})

	logger.Built(BuildSummary{Added: 2, Updated: 1, Deleted: 1, Duration: 12 * time.Millisecond})

	output := buf.String()
	if !strings.Contains(output, "2 added, 1 updated, 1 deleted") {
		t.Errorf("expected summary in output: %s", output)
	}
	if strings.Contains(output, "failed") {
		t.Errorf("did not expect failures in output: %s", output)
	}

	buf.Reset()
	logger.Built(BuildSummary{Failed: 3})
	if !strings.Contains(buf.String(), "3 failed") {
		t.Errorf("expected failure count in output: %s", buf.String())
	}
}

func TestLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, NoColor: true})

	logger.Error(errTest{msg: "test error"})

	if output := buf.String(); !strings.Contains(output, "error: test error") {
		t.Errorf("expected error message in output: %s", output)
	}
}

func TestLogger_Shutdown(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf})

	logger.Built(BuildSummary{})
	logger.Built(BuildSummary{})
	logger.Error(errTest{msg: "oops"})

	logger.Shutdown()

	output := buf.String()
	if !strings.Contains(output, "2 builds, 1 errors") {
		t.Errorf("expected counts in output: %s", output)
	}
}

func TestLogger_Stats(t *testing.T) {
	logger := NewLogger(LoggerConfig{Writer: &bytes.Buffer{}})

	stats := logger.Stats()
	if stats.Builds != 0 || !stats.LastBuild.IsZero() {
		t.Errorf("expected fresh stats, got %+v", stats)
	}

	logger.Built(BuildSummary{})
	logger.Built(BuildSummary{})
	logger.Error(errTest{})

	stats = logger.Stats()
	if stats.Builds != 2 {
		t.Errorf("expected 2 builds, got %d", stats.Builds)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	if stats.LastBuild.IsZero() {
		t.Error("expected LastBuild to be set")
	}
}

func decodeEvent(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", buf.String(), err)
	}
	return event
}

func TestLogger_JSON_Ready(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, JSON: true})

	logger.Ready("/root", []string{"styles"})

	event := decodeEvent(t, &buf)
	if event["event"] != "ready" {
		t.Errorf("expected event=ready, got %v", event["event"])
	}
	if event["path"] != "/root" {
		t.Errorf("expected path=/root, got %v", event["path"])
	}
}

func TestLogger_JSON_FileChanged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, JSON: true})

	logger.FileChanged("js/app.js", ChangeModified)

	event := decodeEvent(t, &buf)
	if event["event"] != "file_changed" {
		t.Errorf("expected event=file_changed, got %v", event["event"])
	}
	if event["change"] != "~" {
		t.Errorf("expected change=~, got %v", event["change"])
	}
}

func TestLogger_JSON_Built(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, JSON: true})

	logger.Built(BuildSummary{Added: 4, Duration: 1500 * time.Millisecond})

	event := decodeEvent(t, &buf)
	if event["event"] != "built" {
		t.Errorf("expected event=built, got %v", event["event"])
	}
	if event["added"].(float64) != 4 {
		t.Errorf("expected added=4, got %v", event["added"])
	}
	if event["duration_ms"].(float64) != 1500 {
		t.Errorf("expected duration_ms=1500, got %v", event["duration_ms"])
	}
}

func TestLogger_JSON_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Writer: &buf, JSON: true})

	logger.Error(errTest{msg: "something failed"})

	event := decodeEvent(t, &buf)
	if event["event"] != "error" {
		t.Errorf("expected event=error, got %v", event["event"])
	}
	if event["error"] != "something failed" {
		t.Errorf("expected error message, got %v", event["error"])
	}
}
