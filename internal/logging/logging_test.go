package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSink_StderrAndFile(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "attend.log")

	sink := Open(Options{File: path, Stderr: &stderr})
	sink.Logger("sync").Printf("pushed %d records", 3)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if !strings.Contains(stderr.String(), "[sync] ") || !strings.Contains(stderr.String(), "pushed 3 records") {
		t.Errorf("stderr = %q", stderr.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "pushed 3 records") {
		t.Errorf("log file = %q", data)
	}
}

func TestSink_Quiet(t *testing.T) {
	var stderr bytes.Buffer
	sink := Open(Options{Quiet: true, Stderr: &stderr})
	sink.Logger("driver").Println("hidden")
	if stderr.Len() != 0 {
		t.Errorf("quiet sink wrote %q", stderr.String())
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
