// Log rotation tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "shepherd.log")

	writer, err := NewRotatingFileWriter(RotationConfig{
		Filename:   logFile,
		MaxSize:    1,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("failed to create rotating writer: %v", err)
	}
	defer writer.Close()

	msg := "test log message\n"
	n, err := writer.Write([]byte(msg))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != len(msg) {
		t.Errorf("expected %d bytes written, got %d", len(msg), n)
	}
	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("log file not created: %v", err)
	}
	if writer.CurrentSize() != int64(len(msg)) {
		t.Errorf("expected size %d, got %d", len(msg), writer.CurrentSize())
	}
}

func TestRotatingFileWriterRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "shepherd.log")

	writer, err := NewRotatingFileWriter(RotationConfig{
		Filename:   logFile,
		MaxSize:    1,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("failed to create rotating writer: %v", err)
	}

	if _, err := writer.Write([]byte("before rotation\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Force the next write over the limit
	writer.mu.Lock()
	writer.currentSize = writer.maxSize
	writer.mu.Unlock()

	if _, err := writer.Write([]byte("after rotation\n")); err != nil {
		t.Fatalf("write after rotation failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	rotated := 0
	for _, e := range entries {
		if isRotatedFile(e.Name(), "shepherd", ".log") {
			rotated++
		}
	}
	if rotated != 1 {
		t.Errorf("expected one rotated file, found %d", rotated)
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(content) != "after rotation\n" {
		t.Errorf("fresh file content = %q", content)
	}
}

func TestRotatingFileWriterClosed(t *testing.T) {
	writer, err := NewRotatingFileWriter(RotationConfig{Filename: filepath.Join(t.TempDir(), "x.log")})
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	writer.Close()
	if _, err := writer.Write([]byte("late\n")); err == nil {
		t.Error("expected error writing after close")
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestIsRotatedFile(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		ext      string
		expected bool
	}{
		{"shepherd.20260121-153000.log", "shepherd", ".log", true},
		{"shepherd.20260121-153000.log.gz", "shepherd", ".log", true},
		{"shepherd.log", "shepherd", ".log", false},
		{"shepherd.backup.log", "shepherd", ".log", false},
		{"other.20260121-153000.log", "shepherd", ".log", false},
	}

	for _, tt := range tests {
		result := isRotatedFile(tt.name, tt.prefix, tt.ext)
		if result != tt.expected {
			t.Errorf("isRotatedFile(%q, %q, %q) = %v, expected %v",
				tt.name, tt.prefix, tt.ext, result, tt.expected)
		}
	}
}

func TestRotationConfigDefaults(t *testing.T) {
	writer, err := NewRotatingFileWriter(RotationConfig{
		Filename: filepath.Join(t.TempDir(), "shepherd.log"),
	})
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer writer.Close()

	if writer.maxSize != 10*1024*1024 {
		t.Errorf("expected maxSize 10MB, got %d", writer.maxSize)
	}
	if writer.maxBackups != 5 {
		t.Errorf("expected maxBackups 5, got %d", writer.maxBackups)
	}
}

func TestRotationConfigEmptyFilename(t *testing.T) {
	if _, err := NewRotatingFileWriter(RotationConfig{}); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestSetupMirrorsToFile(t *testing.T) {
	t.Setenv("SHEPHERD_LOG_LEVEL", "")
	logFile := filepath.Join(t.TempDir(), "shepherd.log")
	var console bytes.Buffer

	logger, closer, err := Setup(Options{
		Level:  DEBUG,
		Stderr: &console,
		File:   RotationConfig{Filename: logFile},
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer SetDefaultLogger(nil)

	logger.Debug("mirrored line")
	GetLogger("link").Info("component line")
	closer.Close()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	for _, want := range []string{"mirrored line", "link: component line"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("log file missing %q: %s", want, content)
		}
		if !strings.Contains(console.String(), want) {
			t.Errorf("console missing %q: %s", want, console.String())
		}
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Error("file output must not carry color codes")
	}
}
