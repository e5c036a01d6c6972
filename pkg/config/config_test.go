// Configuration parsing tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadString(t *testing.T) {
	data := `
# shepherd settings
[serial]
port: /dev/ttyACM0
baud = 115200   ; inline comment
candidates: /dev/ttyUSB*, /dev/ttyACM*

[print]
lift_travel: 3.5
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if !cfg.HasSection("serial") || !cfg.HasSection("print") {
		t.Fatalf("expected serial and print sections, got %v", cfg.GetSectionNames())
	}
	if cfg.HasSection("nonexistent") {
		t.Error("expected [nonexistent] section to not exist")
	}

	serial, err := cfg.GetSection("serial")
	if err != nil {
		t.Fatalf("GetSection(serial) failed: %v", err)
	}
	if serial.GetName() != "serial" {
		t.Errorf("expected name 'serial', got '%s'", serial.GetName())
	}

	port, err := serial.Get("port")
	if err != nil || port != "/dev/ttyACM0" {
		t.Errorf("Get(port) = %q, %v", port, err)
	}
	baud, err := serial.GetInt("baud")
	if err != nil || baud != 115200 {
		t.Errorf("GetInt(baud) = %d, %v", baud, err)
	}
	list, err := serial.GetList("candidates", ",")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if len(list) != 2 || list[0] != "/dev/ttyUSB*" || list[1] != "/dev/ttyACM*" {
		t.Errorf("unexpected list values: %v", list)
	}
}

func TestLoadStringErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty header", "[]\nkey: v\n"},
		{"option before section", "key: v\n"},
		{"malformed line", "[serial]\njust words\n"},
		{"include without file", "[include other.cfg]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadString(tt.data); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoadWithInclude(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "shepherd.cfg")
	extra := filepath.Join(dir, "conf.d", "monitor.cfg")

	if err := os.MkdirAll(filepath.Dir(extra), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(main, []byte("[serial]\nbaud: 115200\n[include conf.d/*.cfg]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(extra, []byte("[monitor]\naddress: 127.0.0.1:7125\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	mon, err := cfg.GetSection("monitor")
	if err != nil {
		t.Fatalf("included section missing: %v", err)
	}
	if addr, _ := mon.Get("address"); addr != "127.0.0.1:7125" {
		t.Errorf("expected included address, got %q", addr)
	}
}

func TestLoadRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.cfg")
	if err := os.WriteFile(path, []byte("[include loop.cfg]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "recursive") {
		t.Errorf("expected recursive include error, got %v", err)
	}
}

func TestAccessTracking(t *testing.T) {
	data := `
[serial]
port: /dev/ttyACM0
baud: 250000
bad_option: 1

[unused_section]
key: value
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	sec, _ := cfg.GetSection("serial")
	sec.Get("port")
	sec.GetInt("baud")
	sec.Get("not_present", "fallback")

	if unused := sec.GetUnusedOptions(); len(unused) != 1 || unused[0] != "bad_option" {
		t.Errorf("unexpected unused options: %v", unused)
	}
	if unused := cfg.GetUnusedSections(); len(unused) != 1 || unused[0] != "unused_section" {
		t.Errorf("unexpected unused sections: %v", unused)
	}

	report := cfg.Unused()
	if len(report) != 2 {
		t.Fatalf("expected 2 report entries, got %v", report)
	}
	if !strings.Contains(report[0], "[unused_section]") || !strings.Contains(report[1], "bad_option") {
		t.Errorf("unexpected report: %v", report)
	}
	if err := cfg.CheckUnusedOptions(); err == nil {
		t.Error("expected CheckUnusedOptions to fail")
	}
}

func TestSetOverridesFileValue(t *testing.T) {
	cfg, err := LoadString("[serial]\nbaud: 115200\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	cfg.Set("serial", "Baud", "57600")
	cfg.Set("monitor", "address", ":8080")

	sec, _ := cfg.GetSection("serial")
	if v, _ := sec.GetInt("baud"); v != 57600 {
		t.Errorf("expected override 57600, got %d", v)
	}
	if !cfg.HasSection("monitor") {
		t.Error("expected Set to create the section")
	}
}

func TestGetChoice(t *testing.T) {
	cfg, _ := LoadString("[serial]\nbackend: TARM\n")
	sec, _ := cfg.GetSection("serial")

	backend, err := sec.GetChoice("backend", []string{"native", "tarm"})
	if err != nil {
		t.Fatalf("GetChoice failed: %v", err)
	}
	if backend != "tarm" {
		t.Errorf("expected canonical 'tarm', got '%s'", backend)
	}

	if _, err := sec.GetChoice("backend", []string{"native"}); err == nil {
		t.Error("expected error for invalid choice")
	}
}

func TestBoundsChecking(t *testing.T) {
	cfg, _ := LoadString("[test]\nvalue: 50\n")
	sec, _ := cfg.GetSection("test")

	tests := []struct {
		name    string
		bounds  FloatBounds
		wantErr bool
	}{
		{"within", FloatBounds{MinVal: ptr(0), MaxVal: ptr(100)}, false},
		{"below minimum", Min(60), true},
		{"above maximum", FloatBounds{MaxVal: ptr(40)}, true},
		{"not above", Above(50), true},
		{"not below", FloatBounds{Below: ptr(50)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sec.GetFloatWithBounds("value", tt.bounds)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := sec.GetIntWithBounds("value", 0, 10); err == nil {
		t.Error("expected int range error")
	}
}

func TestGetSeconds(t *testing.T) {
	cfg, _ := LoadString("[print]\nlift_timeout: 2.5\nzero: 0\n")
	sec, _ := cfg.GetSection("print")

	d, err := sec.GetSeconds("lift_timeout")
	if err != nil || d != 2500*time.Millisecond {
		t.Errorf("GetSeconds = %v, %v", d, err)
	}
	if d, _ := sec.GetSeconds("missing", 3*time.Second); d != 3*time.Second {
		t.Errorf("expected fallback, got %v", d)
	}
	if _, err := sec.GetSeconds("zero"); err == nil {
		t.Error("expected zero duration to be rejected")
	}
}

func TestMissingOptionError(t *testing.T) {
	cfg, _ := LoadString("[test]\nexists: value\n")
	sec, _ := cfg.GetSection("test")

	_, err := sec.Get("missing")
	configErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if configErr.Section != "test" || configErr.Option != "missing" {
		t.Errorf("unexpected error context: %+v", configErr)
	}

	if _, err := cfg.GetSection("absent"); err == nil {
		t.Error("expected missing section error")
	}
}

func ptr(v float64) *float64 { return &v }
