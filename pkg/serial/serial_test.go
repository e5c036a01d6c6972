// Serial transport tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ttyACM1", "ttyACM0", "ttyUSB0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	// A by-id style link to a device already matched by an earlier pattern
	if err := os.Symlink(filepath.Join(dir, "ttyUSB0"), filepath.Join(dir, "by-id-printer")); err != nil {
		t.Fatal(err)
	}

	got := Expand([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "ttyACM*"),
		filepath.Join(dir, "by-id-*"),
		"/dev/does-not-exist-yet",
	})
	want := []string{
		filepath.Join(dir, "ttyUSB0"),
		filepath.Join(dir, "ttyACM0"),
		filepath.Join(dir, "ttyACM1"),
		"/dev/does-not-exist-yet",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandNoMatches(t *testing.T) {
	if got := Expand([]string{filepath.Join(t.TempDir(), "tty*")}); len(got) != 0 {
		t.Errorf("expected no ports, got %v", got)
	}
}

func TestOpenerFor(t *testing.T) {
	for _, backend := range []string{"", BackendNative, BackendTarm} {
		if _, err := OpenerFor(backend); err != nil {
			t.Errorf("OpenerFor(%q) failed: %v", backend, err)
		}
	}
	if _, err := OpenerFor("usb"); err == nil {
		t.Error("expected unknown backend error")
	}
}

func TestOpenMissingDevice(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyNONE")
	for _, backend := range []string{BackendNative, BackendTarm} {
		open, _ := OpenerFor(backend)
		if _, err := open(Config{Device: missing}); err == nil {
			t.Errorf("%s: expected error opening %s", backend, missing)
		}
	}
	if _, err := Open(Config{}); err == nil {
		t.Error("expected error for empty device path")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Device: "/dev/null"}.withDefaults()
	if cfg.BaudRate != 250000 || cfg.ReadTimeout != 100*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if def := DefaultConfig(); !def.RTSOnConnect || !def.DTROnConnect {
		t.Error("expected RTS/DTR on by default")
	}
}

var (
	_ Conn = (*Port)(nil)
	_ Conn = (*TarmPort)(nil)
)
