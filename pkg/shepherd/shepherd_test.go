// End-to-end tests over a simulated printer
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package shepherd

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"stdio-shepherd/pkg/config"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/protocol"
	"stdio-shepherd/pkg/serial"
)

// printerConn simulates firmware on the far end of a serial port. It
// answers the greeting probe and M114, tracking the axis position.
type printerConn struct {
	rd      *io.PipeReader
	wr      *io.PipeWriter
	replies chan string
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	lines    []string
	z        float64
	relative bool
}

func newPrinterConn() *printerConn {
	rd, wr := io.Pipe()
	c := &printerConn{rd: rd, wr: wr, replies: make(chan string, 64), done: make(chan struct{})}
	go c.feed()
	return c
}

func (c *printerConn) feed() {
	for {
		select {
		case line := <-c.replies:
			if _, err := c.wr.Write([]byte(line + "\n")); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *printerConn) Read(p []byte) (int, error) { return c.rd.Read(p) }

func (c *printerConn) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")

	c.mu.Lock()
	c.lines = append(c.lines, line)
	reply := ""
	switch {
	case line == "M105":
		reply = "ok T:21.0 /0.0 B:20.0 /0.0"
	case line == "G90":
		c.relative = false
	case line == "G91":
		c.relative = true
	case strings.HasPrefix(line, "G28"):
		c.z = 0
	case strings.HasPrefix(line, "G0 Z"):
		v, _ := strconv.ParseFloat(strings.Fields(line[len("G0 Z"):])[0], 64)
		if c.relative {
			c.z += v
		} else {
			c.z = v
		}
	case line == "M114":
		reply = fmt.Sprintf("X:0.00 Y:0.00 Z:%.2f E:0.00 Count X:0 Y:0 Z:0", c.z)
	}
	c.mu.Unlock()

	if reply != "" {
		select {
		case c.replies <- reply:
		case <-c.done:
		}
	}
	return len(p), nil
}

func (c *printerConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.rd.CloseWithError(serial.ErrClosed)
	})
	return nil
}

func (c *printerConn) Device() string { return "/dev/ttyFAKE0" }

func (c *printerConn) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, l := range c.lines {
		if l != "M105" {
			out = append(out, l)
		}
	}
	return out
}

// stdout collects protocol rows.
type stdout struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (o *stdout) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

func (o *stdout) rows() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := strings.TrimSuffix(o.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (o *stdout) waitFor(t *testing.T, row string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, r := range o.rows() {
			if r == row {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("row %q never written; rows:\n%s", row, strings.Join(o.rows(), "\n"))
}

func (o *stdout) matching(prefix string) []string {
	var out []string
	for _, r := range o.rows() {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func testConfig(t *testing.T) *config.ShepherdConfig {
	cfg := config.Defaults()
	cfg.Serial.Candidates = []string{filepath.Join(t.TempDir(), "ttyUSB*")}
	cfg.Serial.GreetingInterval = 20 * time.Millisecond
	cfg.Print.LiftTimeout = 2 * time.Second
	cfg.Print.HomeTimeout = 2 * time.Second
	cfg.Print.DefaultExposureTime = 20 * time.Millisecond
	return cfg
}

func startShepherd(t *testing.T, cfg *config.ShepherdConfig, conn *printerConn) (*Shepherd, *stdout) {
	t.Helper()
	out := &stdout{}
	opts := Options{Config: cfg, Stdout: out, Logger: log.Discard()}
	if conn != nil {
		opts.Opener = func(serial.Config) (serial.Conn, error) { return conn, nil }
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s, out
}

func TestNoDevice(t *testing.T) {
	s, out := startShepherd(t, testConfig(t), nil)

	if err := s.Run(strings.NewReader("home\nqueryOnline\nterminate\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	rows := out.rows()
	if len(rows) != 5 {
		t.Fatalf("rows:\n%s", strings.Join(rows, "\n"))
	}
	if !strings.HasPrefix(rows[0], "warning ") || !strings.Contains(rows[0], "no device") {
		t.Errorf("startup row %q", rows[0])
	}
	want := []string{"ok started", "fail home NotOnline", "ok queryOnline false", "ok terminate"}
	for i, w := range want {
		if rows[i+1] != w {
			t.Errorf("row %d = %q, want %q", i+1, rows[i+1], w)
		}
	}
}

func TestMove(t *testing.T) {
	cfg := testConfig(t)
	cfg.Serial.Port = "/dev/ttyFAKE0"
	conn := newPrinterConn()
	s, out := startShepherd(t, cfg, conn)

	out.waitFor(t, "printer_online")
	// the greeting may beat the port row, but never the reverse order of these two
	port, started := -1, -1
	for i, r := range out.rows() {
		switch r {
		case "info port /dev/ttyFAKE0":
			port = i
		case "ok started":
			started = i
		}
	}
	if port < 0 || started < port {
		t.Errorf("startup rows %q", out.rows())
	}

	if err := s.Run(strings.NewReader("move 2.0\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	out.waitFor(t, "ok move 2.0")

	want := []string{"G91", "G0 Z2.000000 F50", "M400", "M114"}
	got := conn.commands()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("commands %q, want %q", got, want)
	}
	out.waitFor(t, "printer_position 2.0")
	if st := s.Status(); st.Connection != "online" || st.Position == nil || *st.Position != 2.0 {
		t.Errorf("status %+v", st)
	}
}

func TestPrintJob(t *testing.T) {
	cfg := testConfig(t)
	cfg.Serial.Port = "/dev/ttyFAKE0"
	s, out := startShepherd(t, cfg, newPrinterConn())
	out.waitFor(t, "printer_online")

	job := `{"images":["/jobs/1.png","/jobs/2.png","/jobs/3.png"]}`
	req := protocol.EncodeRow([]string{"startPrint", job})
	if err := s.Run(strings.NewReader(req + "\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	out.waitFor(t, "printProcess_finishedPrinting")

	want := []string{
		"printProcess_startedPrinting",
		"printProcess_showImage /jobs/1.png 127 0 3",
		"printProcess_hideImage",
		"printProcess_showImage /jobs/2.png 127 1 3",
		"printProcess_hideImage",
		"printProcess_showImage /jobs/3.png 127 2 3",
		"printProcess_hideImage",
		"printProcess_finishedPrinting",
	}
	if got := out.matching("printProcess_"); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("progress:\n%s", strings.Join(got, "\n"))
	}
	if st := s.Status(); st.Print.State != "finished" || st.Print.Total != 3 {
		t.Errorf("print status %+v", st.Print)
	}
}

func TestStopPrinting(t *testing.T) {
	cfg := testConfig(t)
	cfg.Serial.Port = "/dev/ttyFAKE0"
	cfg.Print.DefaultExposureTime = 300 * time.Millisecond
	s, out := startShepherd(t, cfg, newPrinterConn())
	out.waitFor(t, "printer_online")

	in, requests := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- s.Run(in) }()

	job := `{"images":["a.png","b.png","c.png"]}`
	fmt.Fprintln(requests, protocol.EncodeRow([]string{"startPrint", job}))
	out.waitFor(t, "printProcess_showImage a.png 127 0 3")
	out.waitFor(t, "printProcess_showImage b.png 127 1 3")
	fmt.Fprintln(requests, "stopPrinting")
	out.waitFor(t, "printProcess_finishedPrinting")
	fmt.Fprintln(requests, "queryPrinting")
	fmt.Fprintln(requests, "terminate")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request loop did not exit on terminate")
	}

	if got := out.matching("printProcess_showImage c.png"); len(got) != 0 {
		t.Errorf("third layer shown after stop: %q", got)
	}
	if got := out.matching("printProcess_finishedPrinting"); len(got) != 1 {
		t.Errorf("finished rows %q", got)
	}
	out.waitFor(t, "ok stopPrinting")
	out.waitFor(t, "ok queryPrinting false")
}
