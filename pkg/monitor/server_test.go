// HTTP monitor tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
	"stdio-shepherd/pkg/printprocess"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	cfg.Logger = log.Discard()
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewShepherdMetrics()
	}
	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop(context.Background())
		ts.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	code, body := get(t, ts.URL+"/health")
	if code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("health = %d %s", code, body)
	}
}

func TestStatus(t *testing.T) {
	z := 1.25
	_, ts := newTestServer(t, Config{
		Status: func() Status {
			return Status{
				Connection: "online",
				Device:     "/dev/ttyACM0",
				Position:   &z,
				Print:      printprocess.Status{State: "exposing", JobID: "abc", Layer: 1, Total: 3},
			}
		},
	})

	code, body := get(t, ts.URL+"/status")
	if code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	var st Status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if st.Connection != "online" || st.Device != "/dev/ttyACM0" || st.Position == nil || *st.Position != 1.25 {
		t.Errorf("status = %+v", st)
	}
	if st.Print.State != "exposing" || st.Print.Layer != 1 || st.Print.Total != 3 {
		t.Errorf("print status = %+v", st.Print)
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.NewShepherdMetrics()
	m.CommandSent()
	_, ts := newTestServer(t, Config{Metrics: m})

	code, body := get(t, ts.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "shepherd_commands_sent_total 1") {
		t.Errorf("metrics = %d\n%s", code, body)
	}
}

func TestBasicAuth(t *testing.T) {
	_, ts := newTestServer(t, Config{Username: "lumen", Password: "secret"})

	if code, _ := get(t, ts.URL+"/health"); code != http.StatusUnauthorized {
		t.Errorf("without credentials got %d", code)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.SetBasicAuth("lumen", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with credentials got %d", resp.StatusCode)
	}
}

func TestEventMirror(t *testing.T) {
	s, ts := newTestServer(t, Config{})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rows := [][]string{
		{"printer_online"},
		{"from_printer", "X:0.00 Y:0.00 Z:1.50 E:0.00"},
		{"printProcess_showImage", "/tmp/a.png", "127", "0", "3"},
	}
	for _, row := range rows {
		s.Mirror(row)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range rows {
		var got []string
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	s.Stop(context.Background())
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close on Stop")
	}
	if s.hub.Count() != 0 {
		t.Errorf("%d clients left", s.hub.Count())
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Logger: log.Discard(), Metrics: metrics.NewShepherdMetrics()})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	code, _ := get(t, "http://"+s.Addr()+"/health")
	if code != http.StatusOK {
		t.Errorf("health = %d", code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("stop: %v", err)
	}
}
