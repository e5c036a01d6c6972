// Serial link to the printer firmware
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package link owns the serial connection to the printer firmware. It
// frames and classifies incoming lines on a reader goroutine, probes the
// firmware until it greets, and writes newline-terminated commands.
package link

import (
	"bytes"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"stdio-shepherd/pkg/errors"
	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
	"stdio-shepherd/pkg/serial"
)

// Connection state ordinals reported to metrics
const (
	stateDisconnected = iota
	stateConnecting
	stateOnline
)

const maxLineLength = 4096

// Listener receives link notifications. Callbacks run on the reader
// goroutine (Line, Online, Offline after a lost connection) or on the
// caller of Connect/Disconnect, and must not call Disconnect.
type Listener interface {
	// Connected is called once a port opened; the link is connecting.
	Connected(device string)
	// Online is called when the firmware greeted.
	Online()
	// Offline is called once per connection when it ends.
	Offline()
	// Line is called for every classified line, in arrival order.
	Line(Line)
}

// Options configures a Link.
type Options struct {
	Opener           serial.Opener
	ReadTimeout      time.Duration
	GreetingInterval time.Duration
	Logger           *log.Logger
	Metrics          *metrics.ShepherdMetrics
}

// Link is the serial connection to one printer.
type Link struct {
	opts     Options
	log      *log.Logger
	listener Listener

	mu   sync.Mutex
	sess *session

	writeMu sync.Mutex
}

// session is the state of one open port.
type session struct {
	conn       serial.Conn
	device     string
	done       chan struct{}
	online     chan struct{}
	onlineOnce sync.Once
	wg         sync.WaitGroup
}

func (s *session) isOnline() bool {
	select {
	case <-s.online:
		return true
	default:
		return false
	}
}

// New creates a disconnected link.
func New(opts Options) *Link {
	if opts.Opener == nil {
		opts.Opener = func(cfg serial.Config) (serial.Conn, error) { return serial.Open(cfg) }
	}
	if opts.GreetingInterval <= 0 {
		opts.GreetingInterval = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("link")
	}
	return &Link{opts: opts, log: logger, listener: nopListener{}}
}

// SetListener sets the receiver of link notifications. It must be called
// before Connect.
func (l *Link) SetListener(listener Listener) {
	if listener == nil {
		listener = nopListener{}
	}
	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()
}

// Connect opens the preferred port, or else the first candidate that
// opens. Candidates may be glob patterns. An open link is disconnected
// first. It returns the device that opened.
func (l *Link) Connect(candidates []string, preferred string, baud int) (string, error) {
	l.Disconnect()

	var ports []string
	if preferred != "" {
		ports = append(ports, preferred)
	}
	for _, p := range serial.Expand(candidates) {
		if p != preferred {
			ports = append(ports, p)
		}
	}
	if len(ports) == 0 {
		return "", errors.NoDeviceFound()
	}

	var lastErr error
	for _, device := range ports {
		cfg := serial.DefaultConfig()
		cfg.Device = device
		cfg.BaudRate = baud
		if l.opts.ReadTimeout > 0 {
			cfg.ReadTimeout = l.opts.ReadTimeout
		}
		conn, err := l.opts.Opener(cfg)
		if err != nil {
			l.log.WithField("device", device).WithError(err).Warn("open failed")
			lastErr = err
			continue
		}
		l.log.WithFields(log.Fields{"device": device, "baud": baud}).Info("port opened")
		l.start(conn, device)
		return device, nil
	}
	return "", errors.ConnectFailed(ports, lastErr)
}

func (l *Link) start(conn serial.Conn, device string) {
	s := &session{
		conn:   conn,
		device: device,
		done:   make(chan struct{}),
		online: make(chan struct{}),
	}
	l.mu.Lock()
	l.sess = s
	listener := l.listener
	l.mu.Unlock()

	l.opts.Metrics.SetConnectionState(stateConnecting)
	listener.Connected(device)

	s.wg.Add(2)
	go l.readLoop(s)
	go l.greetLoop(s)
}

// Send writes one command line. It fails with NotOnline unless the
// firmware has greeted.
func (l *Link) Send(line string) error {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	if s == nil || !s.isOnline() {
		return errors.NotOnline("send")
	}
	if err := l.write(s, line); err != nil {
		l.lost(s, err)
		return errors.Wrap(err, errors.ErrNotOnline, "write failed")
	}
	return nil
}

func (l *Link) write(s *session, line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		return err
	}
	l.opts.Metrics.CommandSent()
	return nil
}

// Disconnect closes the port and waits for the link goroutines. It is a
// no-op when nothing is connected, so Offline fires once per connection.
func (l *Link) Disconnect() {
	l.mu.Lock()
	s := l.sess
	l.sess = nil
	l.mu.Unlock()
	if s == nil {
		return
	}

	close(s.done)
	if err := s.conn.Close(); err != nil {
		l.log.WithError(err).Debug("close %s", s.device)
	}
	s.wg.Wait()
	l.log.WithField("device", s.device).Info("disconnected")
	l.offline()
}

// lost detaches a session after an I/O failure. It does not wait for the
// session goroutines since it may run on one of them.
func (l *Link) lost(s *session, err error) {
	l.mu.Lock()
	if l.sess != s {
		l.mu.Unlock()
		return
	}
	l.sess = nil
	l.mu.Unlock()

	close(s.done)
	s.conn.Close()
	l.log.WithField("device", s.device).WithError(err).Error("connection lost")
	l.offline()
}

func (l *Link) offline() {
	l.opts.Metrics.SetConnectionState(stateDisconnected)
	l.currentListener().Offline()
}

func (l *Link) currentListener() Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listener
}

// Device returns the open device path, or "" when disconnected.
func (l *Link) Device() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess == nil {
		return ""
	}
	return l.sess.device
}

// Online reports whether the firmware greeted on the open port.
func (l *Link) Online() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil && l.sess.isOnline()
}

// readLoop frames lines on '\n' and hands them on in arrival order.
func (l *Link) readLoop(s *session) {
	defer s.wg.Done()

	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				l.handleLine(s, string(pending[:i]))
				pending = pending[i+1:]
			}
			if len(pending) > maxLineLength {
				l.log.Warn("discarding %d bytes without newline", len(pending))
				pending = pending[:0]
			}
		}
		if err == nil {
			continue
		}

		select {
		case <-s.done:
			return
		default:
		}
		if stderrors.Is(err, serial.ErrTimeout) {
			continue
		}
		l.lost(s, err)
		return
	}
}

// greetLoop probes with M105 until the firmware answers.
func (l *Link) greetLoop(s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(l.opts.GreetingInterval)
	defer ticker.Stop()
	for {
		if err := l.write(s, "M105"); err != nil {
			l.log.WithError(err).Debug("greeting probe failed")
		}
		select {
		case <-s.done:
			return
		case <-s.online:
			return
		case <-ticker.C:
		}
	}
}

func (l *Link) handleLine(s *session, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}

	line, err := Classify(text)
	if err != nil {
		l.log.WithError(err).Warn("dropping line")
		l.opts.Metrics.LineDropped()
		return
	}
	l.opts.Metrics.LineReceived(line.Kind.String())

	listener := l.currentListener()
	listener.Line(line)

	if !s.isOnline() && isGreeting(text) {
		s.onlineOnce.Do(func() { close(s.online) })
		l.log.WithField("device", s.device).Info("printer online")
		l.opts.Metrics.SetConnectionState(stateOnline)
		listener.Online()
	}
}

type nopListener struct{}

func (nopListener) Connected(string) {}
func (nopListener) Online()          {}
func (nopListener) Offline()         {}
func (nopListener) Line(Line)        {}
