// Log file output with size-based rotation
//
// The process log can be mirrored to a file named by the [log] section.
// The file is rotated once it exceeds a size limit, and old copies are
// pruned (and optionally gzipped).
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
	rotationStamp     = "20060102-150405"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// Filename is the path to the log file.
	Filename string

	// MaxSize is the maximum size in megabytes before rotation.
	// Default is 10 MB.
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain.
	// Default is 5.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// RotatingFileWriter implements io.Writer with automatic file rotation.
type RotatingFileWriter struct {
	mu          sync.Mutex
	filename    string
	maxSize     int64
	maxBackups  int
	compress    bool
	currentSize int64
	file        *os.File
	pending     sync.WaitGroup // compress and prune jobs
}

// NewRotatingFileWriter creates a new rotating file writer.
func NewRotatingFileWriter(config RotationConfig) (*RotatingFileWriter, error) {
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaultMaxSizeMB
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = defaultMaxBackups
	}

	w := &RotatingFileWriter{
		filename:   config.Filename,
		maxSize:    int64(config.MaxSize) * 1024 * 1024,
		maxBackups: config.MaxBackups,
		compress:   config.Compress,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(w.filename), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.currentSize = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// rotate renames the current file aside and opens a fresh one.
// Called with w.mu held.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}

	ext := filepath.Ext(w.filename)
	base := strings.TrimSuffix(w.filename, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format(rotationStamp), ext)

	if err := os.Rename(w.filename, rotated); err != nil {
		if reopenErr := w.openFile(); reopenErr != nil {
			w.file = nil
		}
		return fmt.Errorf("rename log file: %w", err)
	}

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		if w.compress {
			compressFile(rotated)
		}
		w.pruneBackups()
	}()

	return w.openFile()
}

func compressFile(filename string) {
	src, err := os.Open(filename)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	closeErr := gz.Close()
	dst.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(filename + ".gz")
		return
	}
	os.Remove(filename)
}

// pruneBackups removes the oldest rotated files beyond maxBackups.
func (w *RotatingFileWriter) pruneBackups() {
	dir := filepath.Dir(w.filename)
	base := filepath.Base(w.filename)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []string
	for _, entry := range entries {
		if name := entry.Name(); name != base && isRotatedFile(name, prefix, ext) {
			backups = append(backups, name)
		}
	}

	// Stamps sort lexically in time order.
	sort.Strings(backups)
	for len(backups) > w.maxBackups {
		os.Remove(filepath.Join(dir, backups[0]))
		backups = backups[1:]
	}
}

// isRotatedFile matches prefix.YYYYMMDD-HHMMSS.ext with an optional .gz
func isRotatedFile(name, prefix, ext string) bool {
	if !strings.HasPrefix(name, prefix+".") {
		return false
	}
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ext)
	name = strings.TrimPrefix(name, prefix+".")

	if len(name) != len(rotationStamp) || name[8] != '-' {
		return false
	}
	_, err1 := strconv.Atoi(name[:8])
	_, err2 := strconv.Atoi(name[9:])
	return err1 == nil && err2 == nil
}

// Close waits for background compression and closes the file.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	f := w.file
	w.file = nil
	w.mu.Unlock()

	w.pending.Wait()
	if f != nil {
		return f.Close()
	}
	return nil
}

// CurrentSize returns the current file size.
func (w *RotatingFileWriter) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentSize
}

// Options configures the root logger of the process.
type Options struct {
	Prefix string
	Level  LogLevel
	Format OutputFormat
	// Stderr receives the console copy; nil means os.Stderr.
	Stderr io.Writer
	// File enables the rotating file copy when File.Filename is set.
	File RotationConfig
}

// Setup builds the root logger, installs it as the default for GetLogger
// and returns a closer for the log file (a no-op without one).
// Environment variables override Options.
func Setup(opts Options) (*Logger, io.Closer, error) {
	if opts.Prefix == "" {
		opts.Prefix = "shepherd"
	}
	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}

	logger := New(opts.Prefix)
	logger.SetLevel(opts.Level)
	logger.SetFormat(opts.Format)

	var closer io.Closer = nopCloser{}
	if opts.File.Filename != "" {
		fw, err := NewRotatingFileWriter(opts.File)
		if err != nil {
			return nil, nil, err
		}
		logger.SetWriter(io.MultiWriter(console, fw))
		logger.SetColorize(false)
		closer = fw
	} else {
		logger.SetWriter(console)
	}

	ConfigureFromEnv(logger)
	SetDefaultLogger(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
