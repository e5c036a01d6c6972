// Line buffer pool
//
// Rows are encoded into pooled buffers so that chatty printer traffic
// does not allocate a fresh line per event.
//
// Usage:
//
//	b := pool.GetLine()
//	defer pool.PutLine(b)
//	b.WriteString("ok started")
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import "sync"

const (
	lineCap = 128
	// buffers grown past this by an oversized row are not kept
	maxPooledCap = 4096
)

// LineBuffer accumulates one output line.
type LineBuffer struct {
	buf []byte
}

var linePool = sync.Pool{
	New: func() any {
		return &LineBuffer{buf: make([]byte, 0, lineCap)}
	},
}

// GetLine returns an empty buffer.
func GetLine() *LineBuffer {
	b := linePool.Get().(*LineBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutLine returns b to the pool. b must not be used afterwards.
func PutLine(b *LineBuffer) {
	if b == nil || cap(b.buf) > maxPooledCap {
		return
	}
	linePool.Put(b)
}

// Bytes returns the accumulated bytes. They alias the buffer.
func (b *LineBuffer) Bytes() []byte { return b.buf }

func (b *LineBuffer) Len() int { return len(b.buf) }

func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *LineBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

func (b *LineBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

func (b *LineBuffer) WriteRune(r rune) (int, error) {
	n := len(b.buf)
	b.buf = append(b.buf, string(r)...)
	return len(b.buf) - n, nil
}

// Reset empties the buffer and keeps its capacity.
func (b *LineBuffer) Reset() { b.buf = b.buf[:0] }
