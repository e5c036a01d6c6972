// Line protocol codec
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package protocol reads requests from and writes rows to the parent
// process. A record is one line of space separated fields; a field with
// spaces or special characters is wrapped in double quotes and '"' and
// '\' inside it are escaped with a backslash.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/shlex"

	"stdio-shepherd/pkg/errors"
	"stdio-shepherd/pkg/pool"
)

// MaxLineSize bounds a single request line; inline job specs can be long.
const MaxLineSize = 1 << 20

// Request is one parsed input record.
type Request struct {
	Verb string
	Args []string
	// Raw is the record as read, also set when splitting failed
	Raw string
}

// ParseRequest splits a record into verb and arguments.
func ParseRequest(line string) (Request, error) {
	fields, err := shlex.Split(escapeShellRunes(line))
	if err != nil {
		return Request{Raw: line}, errors.Wrap(err, errors.ErrMalformedRequest, "cannot split request")
	}
	if len(fields) == 0 {
		return Request{Raw: line}, errors.MalformedRequest("empty request")
	}
	return Request{Verb: fields[0], Args: fields[1:], Raw: line}, nil
}

// escapeShellRunes backslash-escapes ' and # outside double quotes, so
// shlex treats them as ordinary characters. Only '"' quotes a field and
// only '\\' escapes.
func escapeShellRunes(line string) string {
	if !strings.ContainsAny(line, "'#") {
		return line
	}
	var sb strings.Builder
	sb.Grow(len(line) + 8)
	quoted := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			sb.WriteByte(c)
			i++
			sb.WriteByte(line[i])
			continue
		case c == '"':
			quoted = !quoted
		case !quoted && (c == '\'' || c == '#'):
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// rawPrefix is how much of an overlong record is kept in Request.Raw.
const rawPrefix = 256

// Reader yields requests from an input stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-blank record. It returns io.EOF at the end
// of input and a MalformedRequest error for a record that does not
// split or is longer than MaxLineSize; reading can continue after such
// an error.
func (r *Reader) Next() (Request, error) {
	for {
		raw, tooLong, err := r.readLine()
		if err != nil {
			return Request{}, err
		}
		if tooLong {
			return Request{Raw: strings.TrimSpace(raw)},
				errors.MalformedRequest(fmt.Sprintf("request longer than %d bytes", MaxLineSize))
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		return ParseRequest(line)
	}
}

// readLine reads through the next '\n'. The rest of an overlong line is
// discarded and only its first rawPrefix bytes are returned.
func (r *Reader) readLine() (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.r.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > MaxLineSize+2 {
				tooLong = true
				buf = buf[:rawPrefix]
			}
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && (len(buf) > 0 || tooLong):
		case err != nil:
			return "", false, err
		}
		line := strings.TrimRight(string(buf), "\r\n")
		if !tooLong && len(line) > MaxLineSize {
			tooLong = true
			line = line[:rawPrefix]
		}
		return line, tooLong, nil
	}
}

// needsQuoting reports whether a field would not split back unchanged.
func needsQuoting(field string) bool {
	if field == "" || strings.HasPrefix(field, "#") {
		return true
	}
	return strings.ContainsAny(field, " \t\r\n\"\\'")
}

// QuoteField renders one field.
func QuoteField(field string) string {
	if !needsQuoting(field) {
		return field
	}
	var sb strings.Builder
	sb.Grow(len(field) + 2)
	appendField(&sb, field)
	return sb.String()
}

type fieldWriter interface {
	WriteByte(c byte) error
	WriteString(s string) (int, error)
	WriteRune(r rune) (int, error)
}

func appendField(w fieldWriter, field string) {
	if !needsQuoting(field) {
		w.WriteString(field)
		return
	}
	w.WriteByte('"')
	for _, r := range field {
		if r == '"' || r == '\\' {
			w.WriteByte('\\')
		}
		w.WriteRune(r)
	}
	w.WriteByte('"')
}

// EncodeRow renders fields as one record without the line terminator.
func EncodeRow(fields []string) string {
	var sb strings.Builder
	appendRow(&sb, fields)
	return sb.String()
}

func appendRow(w fieldWriter, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(' ')
		}
		appendField(w, f)
	}
}

// Writer is the single owner of the output stream. Each row is written
// whole under a lock.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	mirror func(fields []string)
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// SetMirror registers fn to receive every row after it is written, in
// output order.
func (w *Writer) SetMirror(fn func(fields []string)) {
	w.mu.Lock()
	w.mirror = fn
	w.mu.Unlock()
}

// WriteRow writes one record.
func (w *Writer) WriteRow(fields ...string) error {
	line := pool.GetLine()
	defer pool.PutLine(line)
	appendRow(line, fields)
	line.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line.Bytes()); err != nil {
		return err
	}
	if w.mirror != nil {
		w.mirror(fields)
	}
	return nil
}
