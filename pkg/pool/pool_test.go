// Line buffer pool tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"strings"
	"sync"
	"testing"
)

func TestLineBuffer(t *testing.T) {
	b := GetLine()
	b.WriteString("printProcess_showImage")
	b.WriteByte(' ')
	b.Write([]byte("/tmp/a.png"))
	b.WriteRune('é')

	if got, want := string(b.Bytes()), "printProcess_showImage /tmp/a.pngé"; got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
	if b.Len() != len("printProcess_showImage /tmp/a.pngé") {
		t.Errorf("Len() = %d", b.Len())
	}
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d", b.Len())
	}
	PutLine(b)
}

func TestGetLineIsEmpty(t *testing.T) {
	b := GetLine()
	b.WriteString("to_printer M114")
	PutLine(b)

	for i := 0; i < 10; i++ {
		b := GetLine()
		if b.Len() != 0 {
			t.Fatalf("pooled buffer not empty: %q", b.Bytes())
		}
		PutLine(b)
	}
}

func TestPutLineOversized(t *testing.T) {
	PutLine(nil)

	b := GetLine()
	b.WriteString(strings.Repeat("x", maxPooledCap+1))
	PutLine(b)
}

func TestConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b := GetLine()
				b.WriteString("ok move")
				if string(b.Bytes()) != "ok move" {
					t.Errorf("goroutine %d got %q", g, b.Bytes())
					return
				}
				PutLine(b)
			}
		}(g)
	}
	wg.Wait()
}

func BenchmarkLineBuffer(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := GetLine()
		buf.WriteString("from_printer ")
		buf.WriteString("X:0.00 Y:0.00 Z:1.50 E:0.00")
		PutLine(buf)
	}
}
