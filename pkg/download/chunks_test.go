package download

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

const mb = 1024 * 1024

func TestChunks_TwelveMegabytes(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 12*mb)

	var sizes []int
	for chunk, err := range Chunks(bytes.NewReader(data), 5*mb) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sizes = append(sizes, len(chunk))
	}

	expected := []int{5 * mb, 5 * mb, 2 * mb}
	if len(sizes) != len(expected) {
		t.Fatalf("expected %d chunks, got %d", len(expected), len(sizes))
	}
	for i := range expected {
		if sizes[i] != expected[i] {
			t.Errorf("chunk %d: expected %d bytes, got %d", i, expected[i], sizes[i])
		}
	}
	if ChunkCount(int64(len(data)), 5*mb) != 3 {
		t.Error("ChunkCount disagrees with Chunks")
	}
}

func TestChunks_PreservesOrderAndContent(t *testing.T) {
	data := []byte("abcdefghij")

	var joined []byte
	for chunk, err := range Chunks(bytes.NewReader(data), 3) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		joined = append(joined, chunk...)
	}
	if !bytes.Equal(joined, data) {
		t.Errorf("expected %q, got %q", data, joined)
	}
}

func TestChunks_ExactMultipleAndEmpty(t *testing.T) {
	count := 0
	for range Chunks(bytes.NewReader(make([]byte, 10)), 5) {
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 chunks, got %d", count)
	}

	for range Chunks(bytes.NewReader(nil), 5) {
		t.Error("empty input must not yield")
	}
}

func TestChunks_EarlyStopAndSinglePass(t *testing.T) {
	r := bytes.NewReader(make([]byte, 20))
	seq := Chunks(r, 5)

	for range seq {
		break
	}

	// The reader was consumed by the first pass; a second range resumes it
	rest := 0
	for range seq {
		rest++
	}
	if rest != 3 {
		t.Errorf("expected remaining 3 chunks, got %d", rest)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestChunks_ReadError(t *testing.T) {
	var gotErr error
	for _, err := range Chunks(failingReader{}, 5) {
		gotErr = err
	}
	if !errors.Is(gotErr, io.ErrClosedPipe) {
		t.Errorf("expected read error, got %v", gotErr)
	}

	for _, err := range Chunks(bytes.NewReader([]byte("x")), 0) {
		if err == nil {
			t.Error("expected error for invalid size")
		}
	}
}
