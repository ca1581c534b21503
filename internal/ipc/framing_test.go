package ipc

import (
	"bytes"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello frame")
	if err := WriteFrame(&buf, payload, DefaultMaxFrameSize); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, DefaultMaxFrameSize); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %v", got)
	}
}

func TestWriteFrame_RejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 100)
	if err := WriteFrame(&buf, payload, 10); err == nil {
		t.Fatal("expected error for oversize payload")
	}
}

func TestReadFrame_RejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	// Write a length prefix claiming a huge payload, with no body.
	if err := WriteFrame(&buf, make([]byte, 0), DefaultMaxFrameSize); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// Corrupt: rebuild a frame with a length prefix bigger than maxFrameSize.
	var corrupted bytes.Buffer
	lenBuf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	corrupted.Write(lenBuf)
	if _, err := ReadFrame(&corrupted, 10); err == nil {
		t.Fatal("expected error for oversize frame length")
	}
}

func TestReadFrame_TruncatedStreamIsError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("full payload"), DefaultMaxFrameSize); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:6])
	if _, err := ReadFrame(truncated, DefaultMaxFrameSize); err == nil {
		t.Fatal("expected error reading truncated frame")
	}
}
