// Package ipc implements the length-framed IPC protocol (spec §4.9):
// session auth, V1/V2 wire encoding, a bounded connection pool, message
// dispatch, and the Unix-socket server loop.
package ipc

import (
	"encoding/binary"
	"io"

	"github.com/ggcore/gg-core/internal/errs"
)

// DefaultMaxFrameSize is the inbound frame size ceiling (spec §4.9:
// "default 16 MiB").
const DefaultMaxFrameSize = 16 * 1024 * 1024

// ReadFrame reads one length-prefixed frame: a 4-byte big-endian length
// followed by that many payload bytes. Returns Protocol if the declared
// length exceeds maxFrameSize.
func ReadFrame(r io.Reader, maxFrameSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, &errs.Protocol{Reason: "frame exceeds maximum size"}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload prefixed by its 4-byte big-endian length.
// Returns Protocol if payload exceeds maxFrameSize.
func WriteFrame(w io.Writer, payload []byte, maxFrameSize uint32) error {
	if uint32(len(payload)) > maxFrameSize {
		return &errs.Protocol{Reason: "frame exceeds maximum size"}
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
