package ipc

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ggcore/gg-core/internal/errs"
)

// ProtocolVersion selects the wire encoding for a connection, carried in
// the handshake (spec §4.9).
type ProtocolVersion int

const (
	V1 ProtocolVersion = iota
	V2
)

// TokenEncoder encodes and decodes token arrays for one protocol version.
type TokenEncoder interface {
	EncodeTokens(tokens []uint32) []byte
	DecodeTokens(data []byte) ([]uint32, error)
}

// GetTokenEncoder returns the TokenEncoder for version.
func GetTokenEncoder(version ProtocolVersion) TokenEncoder {
	switch version {
	case V2:
		return v2TokenEncoder{}
	default:
		return v1TokenEncoder{}
	}
}

// v1TokenEncoder serializes token arrays as JSON.
type v1TokenEncoder struct{}

func (v1TokenEncoder) EncodeTokens(tokens []uint32) []byte {
	if tokens == nil {
		tokens = []uint32{}
	}
	b, _ := json.Marshal(tokens)
	return b
}

func (v1TokenEncoder) DecodeTokens(data []byte) ([]uint32, error) {
	var tokens []uint32
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, &errs.Protocol{Reason: "V1: " + err.Error()}
	}
	return tokens, nil
}

// v2TokenEncoder packs token arrays as [count:u32-le][token:u32-le]*,
// roughly half the size of the JSON encoding for typical payloads.
type v2TokenEncoder struct{}

func (v2TokenEncoder) EncodeTokens(tokens []uint32) []byte {
	buf := make([]byte, 4+len(tokens)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(tokens)))
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], t)
	}
	return buf
}

func (v2TokenEncoder) DecodeTokens(data []byte) ([]uint32, error) {
	if len(data) < 4 {
		return nil, &errs.Protocol{Reason: "V2: too short"}
	}
	count := binary.LittleEndian.Uint32(data[:4])
	expectedLen := 4 + int(count)*4
	if len(data) != expectedLen {
		return nil, &errs.Protocol{Reason: "V2: truncated or over-long token array"}
	}
	tokens := make([]uint32, count)
	for i := range tokens {
		off := 4 + i*4
		tokens[i] = binary.LittleEndian.Uint32(data[off : off+4])
	}
	return tokens, nil
}
