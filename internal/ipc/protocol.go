package ipc

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/ggcore/gg-core/internal/errs"
)

// MessageType tags which concrete message a frame carries, doubling as
// the V2 wire format's leading tag byte.
type MessageType byte

const (
	MsgHandshake MessageType = iota + 1
	MsgHandshakeAck
	MsgError
	MsgInferenceRequest
	MsgInferenceResponse
	MsgStreamChunk
	MsgHealthCheckRequest
	MsgHealthCheckResponse
	MsgModelsListRequest
	MsgModelsListResponse
	MsgWarmupRequest
	MsgWarmupResponse
	MsgMetricsRequest
	MsgMetricsResponse
)

// HealthCheckKind selects which health surface a HealthCheckRequest asks
// for.
type HealthCheckKind int

const (
	HealthLiveness HealthCheckKind = iota
	HealthReadiness
	HealthFull
)

// Message is implemented by every IPC payload type.
type Message interface {
	Type() MessageType
}

type Handshake struct {
	Token           string
	ProtocolVersion ProtocolVersion
}

func (Handshake) Type() MessageType { return MsgHandshake }

type HandshakeAck struct {
	SessionID string
}

func (HandshakeAck) Type() MessageType { return MsgHandshakeAck }

type ErrorMessage struct {
	Code    int32
	Message string
}

func (ErrorMessage) Type() MessageType { return MsgError }

type SamplingParamsWire struct {
	MaxTokens         int32
	Temperature       float64
	TopP              float64
	TopK              int32
	RepetitionPenalty float64
	Stream            bool
	TimeoutMs         int64
}

type InferenceRequest struct {
	RequestID    uint64
	ModelID      string
	PromptTokens []uint32
	Params       SamplingParamsWire
}

func (InferenceRequest) Type() MessageType { return MsgInferenceRequest }

type InferenceResponse struct {
	RequestID    uint64
	OutputTokens []uint32
	Finished     bool
	Error        string // empty means no error
}

func (InferenceResponse) Type() MessageType { return MsgInferenceResponse }

type StreamChunk struct {
	RequestID uint64
	Tokens    []uint32
	Finished  bool
}

func (StreamChunk) Type() MessageType { return MsgStreamChunk }

type HealthCheckRequest struct {
	Kind HealthCheckKind
}

func (HealthCheckRequest) Type() MessageType { return MsgHealthCheckRequest }

type HealthCheckResponse struct {
	OK         bool
	ReportJSON []byte // JSON-encoded health.Report, present only for HealthFull
}

func (HealthCheckResponse) Type() MessageType { return MsgHealthCheckResponse }

type ModelsListRequest struct{}

func (ModelsListRequest) Type() MessageType { return MsgModelsListRequest }

type ModelsListResponse struct {
	ModelIDs         []string
	TotalMemoryBytes int64
}

func (ModelsListResponse) Type() MessageType { return MsgModelsListResponse }

type WarmupRequest struct {
	ModelID string
	Tokens  int32
}

func (WarmupRequest) Type() MessageType { return MsgWarmupRequest }

type WarmupResponse struct {
	ModelID   string
	Success   bool
	Error     string
	ElapsedMs int64
}

func (WarmupResponse) Type() MessageType { return MsgWarmupResponse }

type MetricsRequest struct{}

func (MetricsRequest) Type() MessageType { return MsgMetricsRequest }

type MetricsResponse struct {
	SnapshotJSON []byte
}

func (MetricsResponse) Type() MessageType { return MsgMetricsResponse }

// wireEnvelope is the V1 JSON-on-the-wire shape: a type discriminator
// alongside the raw payload, matching the tagged-union pattern used
// wherever Go JSON-encodes heterogeneous messages.
type wireEnvelope struct {
	Kind    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMessage serializes m per version. V1 produces a JSON envelope;
// V2 produces a tag byte followed by fields length-prefixed (u32-le) in
// struct declaration order.
func EncodeMessage(m Message, version ProtocolVersion) ([]byte, error) {
	if version == V2 {
		return encodeV2(m)
	}
	return encodeV1(m)
}

// DecodeMessage parses data per version into a concrete Message.
func DecodeMessage(data []byte, version ProtocolVersion) (Message, error) {
	if version == V2 {
		return decodeV2(data)
	}
	return decodeV1(data)
}

func encodeV1(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, &errs.Protocol{Reason: "V1 encode: " + err.Error()}
	}
	return json.Marshal(wireEnvelope{Kind: m.Type(), Payload: payload})
}

func decodeV1(data []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &errs.Protocol{Reason: "V1 decode: " + err.Error()}
	}
	target, err := blankMessage(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, &errs.Protocol{Reason: "V1 decode payload: " + err.Error()}
	}
	return dereference(target), nil
}

func blankMessage(kind MessageType) (interface{}, error) {
	switch kind {
	case MsgHandshake:
		return &Handshake{}, nil
	case MsgHandshakeAck:
		return &HandshakeAck{}, nil
	case MsgError:
		return &ErrorMessage{}, nil
	case MsgInferenceRequest:
		return &InferenceRequest{}, nil
	case MsgInferenceResponse:
		return &InferenceResponse{}, nil
	case MsgStreamChunk:
		return &StreamChunk{}, nil
	case MsgHealthCheckRequest:
		return &HealthCheckRequest{}, nil
	case MsgHealthCheckResponse:
		return &HealthCheckResponse{}, nil
	case MsgModelsListRequest:
		return &ModelsListRequest{}, nil
	case MsgModelsListResponse:
		return &ModelsListResponse{}, nil
	case MsgWarmupRequest:
		return &WarmupRequest{}, nil
	case MsgWarmupResponse:
		return &WarmupResponse{}, nil
	case MsgMetricsRequest:
		return &MetricsRequest{}, nil
	case MsgMetricsResponse:
		return &MetricsResponse{}, nil
	default:
		return nil, &errs.Protocol{Reason: "unknown message kind"}
	}
}

func dereference(ptr interface{}) Message {
	switch v := ptr.(type) {
	case *Handshake:
		return *v
	case *HandshakeAck:
		return *v
	case *ErrorMessage:
		return *v
	case *InferenceRequest:
		return *v
	case *InferenceResponse:
		return *v
	case *StreamChunk:
		return *v
	case *HealthCheckRequest:
		return *v
	case *HealthCheckResponse:
		return *v
	case *ModelsListRequest:
		return *v
	case *ModelsListResponse:
		return *v
	case *WarmupRequest:
		return *v
	case *WarmupResponse:
		return *v
	case *MetricsRequest:
		return *v
	case *MetricsResponse:
		return *v
	default:
		panic("ipc: unreachable message kind")
	}
}

func encodeV2(m Message) ([]byte, error) {
	w := newFieldWriter(m.Type())
	switch v := m.(type) {
	case Handshake:
		w.string(v.Token)
		w.u32(uint32(v.ProtocolVersion))
	case HandshakeAck:
		w.string(v.SessionID)
	case ErrorMessage:
		w.u32(uint32(v.Code))
		w.string(v.Message)
	case InferenceRequest:
		w.u64(v.RequestID)
		w.string(v.ModelID)
		w.tokens(v.PromptTokens)
		w.samplingParams(v.Params)
	case InferenceResponse:
		w.u64(v.RequestID)
		w.tokens(v.OutputTokens)
		w.boolean(v.Finished)
		w.string(v.Error)
	case StreamChunk:
		w.u64(v.RequestID)
		w.tokens(v.Tokens)
		w.boolean(v.Finished)
	case HealthCheckRequest:
		w.u32(uint32(v.Kind))
	case HealthCheckResponse:
		w.boolean(v.OK)
		w.bytes(v.ReportJSON)
	case ModelsListRequest:
		// no fields
	case ModelsListResponse:
		w.stringSlice(v.ModelIDs)
		w.u64(uint64(v.TotalMemoryBytes))
	case WarmupRequest:
		w.string(v.ModelID)
		w.u32(uint32(v.Tokens))
	case WarmupResponse:
		w.string(v.ModelID)
		w.boolean(v.Success)
		w.string(v.Error)
		w.u64(uint64(v.ElapsedMs))
	case MetricsRequest:
		// no fields
	case MetricsResponse:
		w.bytes(v.SnapshotJSON)
	default:
		return nil, &errs.Protocol{Reason: "V2 encode: unsupported message type"}
	}
	return w.bytes_(), nil
}

func decodeV2(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, &errs.Protocol{Reason: "V2: empty message"}
	}
	kind := MessageType(data[0])
	r := newFieldReader(data[1:])

	switch kind {
	case MsgHandshake:
		token, err := r.string()
		if err != nil {
			return nil, err
		}
		ver, err := r.u32()
		if err != nil {
			return nil, err
		}
		return Handshake{Token: token, ProtocolVersion: ProtocolVersion(ver)}, r.finish()
	case MsgHandshakeAck:
		sid, err := r.string()
		if err != nil {
			return nil, err
		}
		return HandshakeAck{SessionID: sid}, r.finish()
	case MsgError:
		code, err := r.u32()
		if err != nil {
			return nil, err
		}
		msg, err := r.string()
		if err != nil {
			return nil, err
		}
		return ErrorMessage{Code: int32(code), Message: msg}, r.finish()
	case MsgInferenceRequest:
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		modelID, err := r.string()
		if err != nil {
			return nil, err
		}
		tokens, err := r.tokens()
		if err != nil {
			return nil, err
		}
		params, err := r.samplingParams()
		if err != nil {
			return nil, err
		}
		return InferenceRequest{RequestID: id, ModelID: modelID, PromptTokens: tokens, Params: params}, r.finish()
	case MsgInferenceResponse:
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		tokens, err := r.tokens()
		if err != nil {
			return nil, err
		}
		finished, err := r.boolean()
		if err != nil {
			return nil, err
		}
		errStr, err := r.string()
		if err != nil {
			return nil, err
		}
		return InferenceResponse{RequestID: id, OutputTokens: tokens, Finished: finished, Error: errStr}, r.finish()
	case MsgStreamChunk:
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		tokens, err := r.tokens()
		if err != nil {
			return nil, err
		}
		finished, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return StreamChunk{RequestID: id, Tokens: tokens, Finished: finished}, r.finish()
	case MsgHealthCheckRequest:
		k, err := r.u32()
		if err != nil {
			return nil, err
		}
		return HealthCheckRequest{Kind: HealthCheckKind(k)}, r.finish()
	case MsgHealthCheckResponse:
		ok, err := r.boolean()
		if err != nil {
			return nil, err
		}
		report, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return HealthCheckResponse{OK: ok, ReportJSON: report}, r.finish()
	case MsgModelsListRequest:
		return ModelsListRequest{}, r.finish()
	case MsgModelsListResponse:
		ids, err := r.stringSlice()
		if err != nil {
			return nil, err
		}
		total, err := r.u64()
		if err != nil {
			return nil, err
		}
		return ModelsListResponse{ModelIDs: ids, TotalMemoryBytes: int64(total)}, r.finish()
	case MsgWarmupRequest:
		modelID, err := r.string()
		if err != nil {
			return nil, err
		}
		tokens, err := r.u32()
		if err != nil {
			return nil, err
		}
		return WarmupRequest{ModelID: modelID, Tokens: int32(tokens)}, r.finish()
	case MsgWarmupResponse:
		modelID, err := r.string()
		if err != nil {
			return nil, err
		}
		success, err := r.boolean()
		if err != nil {
			return nil, err
		}
		errStr, err := r.string()
		if err != nil {
			return nil, err
		}
		elapsed, err := r.u64()
		if err != nil {
			return nil, err
		}
		return WarmupResponse{ModelID: modelID, Success: success, Error: errStr, ElapsedMs: int64(elapsed)}, r.finish()
	case MsgMetricsRequest:
		return MetricsRequest{}, r.finish()
	case MsgMetricsResponse:
		snap, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return MetricsResponse{SnapshotJSON: snap}, r.finish()
	default:
		return nil, &errs.Protocol{Reason: "V2: unknown message kind"}
	}
}

// --- field-level binary codec ---
//
// Every field is written as a u32-le length followed by that many raw
// bytes, regardless of logical type; integers and booleans are encoded
// into that byte span. This trades a few bytes of overhead per field for
// a decoder that never needs per-type framing rules.

type fieldWriter struct {
	buf []byte
}

func newFieldWriter(kind MessageType) *fieldWriter {
	return &fieldWriter{buf: []byte{byte(kind)}}
}

func (w *fieldWriter) field(b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, b...)
}

func (w *fieldWriter) string(s string) { w.field([]byte(s)) }
func (w *fieldWriter) bytes(b []byte)  { w.field(b) }
func (w *fieldWriter) boolean(v bool) {
	if v {
		w.field([]byte{1})
	} else {
		w.field([]byte{0})
	}
}

func (w *fieldWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.field(b[:])
}

func (w *fieldWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.field(b[:])
}

func (w *fieldWriter) f64(v float64) {
	w.u64(math.Float64bits(v))
}

func (w *fieldWriter) tokens(tokens []uint32) {
	w.field(v2TokenEncoder{}.EncodeTokens(tokens))
}

func (w *fieldWriter) stringSlice(ss []string) {
	inner := &fieldWriter{}
	inner.u32(uint32(len(ss)))
	for _, s := range ss {
		inner.string(s)
	}
	w.field(inner.buf)
}

func (w *fieldWriter) samplingParams(p SamplingParamsWire) {
	inner := &fieldWriter{}
	inner.u32(uint32(p.MaxTokens))
	inner.f64(p.Temperature)
	inner.f64(p.TopP)
	inner.u32(uint32(p.TopK))
	inner.f64(p.RepetitionPenalty)
	inner.boolean(p.Stream)
	inner.u64(uint64(p.TimeoutMs))
	w.field(inner.buf)
}

func (w *fieldWriter) bytes_() []byte { return w.buf }

type fieldReader struct {
	data   []byte
	offset int
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{data: data}
}

func (r *fieldReader) field() ([]byte, error) {
	if r.offset+4 > len(r.data) {
		return nil, &errs.Protocol{Reason: "V2: truncated field length"}
	}
	n := binary.LittleEndian.Uint32(r.data[r.offset : r.offset+4])
	r.offset += 4
	if r.offset+int(n) > len(r.data) {
		return nil, &errs.Protocol{Reason: "V2: truncated field body"}
	}
	b := r.data[r.offset : r.offset+int(n)]
	r.offset += int(n)
	return b, nil
}

func (r *fieldReader) finish() error {
	if r.offset != len(r.data) {
		return &errs.Protocol{Reason: "V2: trailing bytes after message"}
	}
	return nil
}

func (r *fieldReader) string() (string, error) {
	b, err := r.field()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *fieldReader) bytes() ([]byte, error) { return r.field() }

func (r *fieldReader) boolean() (bool, error) {
	b, err := r.field()
	if err != nil {
		return false, err
	}
	if len(b) != 1 {
		return false, &errs.Protocol{Reason: "V2: malformed bool field"}
	}
	return b[0] != 0, nil
}

func (r *fieldReader) u32() (uint32, error) {
	b, err := r.field()
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, &errs.Protocol{Reason: "V2: malformed u32 field"}
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *fieldReader) u64() (uint64, error) {
	b, err := r.field()
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, &errs.Protocol{Reason: "V2: malformed u64 field"}
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *fieldReader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *fieldReader) tokens() ([]uint32, error) {
	b, err := r.field()
	if err != nil {
		return nil, err
	}
	return v2TokenEncoder{}.DecodeTokens(b)
}

func (r *fieldReader) stringSlice() ([]string, error) {
	b, err := r.field()
	if err != nil {
		return nil, err
	}
	inner := newFieldReader(b)
	count, err := inner.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		s, err := inner.string()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *fieldReader) samplingParams() (SamplingParamsWire, error) {
	b, err := r.field()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	inner := newFieldReader(b)
	maxTokens, err := inner.u32()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	temp, err := inner.f64()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	topP, err := inner.f64()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	topK, err := inner.u32()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	repPenalty, err := inner.f64()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	stream, err := inner.boolean()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	timeout, err := inner.u64()
	if err != nil {
		return SamplingParamsWire{}, err
	}
	return SamplingParamsWire{
		MaxTokens:         int32(maxTokens),
		Temperature:       temp,
		TopP:              topP,
		TopK:              int32(topK),
		RepetitionPenalty: repPenalty,
		Stream:            stream,
		TimeoutMs:         int64(timeout),
	}, nil
}
