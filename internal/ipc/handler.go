package ipc

import (
	"encoding/json"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
	"github.com/ggcore/gg-core/internal/health"
	"github.com/ggcore/gg-core/internal/model"
	"github.com/ggcore/gg-core/internal/scheduler"
	"github.com/ggcore/gg-core/internal/shutdown"
)

// HandlerConfig tunes auth enforcement for the handler.
type HandlerConfig struct {
	RequireAuth bool
}

// MetricsSnapshotFunc returns the current metrics snapshot pre-encoded as
// JSON; the telemetry package owns the snapshot shape, so handler only
// depends on this narrow callback to avoid a cyclic import.
type MetricsSnapshotFunc func() []byte

// Handler dispatches decoded IPC messages against the runtime's
// collaborators: session auth, the request queue, the model registry and
// router, health reporting, and metrics (spec §4.9, supplemented by the
// health-report and models/metrics surfaces recovered from
// health_handler.rs).
type Handler struct {
	auth     *SessionAuth
	queue    *scheduler.RequestQueue
	registry *model.Registry
	router   *model.Router
	resolve  scheduler.BackendResolver
	health   *health.Checker
	shutdown *shutdown.Coordinator
	metrics  MetricsSnapshotFunc
	config   HandlerConfig
}

// NewHandler wires a Handler to its collaborators.
func NewHandler(
	auth *SessionAuth,
	queue *scheduler.RequestQueue,
	registry *model.Registry,
	router *model.Router,
	resolve scheduler.BackendResolver,
	healthChecker *health.Checker,
	shutdownCoordinator *shutdown.Coordinator,
	metrics MetricsSnapshotFunc,
	config HandlerConfig,
) *Handler {
	return &Handler{
		auth:     auth,
		queue:    queue,
		registry: registry,
		router:   router,
		resolve:  resolve,
		health:   healthChecker,
		shutdown: shutdownCoordinator,
		metrics:  metrics,
		config:   config,
	}
}

// connSink buffers generated tokens and pushes either incremental
// StreamChunks (streaming requests) or a single final InferenceResponse
// (non-streaming requests) via push.
type connSink struct {
	requestID uint64
	stream    bool
	push      func(Message)
	buffered  []uint32
}

func (s *connSink) Emit(tokens []uint32, isFinal bool, reason scheduler.FinishReason, err error) {
	if s.stream {
		s.push(StreamChunk{RequestID: s.requestID, Tokens: tokens, Finished: isFinal})
		return
	}
	s.buffered = append(s.buffered, tokens...)
	if !isFinal {
		return
	}
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	s.push(InferenceResponse{RequestID: s.requestID, OutputTokens: s.buffered, Finished: true, Error: errStr})
}

// Handle processes one decoded message for a connection identified by
// session (nil if not yet authenticated). push delivers any asynchronous
// follow-up frames (streamed tokens, the eventual final response) over
// the same connection. It returns the synchronous reply and, on a
// successful Handshake, the newly minted session id.
func (h *Handler) Handle(msg Message, session *string, push func(Message)) (Message, *string, error) {
	switch m := msg.(type) {
	case Handshake:
		return h.handleHandshake(m)
	case InferenceRequest:
		if err := h.requireAuth(session); err != nil {
			return ErrorMessage{Code: 401, Message: err.Error()}, nil, nil
		}
		return h.handleInference(m, push), nil, nil
	case HealthCheckRequest:
		return h.handleHealthCheck(m), nil, nil
	case ModelsListRequest:
		if err := h.requireAuth(session); err != nil {
			return ErrorMessage{Code: 401, Message: err.Error()}, nil, nil
		}
		return h.handleModelsList(), nil, nil
	case WarmupRequest:
		if err := h.requireAuth(session); err != nil {
			return ErrorMessage{Code: 401, Message: err.Error()}, nil, nil
		}
		return h.handleWarmup(m), nil, nil
	case MetricsRequest:
		if err := h.requireAuth(session); err != nil {
			return ErrorMessage{Code: 401, Message: err.Error()}, nil, nil
		}
		return MetricsResponse{SnapshotJSON: h.metrics()}, nil, nil
	default:
		return ErrorMessage{Code: 400, Message: "unexpected message type"}, nil, nil
	}
}

func (h *Handler) requireAuth(session *string) error {
	if !h.config.RequireAuth {
		return nil
	}
	if session == nil {
		return &errs.AuthFailure{Reason: "not authenticated"}
	}
	return h.auth.Validate(*session)
}

func (h *Handler) handleHandshake(m Handshake) (Message, *string, error) {
	sid, err := h.auth.Authenticate(m.Token)
	if err != nil {
		return ErrorMessage{Code: 401, Message: err.Error()}, nil, nil
	}
	return HandshakeAck{SessionID: sid}, &sid, nil
}

func (h *Handler) handleInference(m InferenceRequest, push func(Message)) Message {
	params := scheduler.SamplingParams{
		MaxTokens:         m.Params.MaxTokens,
		Temperature:       m.Params.Temperature,
		TopP:              m.Params.TopP,
		TopK:              m.Params.TopK,
		RepetitionPenalty: m.Params.RepetitionPenalty,
		Stream:            m.Params.Stream,
		TimeoutMs:         m.Params.TimeoutMs,
		// Greedy (temperature 0) sampling is the only case the caller can
		// assert is safe to key the dedup cache on: every other knob held
		// equal, it reproduces the same output every time (spec §4.4 Open
		// Question, resolved in DESIGN.md).
		Deterministic: m.Params.Temperature == 0,
	}
	if err := params.Validate(); err != nil {
		return InferenceResponse{RequestID: m.RequestID, Error: err.Error()}
	}

	sink := &connSink{requestID: m.RequestID, stream: m.Params.Stream, push: push}
	req := &scheduler.QueuedRequest{
		ModelID:      m.ModelID,
		PromptTokens: m.PromptTokens,
		Params:       params,
		EnqueuedAt:   time.Now(),
		Sink:         sink,
	}
	if params.TimeoutMs > 0 {
		req.Deadline = req.EnqueuedAt.Add(time.Duration(params.TimeoutMs) * time.Millisecond)
	}

	if _, _, err := h.queue.Enqueue(req, scheduler.PriorityNormal); err != nil {
		return InferenceResponse{RequestID: m.RequestID, Error: err.Error()}
	}
	return InferenceResponse{RequestID: m.RequestID, OutputTokens: nil, Finished: false}
}

func (h *Handler) handleHealthCheck(m HealthCheckRequest) Message {
	state := h.shutdown.State()
	models := h.registry.Count()
	queueLen := h.queue.Len()

	switch m.Kind {
	case HealthLiveness:
		return HealthCheckResponse{OK: h.health.IsAlive()}
	case HealthReadiness:
		return HealthCheckResponse{OK: h.health.IsReady(state, models, queueLen)}
	default:
		report := h.health.Report(state, models, h.registry.TotalMemory(), queueLen)
		reportJSON, _ := json.Marshal(report)
		return HealthCheckResponse{OK: report.Ready, ReportJSON: reportJSON}
	}
}

func (h *Handler) handleModelsList() Message {
	routes := h.router.ListRoutes()
	ids := make([]string, len(routes))
	for i, r := range routes {
		ids[i] = r.ModelID
	}
	return ModelsListResponse{ModelIDs: ids, TotalMemoryBytes: h.registry.TotalMemory()}
}

func (h *Handler) handleWarmup(m WarmupRequest) Message {
	start := time.Now()
	be, ok := h.resolve(m.ModelID)
	if !ok {
		return WarmupResponse{ModelID: m.ModelID, Success: false, Error: (&errs.NotFound{Kind: "model", ID: m.ModelID}).Error()}
	}
	tokens := m.Tokens
	if tokens <= 0 {
		tokens = 1
	}
	prompt := make([]uint32, tokens)
	if _, err := be.Prefill(prompt, 0); err != nil {
		return WarmupResponse{ModelID: m.ModelID, Success: false, Error: err.Error(), ElapsedMs: time.Since(start).Milliseconds()}
	}
	return WarmupResponse{ModelID: m.ModelID, Success: true, ElapsedMs: time.Since(start).Milliseconds()}
}
