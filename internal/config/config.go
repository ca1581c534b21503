// Package config loads and validates the runtime's RuntimeConfig, the
// single entry point for every tunable in the process: resource caps,
// KV page pool size, cache capacities, socket path, frame size limits, and
// session/drain timeouts. There is no package-level mutable config; a
// RuntimeConfig is loaded once and passed explicitly to every
// collaborator that needs it.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written in YAML as a Go
// duration string ("30s", "5m") instead of raw nanoseconds.
type Duration time.Duration

// UnmarshalYAML parses a scalar duration string into d.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders d as a Go duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ResourceConfig bounds the Resource Guard (spec §4.1).
type ResourceConfig struct {
	MaxPerCallBytes   int64 `yaml:"max_per_call_bytes"`
	MaxTotalBytes     int64 `yaml:"max_total_bytes"`
	MaxConcurrentJobs int   `yaml:"max_concurrent_jobs"`
}

// KVConfig sizes the paged KV cache (spec §4.4).
type KVConfig struct {
	// PageSizeTokens is checked by Validate but not read elsewhere; every
	// page holds the fixed kv.PageTokens (16) slots whatever it is set to.
	PageSizeTokens int    `yaml:"page_size_tokens"`
	PoolPages      int    `yaml:"pool_pages"`
	HiddenDim      int    `yaml:"hidden_dim"`
	Quantization   string `yaml:"quantization"`
}

// CacheConfig sizes the prefix and response dedup caches (spec §4.4,
// §4.7).
type CacheConfig struct {
	PrefixCapacityEntries int      `yaml:"prefix_capacity_entries"`
	DedupCapacityEntries  int      `yaml:"dedup_capacity_entries"`
	DedupTTL              Duration `yaml:"dedup_ttl"`
}

// BatchConfig sizes the continuous batcher (spec §4.5). The field name
// mirrors the teacher's sim/config.go BatchConfig.
type BatchConfig struct {
	MaxBatchSize    int   `yaml:"max_batch_size"`
	MemPerRequest   int64 `yaml:"mem_per_request_bytes"`
	MaxPendingQueue int   `yaml:"max_pending_queue"`
}

// IPCConfig configures the Unix-socket server (spec §4.9).
type IPCConfig struct {
	SocketPath       string   `yaml:"socket_path"`
	ProtocolVersion  int      `yaml:"protocol_version"`
	MaxFrameSizeByte uint32   `yaml:"max_frame_size_bytes"`
	MaxConnections   int64    `yaml:"max_connections"`
	SessionTimeout   Duration `yaml:"session_timeout"`
	MaxPerSession    int      `yaml:"max_connections_per_session"`
	RequireAuth      bool     `yaml:"require_auth"`
	SharedSecret     string   `yaml:"shared_secret"`
}

// ShutdownConfig bounds graceful shutdown (spec §4.8).
type ShutdownConfig struct {
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// HealthConfig tunes readiness behavior (spec §4.10).
type HealthConfig struct {
	RequireModelLoaded bool `yaml:"require_model_loaded"`
	MaxQueueDepth      int  `yaml:"max_queue_depth"`
}

// ModelPreload describes one model to register and route at startup,
// backed by the deterministic internal/backend.StubBackend (spec §1:
// GGUF/ONNX execution is out of scope, so this is the only concrete
// Backend the runtime ever loads).
type ModelPreload struct {
	ModelID      string   `yaml:"model_id"`
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Capabilities []string `yaml:"capabilities"`
	SHA256       string   `yaml:"sha256"`
	SizeBytes    int64    `yaml:"size_bytes"`
	EchoToken    uint32   `yaml:"echo_token"`
	MaxTokens    int      `yaml:"max_tokens"`
}

// RuntimeConfig is the single configuration object for the process.
type RuntimeConfig struct {
	LogLevel string         `yaml:"log_level"`
	Resource ResourceConfig `yaml:"resource"`
	KV       KVConfig       `yaml:"kv"`
	Cache    CacheConfig    `yaml:"cache"`
	Batch    BatchConfig    `yaml:"batch"`
	IPC      IPCConfig      `yaml:"ipc"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Health   HealthConfig   `yaml:"health"`
	Models   []ModelPreload `yaml:"models"`
}

// Default returns a RuntimeConfig with conservative defaults suitable
// for local development.
func Default() RuntimeConfig {
	return RuntimeConfig{
		LogLevel: "info",
		Resource: ResourceConfig{
			MaxPerCallBytes:   1 << 30,
			MaxTotalBytes:     8 << 30,
			MaxConcurrentJobs: 16,
		},
		KV: KVConfig{
			PageSizeTokens: 16,
			PoolPages:      4096,
			HiddenDim:      4096,
			Quantization:   "q8",
		},
		Cache: CacheConfig{
			PrefixCapacityEntries: 256,
			DedupCapacityEntries:  1024,
			DedupTTL:              Duration(30 * time.Second),
		},
		Batch: BatchConfig{
			MaxBatchSize:    32,
			MemPerRequest:   64 << 20,
			MaxPendingQueue: 512,
		},
		IPC: IPCConfig{
			SocketPath:       "/tmp/gg-core.sock",
			ProtocolVersion:  2,
			MaxFrameSizeByte: 16 * 1024 * 1024,
			MaxConnections:   64,
			SessionTimeout:   Duration(15 * time.Minute),
			MaxPerSession:    8,
			RequireAuth:      true,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: Duration(30 * time.Second),
		},
		Health: HealthConfig{
			RequireModelLoaded: false,
			MaxQueueDepth:      1000,
		},
	}
}

// Load reads and strictly parses a YAML RuntimeConfig file. Unrecognized
// keys are rejected, matching sim/bundle.go's LoadPolicyBundle.
func Load(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runtime config: %w", err)
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing runtime config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validQuantizations = map[string]bool{"q4": true, "q8": true}

// Validate checks that every tunable is in range, rejecting negative,
// zero-where-meaningless, NaN, or unknown-enum values.
func (c *RuntimeConfig) Validate() error {
	if c.Resource.MaxPerCallBytes <= 0 {
		return fmt.Errorf("resource.max_per_call_bytes must be > 0")
	}
	if c.Resource.MaxTotalBytes < c.Resource.MaxPerCallBytes {
		return fmt.Errorf("resource.max_total_bytes must be >= max_per_call_bytes")
	}
	if c.Resource.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("resource.max_concurrent_jobs must be > 0")
	}
	if c.KV.PageSizeTokens <= 0 {
		return fmt.Errorf("kv.page_size_tokens must be > 0")
	}
	if c.KV.HiddenDim <= 0 {
		return fmt.Errorf("kv.hidden_dim must be > 0")
	}
	if c.KV.PoolPages <= 0 {
		return fmt.Errorf("kv.pool_pages must be > 0")
	}
	if !validQuantizations[c.KV.Quantization] {
		return fmt.Errorf("kv.quantization %q unrecognized; valid options: q4, q8", c.KV.Quantization)
	}
	if c.Cache.PrefixCapacityEntries <= 0 {
		return fmt.Errorf("cache.prefix_capacity_entries must be > 0")
	}
	if c.Cache.DedupCapacityEntries <= 0 {
		return fmt.Errorf("cache.dedup_capacity_entries must be > 0")
	}
	if c.Cache.DedupTTL <= 0 {
		return fmt.Errorf("cache.dedup_ttl must be > 0")
	}
	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch.max_batch_size must be > 0")
	}
	if c.Batch.MemPerRequest <= 0 {
		return fmt.Errorf("batch.mem_per_request_bytes must be > 0")
	}
	if c.Batch.MaxPendingQueue <= 0 {
		return fmt.Errorf("batch.max_pending_queue must be > 0")
	}
	if c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path must be set")
	}
	if c.IPC.ProtocolVersion != 1 && c.IPC.ProtocolVersion != 2 {
		return fmt.Errorf("ipc.protocol_version must be 1 or 2, got %d", c.IPC.ProtocolVersion)
	}
	if c.IPC.MaxFrameSizeByte == 0 {
		return fmt.Errorf("ipc.max_frame_size_bytes must be > 0")
	}
	if c.IPC.MaxConnections <= 0 {
		return fmt.Errorf("ipc.max_connections must be > 0")
	}
	if c.IPC.RequireAuth && c.IPC.SharedSecret == "" {
		return fmt.Errorf("ipc.shared_secret must be set when require_auth is true")
	}
	if c.Shutdown.DrainTimeout <= 0 {
		return fmt.Errorf("shutdown.drain_timeout must be > 0")
	}
	if c.Health.MaxQueueDepth <= 0 {
		return fmt.Errorf("health.max_queue_depth must be > 0")
	}
	for _, m := range c.Models {
		if m.ModelID == "" {
			return fmt.Errorf("models: model_id cannot be empty")
		}
		if len(m.SHA256) != 64 {
			return fmt.Errorf("models[%s]: sha256 must be 64 hex characters", m.ModelID)
		}
		if len(m.Capabilities) == 0 {
			return fmt.Errorf("models[%s]: capabilities cannot be empty", m.ModelID)
		}
		if m.MaxTokens <= 0 {
			return fmt.Errorf("models[%s]: max_tokens must be > 0", m.ModelID)
		}
	}
	return nil
}
