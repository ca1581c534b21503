// cmd/serve.go
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggcore/gg-core/internal/backend"
	"github.com/ggcore/gg-core/internal/cache"
	"github.com/ggcore/gg-core/internal/config"
	"github.com/ggcore/gg-core/internal/health"
	"github.com/ggcore/gg-core/internal/ipc"
	"github.com/ggcore/gg-core/internal/kv"
	"github.com/ggcore/gg-core/internal/model"
	"github.com/ggcore/gg-core/internal/resource"
	"github.com/ggcore/gg-core/internal/scheduler"
	"github.com/ggcore/gg-core/internal/shutdown"
	"github.com/ggcore/gg-core/internal/telemetry"
)

// stubDemoModelID names the single model cmd serve --stub registers
// when the config carries no models of its own, for local smoke-testing
// without a manifest file.
const stubDemoModelID = "stub-demo"

// kvFormat maps the config's plain quantization string to the kv
// package's Format constants.
func kvFormat(quantization string) (kv.Format, error) {
	switch quantization {
	case "q8":
		return kv.Q8, nil
	case "q4":
		return kv.Q4, nil
	default:
		return 0, fmt.Errorf("unknown kv quantization %q", quantization)
	}
}

// backendSet is the resolvable map from model_id to loaded Backend. It
// also implements model.Preloader so the Swap Manager can populate it
// directly when hot-swapping a route (spec §4.6); the mutex guards it
// against concurrent resolves from the request path.
type backendSet struct {
	mu        sync.Mutex
	backends  map[string]backend.Backend
	hiddenDim int
}

func newBackendSet(hiddenDim int) *backendSet {
	return &backendSet{backends: make(map[string]backend.Backend), hiddenDim: hiddenDim}
}

func (s *backendSet) resolve(modelID string) (backend.Backend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	be, ok := s.backends[modelID]
	return be, ok
}

func (s *backendSet) register(modelID string, be backend.Backend) {
	s.mu.Lock()
	s.backends[modelID] = be
	s.mu.Unlock()
}

// Preload implements model.Preloader: GGUF/ONNX execution is out of
// scope (spec §1), so the only concrete Backend the runtime ever loads
// is the deterministic StubBackend.
func (s *backendSet) Preload(m *model.Manifest) (int64, error) {
	caps := make([]string, len(m.Capabilities))
	for i, c := range m.Capabilities {
		caps[i] = string(c)
	}
	stub := backend.NewStubBackend(m.ModelID, caps, m.SizeBytes, 0, 1, s.hiddenDim)
	s.register(m.ModelID, stub)
	return stub.MemoryUsage(), nil
}

// Abort releases nothing extra: ExecuteSwap already unregisters the
// aborted handle from the registry, leaving this entry unreferenced by
// any route.
func (s *backendSet) Abort(h model.Handle) {}

func toCapabilities(strs []string) []model.Capability {
	out := make([]model.Capability, len(strs))
	for i, c := range strs {
		out[i] = model.Capability(c)
	}
	return out
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inference runtime and accept IPC connections",
	RunE:  runServe,
}

var stubFlag bool

func init() {
	serveCmd.Flags().BoolVar(&stubFlag, "stub", false, "preload a deterministic demo model if the config declares none, for local smoke-testing without a manifest file")
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := telemetry.SetupLogging(logLevel)
	if err != nil {
		return err
	}
	entry := log.WithField("component", "cmd.serve")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	cfg.IPC.SocketPath = resolveSocketPath(cfg.IPC.SocketPath)

	registry := model.NewRegistry()
	router := model.NewRouter()
	flightTracker := model.NewFlightTracker()
	queue := scheduler.NewRequestQueue(cfg.Batch.MaxPendingQueue)
	guard := resource.New(resource.Config{
		MaxPerCall:    cfg.Resource.MaxPerCallBytes,
		MaxTotal:      cfg.Resource.MaxTotalBytes,
		MaxConcurrent: int64(cfg.Resource.MaxConcurrentJobs),
	})
	prefixCache := cache.NewPrefixCache(cfg.Cache.PrefixCapacityEntries)
	dedupCache := cache.NewDedupCache(cfg.Cache.DedupCapacityEntries, cfg.Cache.DedupTTL.Duration())
	format, err := kvFormat(cfg.KV.Quantization)
	if err != nil {
		return err
	}
	pagePool := kv.NewPool(cfg.KV.PoolPages, cfg.KV.HiddenDim, format)

	models := cfg.Models
	if stubFlag && len(models) == 0 {
		models = []config.ModelPreload{{
			ModelID:      stubDemoModelID,
			Name:         stubDemoModelID,
			Version:      "0.0.0",
			Capabilities: []string{"text_generation"},
			SHA256:       strings.Repeat("0", 64),
			SizeBytes:    1 << 20,
			EchoToken:    42,
			MaxTokens:    16,
		}}
	}

	backends := newBackendSet(cfg.KV.HiddenDim)
	for _, mp := range models {
		manifest := &model.Manifest{
			ModelID:      mp.ModelID,
			Name:         mp.Name,
			Version:      mp.Version,
			Capabilities: toCapabilities(mp.Capabilities),
			SHA256:       mp.SHA256,
			SizeBytes:    mp.SizeBytes,
			Architecture: model.ArchitectureSafeTensors,
		}
		if err := manifest.Validate(); err != nil {
			return fmt.Errorf("preloading model %q: %w", mp.ModelID, err)
		}
		stub := backend.NewStubBackend(mp.ModelID, mp.Capabilities, mp.SizeBytes, mp.EchoToken, mp.MaxTokens, cfg.KV.HiddenDim)
		handle := registry.Register(model.Metadata{ModelID: mp.ModelID, Name: mp.Name, Version: mp.Version}, stub.MemoryUsage())
		if err := router.AddRoute(mp.ModelID, handle); err != nil {
			return fmt.Errorf("routing model %q: %w", mp.ModelID, err)
		}
		backends.register(mp.ModelID, stub)
		entry.WithField("model_id", mp.ModelID).Info("model preloaded")
	}

	swapManager := model.NewSwapManager(registry, router, flightTracker, backends)
	entry.WithField("idle", swapManager.IsIdle()).Info("swap manager ready")

	recorder := telemetry.NewRecorder(4096)
	coordinator := shutdown.New()
	healthChecker := health.New(health.Config{
		RequireModelLoaded: cfg.Health.RequireModelLoaded,
		MaxQueueDepth:      cfg.Health.MaxQueueDepth,
	})

	batcher := scheduler.NewBatcher(cfg.Batch.MaxBatchSize, queue, guard, prefixCache, pagePool, backends.resolve, cfg.Batch.MemPerRequest,
		scheduler.BatcherDeps{
			Shutdown:      coordinator,
			Flight:        flightTracker,
			ResolveHandle: router.Resolve,
			Recorder:      recorder,
			Dedup:         dedupCache,
		})

	auth := ipc.NewSessionAuth([]byte(cfg.IPC.SharedSecret), cfg.IPC.SessionTimeout.Duration(), cfg.IPC.MaxPerSession)
	handler := ipc.NewHandler(auth, queue, registry, router, backends.resolve, healthChecker, coordinator,
		func() []byte {
			b, err := json.Marshal(recorder.Snapshot())
			if err != nil {
				return []byte("{}")
			}
			return b
		},
		ipc.HandlerConfig{RequireAuth: cfg.IPC.RequireAuth})

	serverCfg := ipc.ServerConfig{
		SocketPath:      cfg.IPC.SocketPath,
		ProtocolVersion: ipc.ProtocolVersion(cfg.IPC.ProtocolVersion - 1),
		MaxFrameSize:    cfg.IPC.MaxFrameSizeByte,
		MaxConnections:  cfg.IPC.MaxConnections,
	}
	server := ipc.NewServer(serverCfg, handler, entry)

	stepDone := make(chan struct{})
	go runBatcherLoop(batcher, stepDone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		entry.Info("shutdown signal received, draining")
		result := coordinator.Initiate(cfg.Shutdown.DrainTimeout.Duration())
		close(stepDone)
		entry.WithField("outcome", result.Outcome).Info("drain complete")
		server.Close()
	}()

	entry.WithField("socket", cfg.IPC.SocketPath).Info("gg-core serving")
	if err := server.Serve(); err != nil {
		logrus.WithError(err).Error("server exited with error")
		return err
	}
	return nil
}

// batcherTick bounds how often an idle batcher polls the queue for new
// work; a request push never waits longer than this to be picked up.
const batcherTick = 5 * time.Millisecond

func runBatcherLoop(b *scheduler.Batcher, done <-chan struct{}) {
	ticker := time.NewTicker(batcherTick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			b.Step(now)
		}
	}
}
