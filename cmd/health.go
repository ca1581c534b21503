// cmd/health.go
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggcore/gg-core/internal/config"
	"github.com/ggcore/gg-core/internal/health"
	"github.com/ggcore/gg-core/internal/ipc"
)

// dialTimeout bounds how long a CLI health probe waits for the socket to
// accept a connection before treating it as a connection failure.
const dialTimeout = 3 * time.Second

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run a full health check over the IPC socket",
	RunE:  runHealthCheck(ipc.HealthFull),
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Check liveness",
	RunE:  runHealthCheck(ipc.HealthLiveness),
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Check readiness",
	RunE:  runHealthCheck(ipc.HealthReadiness),
}

// loadCLIConfig loads the runtime config (or defaults) and resolves the
// socket path the same way serve does, for every thin client subcommand.
func loadCLIConfig() (*config.RuntimeConfig, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	cfg.IPC.SocketPath = resolveSocketPath(cfg.IPC.SocketPath)
	return &cfg, nil
}

func dialCLIClient(cfg *config.RuntimeConfig) (*ipc.Client, error) {
	version := ipc.ProtocolVersion(cfg.IPC.ProtocolVersion - 1)
	return ipc.Dial(cfg.IPC.SocketPath, version, cfg.IPC.MaxFrameSizeByte, dialTimeout)
}

// runHealthCheck builds a RunE for one of health/live/ready, differing
// only in which HealthCheckKind it asks for.
func runHealthCheck(kind ipc.HealthCheckKind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			os.Exit(1)
			return nil
		}
		client, err := dialCLIClient(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "connection failed:", err)
			os.Exit(3)
			return nil
		}
		defer client.Close()

		reply, err := client.Send(ipc.HealthCheckRequest{Kind: kind})
		if err != nil {
			fmt.Fprintln(os.Stderr, "request failed:", err)
			os.Exit(3)
			return nil
		}

		switch m := reply.(type) {
		case ipc.HealthCheckResponse:
			if kind == ipc.HealthFull && len(m.ReportJSON) > 0 {
				var report health.Report
				if err := json.Unmarshal(m.ReportJSON, &report); err == nil {
					printReport(report)
				}
			}
			if !m.OK {
				fmt.Println("unhealthy")
				os.Exit(1)
			}
			fmt.Println("ok")
			return nil
		case ipc.ErrorMessage:
			fmt.Fprintln(os.Stderr, "server error:", m.Message)
			os.Exit(1)
			return nil
		default:
			fmt.Fprintln(os.Stderr, "unexpected reply")
			os.Exit(1)
			return nil
		}
	}
}

func printReport(r health.Report) {
	fmt.Printf("state: %s\n", r.State)
	fmt.Printf("ready: %v\n", r.Ready)
	fmt.Printf("accepting_requests: %v\n", r.AcceptingRequests)
	fmt.Printf("models_loaded: %d\n", r.ModelsLoaded)
	fmt.Printf("memory_used_bytes: %d\n", r.MemoryUsedBytes)
	fmt.Printf("queue_depth: %d\n", r.QueueDepth)
	fmt.Printf("uptime_seconds: %d\n", r.UptimeSeconds)
}
