// cmd/status.go
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggcore/gg-core/internal/ipc"
	"github.com/ggcore/gg-core/internal/telemetry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print request counters and latency percentiles",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	reply, err := client.Send(ipc.MetricsRequest{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		os.Exit(3)
		return nil
	}

	switch m := reply.(type) {
	case ipc.MetricsResponse:
		var snap telemetry.Snapshot
		if err := json.Unmarshal(m.SnapshotJSON, &snap); err != nil {
			fmt.Fprintln(os.Stderr, "malformed metrics snapshot:", err)
			os.Exit(1)
			return nil
		}
		printSnapshot(snap)
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

func printSnapshot(s telemetry.Snapshot) {
	fmt.Printf("completed_requests: %d\n", s.CompletedRequests)
	fmt.Printf("failed_requests: %d\n", s.FailedRequests)
	fmt.Printf("total_output_tokens: %d\n", s.TotalOutputTokens)
	fmt.Printf("ttft_ms: p50=%.2f p95=%.2f p99=%.2f\n", s.TTFTP50Ms, s.TTFTP95Ms, s.TTFTP99Ms)
	fmt.Printf("tpot_ms: p50=%.2f p95=%.2f p99=%.2f\n", s.TPOTP50Ms, s.TPOTP95Ms, s.TPOTP99Ms)
	fmt.Printf("latency_ms: p50=%.2f p95=%.2f p99=%.2f\n", s.LatencyP50Ms, s.LatencyP95Ms, s.LatencyP99Ms)
}
