// cmd/models.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggcore/gg-core/internal/ipc"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect loaded models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded models and total reserved memory",
	RunE:  runModelsList,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
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

	reply, err := client.Send(ipc.ModelsListRequest{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		os.Exit(3)
		return nil
	}

	switch m := reply.(type) {
	case ipc.ModelsListResponse:
		if len(m.ModelIDs) == 0 {
			fmt.Println("no models loaded")
		}
		for _, id := range m.ModelIDs {
			fmt.Println(id)
		}
		fmt.Printf("total_memory_bytes: %d\n", m.TotalMemoryBytes)
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
