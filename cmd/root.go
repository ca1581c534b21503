// cmd/root.go
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	socketPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "gg-core",
	Short: "Sandboxed local inference runtime",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the runtime config YAML file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "override the IPC socket path (defaults to $GG_CORE_SOCKET_PATH or the config file's value)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
}

// resolveSocketPath applies the precedence order: --socket flag,
// GG_CORE_SOCKET_PATH env var, then the loaded config's ipc.socket_path.
func resolveSocketPath(fromConfig string) string {
	if socketPath != "" {
		return socketPath
	}
	if env := os.Getenv("GG_CORE_SOCKET_PATH"); env != "" {
		return env
	}
	if fromConfig != "" {
		return fromConfig
	}
	return "/var/run/gg-core/gg-core.sock"
}
