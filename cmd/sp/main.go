// Command sp runs and operates the streampulse engine: `sp serve` starts the
// stream processor, the remaining subcommands are thin clients for its HTTP
// control surface.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	httpURL    string
	jsonOutput bool
)

func defaultHTTPURL() string {
	if s := os.Getenv("STREAMPULSE_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:8083"
}

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Engagement telemetry stream processor",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "control surface URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output raw JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(injectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
