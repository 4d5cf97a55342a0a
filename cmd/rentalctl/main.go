// Command rentalctl is an operator CLI for the rental service.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"rentalnexus/internal/clients"
	"rentalnexus/internal/config"
	"rentalnexus/internal/platform/logging"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "rentalctl",
	Short:         "Manage rental items and reservations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "rental API base URL (default from RENTAL_SERVICE_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (default from RENTAL_CLIENT_TIMEOUT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client activity to stderr")
	rootCmd.AddCommand(itemsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newClient() (*clients.RentalClient, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	url := baseURL
	if url == "" {
		url = cfg.RentalServiceURL
	}
	t := timeout
	if t <= 0 {
		t = cfg.ClientTimeout
	}
	level := "error"
	if verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(os.Stderr, "rentalctl", level)
	return clients.NewRentalClient(url, t, clients.DefaultBreakerConfig(), logger), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
