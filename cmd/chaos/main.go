package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentalnexus/internal/chaos"
	"rentalnexus/internal/clients"
	"rentalnexus/internal/config"
	"rentalnexus/internal/platform/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL     string
		concurrency int
		observe     time.Duration
		sampleEvery time.Duration
	)

	cmd := &cobra.Command{
		Use:           "chaos",
		Short:         "Run the rental double-booking game day against a live service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			logger := logging.New("chaos", cfg.LogLevel)
			if baseURL == "" {
				baseURL = cfg.RentalServiceURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := clients.NewRentalClient(baseURL, cfg.ClientTimeout, clients.DefaultBreakerConfig(), logger)
			engine := chaos.NewEngine(logger, chaos.WithSampleEvery(sampleEvery))
			engine.RegisterRentalExperiments(client, concurrency, observe)

			passed, err := engine.ExecuteGameDay(ctx, chaos.GameDay{
				Name:      "Rental Double-Booking Game Day",
				Date:      time.Now(),
				Scenarios: engine.Experiments(),
			})
			if err != nil {
				logger.Error("game day aborted", "error", err)
				return err
			}
			for _, r := range engine.Results() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s held=%-5t violations=%d failed=%v\n",
					r.ExperimentName, r.HypothesisHeld, len(r.Violations), r.FailedAssertions)
			}
			if !passed {
				return fmt.Errorf("game day failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "rental service base URL (default from RENTAL_SERVICE_URL)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 32, "concurrent callers per experiment")
	cmd.Flags().DurationVar(&observe, "observe", 5*time.Second, "observation period after the method")
	cmd.Flags().DurationVar(&sampleEvery, "sample-every", time.Second, "metric sampling interval")
	return cmd
}
