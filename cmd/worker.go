package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/backstage/allegro/internal/repositories"
	"example.com/backstage/allegro/internal/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the order processors",
	Long: `Start the periodic processors that follow the marketplace journal, refund
unpaid deals, leave feedback, send virtual item codes and refresh auctions.
The health and metrics endpoints are served alongside.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := scheduler.NewGocronScheduler(ctx)
	if err != nil {
		return err
	}

	harness := scheduler.NewHarness(sched, repositories.NewJobRepository(a.db), a.tracer, a.prom, a.stats, cfg.InstanceID)
	if err := harness.Bootstrap(ctx, a.processors()); err != nil {
		return err
	}

	server := a.server()

	g.Go(func() error {
		log.Info().Str("owner", harness.Owner()).Msg("Starting order processors")
		sched.Start()

		<-ctx.Done()

		log.Info().Msg("Stopping order processors")
		return sched.Shutdown()
	})

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shut down gracefully")
	return nil
}
