package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jupark12/go-plot-queue/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and one worker in a single process",
	Long: `Run the HTTP API and one worker in a single process.

This is the only mode that works with STORE_BACKEND=memory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API only",
	Args:  cobra.NoArgs,
	RunE:  runAPI,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single job worker",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

var (
	workerID      string
	serveWorkerID string
)

func init() {
	hostname, _ := os.Hostname()
	workerCmd.Flags().StringVar(&workerID, "id", fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()), "worker id used in logs and the job archive")
	serveCmd.Flags().StringVar(&serveWorkerID, "worker-id", "worker-1", "worker id used in logs and the job archive")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openArchive(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.NewServer(a.analytics, a.bus, cfg.HTTPAddr, logger).Start(ctx)
	})
	g.Go(func() error {
		a.newWorker(serveWorkerID).Run(ctx)
		return nil
	})

	logger.Info("plot service started", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "worker_id", serveWorkerID)
	err = g.Wait()
	logger.Info("shut down")
	return err
}

func runAPI(cmd *cobra.Command, args []string) error {
	if err := requireSharedStore("plotq api"); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return server.NewServer(a.analytics, a.bus, cfg.HTTPAddr, logger).Start(ctx)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := requireSharedStore("plotq worker"); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openArchive(ctx); err != nil {
		return err
	}

	a.newWorker(workerID).Run(ctx)
	return nil
}
