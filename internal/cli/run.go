package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netprobe/internal/config"
	"github.com/netprobe/internal/dispatch"
	"github.com/netprobe/internal/logger"
	"github.com/netprobe/internal/metrics"
	"github.com/netprobe/internal/sink"
	"github.com/netprobe/internal/worker"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch every request in a config file",
	Long: `Run every request listed in a YAML configuration file through one
worker pool, printing each response and a summary per request.

Example:
  netprobe run --config netprobe.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "netprobe.yaml", "Path to configuration file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Colors)
	log.Info(fmt.Sprintf("[cli] netprobe starting (config: %s, requests: %d, workers: %d)",
		configPath, len(cfg.Requests), cfg.Dispatch.Parallelism))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return dispatchAll(ctx, cfg, cfg.Requests, dispatchOutput{
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
		summary: true,
	}, log)
}

// dispatchOutput is where responses and summaries are written.
type dispatchOutput struct {
	stdout  io.Writer
	stderr  io.Writer
	fs      afero.Fs
	summary bool
}

// dispatchAll runs each request in turn through one pool. Transport
// failures only show up in the logs and summaries; an error is returned
// only for requests that cannot be dispatched at all.
func dispatchAll(ctx context.Context, cfg *config.Config, requests []config.Request, out dispatchOutput, log *logger.Logger) error {
	for _, req := range requests {
		if err := config.ValidateRequest(req); err != nil {
			return fmt.Errorf("%s: %w", req.Name, err)
		}
	}

	m := metrics.New()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics, m.WithRuntimeCollectors(), log)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
		defer srv.SetReady(false)
		srv.SetReady(true)
	}

	pool := worker.NewPool(cfg.Dispatch, m, log)
	pool.Start()
	defer pool.Stop()

	clients := dispatch.NewClients(cfg.Transport, out.fs)
	defer dispatch.CloseClients(clients)

	d := dispatch.New(pool, clients, sink.New(out.stdout, out.fs, log), m, log, dispatch.Options{
		Timeout: cfg.Transport.Timeout,
	})

	for _, req := range requests {
		summary, err := d.Dispatch(ctx, req)
		if summary != nil && out.summary {
			fmt.Fprintln(out.stderr, renderSummary(out.stderr, summary))
		}
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				log.Warn("[cli] dispatch interrupted, remaining jobs were not submitted")
				return nil
			}
			return fmt.Errorf("%s: %w", req.Name, err)
		}
	}

	return nil
}
