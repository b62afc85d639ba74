// Command mrserver runs the MapReduce coordinator's long-lived server
// process: it accepts jobs, runs the per-job Masters, and executes
// mapper/reducer sub-tasks against a bounded worker pool.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"mrcoordinator/internal/mapreduce"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		workers    int
		masters    int
		metrics    string
	)

	cmd := &cobra.Command{
		Use:   "mrserver <hdfs-host> <username>",
		Short: "Run the MapReduce coordinator server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdfsHost, username := args[0], args[1]

			logger := mapreduce.NewLogger("mrserver")
			if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
				logger.Debug().Msgf(format, a...)
			})); err != nil {
				logger.Warn().Err(err).Msg("failed to set GOMAXPROCS from cgroup quota")
			}

			cfg, err := mapreduce.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if masters > 0 {
				cfg.Masters = masters
			}
			if metrics != "" {
				cfg.MetricsAddr = metrics
			}

			logger.Info().Str("hdfs_host", hdfsHost).Str("username", username).
				Str("listen", cfg.Listen).Int("workers", cfg.Workers).Int("masters", cfg.Masters).
				Msg("starting server")

			var m *mapreduce.Metrics
			if cfg.MetricsAddr != "" {
				m = mapreduce.NewMetrics()
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", m.Handler())
					if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
						logger.Error().Err(err).Msg("metrics server exited")
					}
				}()
			}

			storage := mapreduce.NewStorage(cfg.StorageRoot)
			var workerQueueDepth, workerInFlight, masterInFlight prometheus.Gauge
			if m != nil {
				workerQueueDepth, workerInFlight, masterInFlight = m.WorkerQueueDepth, m.WorkerInFlight, m.MasterInFlight
			}
			workerPool := mapreduce.NewPool(cfg.Workers, workerQueueDepth, workerInFlight)
			masterPool := mapreduce.NewPool(cfg.Masters, nil, masterInFlight)

			listener, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
			}

			srv := mapreduce.NewServer(listener, storage, workerPool, masterPool, mapreduce.PluginLoader{}, logger, m)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				logger.Info().Msg("shutdown signal received, closing listener")
				listener.Close()
			}()

			if err := srv.Run(); err != nil {
				select {
				case <-ctx.Done():
					workerPool.Shutdown()
					masterPool.Shutdown()
					return nil
				default:
					return fmt.Errorf("server loop exited: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a config.yaml file")
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (overrides config)")
	cmd.Flags().IntVar(&masters, "masters", 0, "master pool size (overrides config)")
	cmd.Flags().StringVar(&metrics, "metrics-addr", "", "address to serve /metrics on (overrides config)")
	return cmd
}
