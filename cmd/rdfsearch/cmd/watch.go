package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/rdfsearch/internal/dataset"
	"github.com/Aman-CERP/rdfsearch/internal/output"
	"github.com/Aman-CERP/rdfsearch/internal/sail"
	"github.com/Aman-CERP/rdfsearch/internal/telemetry"
)

func newWatchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch <dataset.yaml>",
		Short: "Keep the store in sync with a dataset file",
		Long: `Load a dataset file, then watch it and apply the difference between the
previous and the new contents every time it changes.

With --metrics-addr (or telemetry.metrics_addr) Prometheus metrics are
served on /metrics while watching.`,
		Example: `  rdfsearch watch places.yaml
  rdfsearch watch places.yaml --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == "" && loadedConfig != nil {
				metricsAddr = loadedConfig.Telemetry.MetricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, args[0], metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path, metricsAddr string) error {
	out := output.New(cmd.OutOrStdout())

	reg := prometheus.NewRegistry()
	s, err := openSail(ctx, sail.WithMetrics(telemetry.New(reg)))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	conn := s.Connect()
	defer func() { _ = conn.Close() }()

	var current *dataset.Dataset
	apply := func(ctx context.Context) error {
		next, err := dataset.Load(path)
		if err != nil {
			return err
		}
		ch, err := dataset.Sync(ctx, conn, current, next)
		if err != nil {
			return err
		}
		current = next
		out.Successf("%s: +%d -%d", path, ch.Added, ch.Removed)
		return nil
	}
	if err := apply(ctx); err != nil {
		return err
	}

	var debounce time.Duration
	if loadedConfig != nil {
		debounce = loadedConfig.WatchDebounce()
	}
	w, err := dataset.NewWatcher(path, debounce, slog.Default())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler(reg))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("metrics_listening", slog.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		out.Statusf("👀", "Watching %s (Ctrl+C to stop)", path)
		return w.Run(ctx, apply)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
