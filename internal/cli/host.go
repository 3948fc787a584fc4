package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/config"
	"github.com/roach88/ndvm/internal/host"
)

// HostOptions holds flags for the host command.
type HostOptions struct {
	*RootOptions
	entryFlags
}

// NewHostCommand creates the host command.
func NewHostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "host <program>",
		Short: "Serve one transaction to a guest over TCP",
		Long: `Listen on host.listen, accept one guest connection and answer its
requests while it executes <program>. The outcome is journaled in host.db.

Start a guest with "ndvm guest --connect <addr>" using the same role.

When instrumentation.prometheus is set, metrics are served on
instrumentation.prometheus_listen_addr at /metrics while the host runs.

Examples:
  ndvm host nondet.web --args '{"url": "https://example.com"}' --tx t1 --host.world world.cue
  ndvm host echo --args 42 --host.listen 127.0.0.1:7071 --instrumentation.prometheus`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, opts, args[0])
		},
	}

	d := config.Default()
	addEntryFlags(cmd, &opts.entryFlags)
	addHostFlags(cmd)
	cmd.Flags().String(config.KeyHostListen, d.Host.Listen, "TCP address guests connect to")
	cmd.Flags().Duration(config.KeyHostRequestTimeout, d.Host.RequestTimeout, "bound on reading one guest frame")
	cmd.Flags().Bool(config.KeyMetricsEnabled, d.Instrumentation.Prometheus, "serve Prometheus metrics")
	cmd.Flags().String(config.KeyMetricsListen, d.Instrumentation.PrometheusListenAddr, "Prometheus metrics address")
	return cmd
}

func runHost(cmd *cobra.Command, opts *HostOptions, program string) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	f := opts.formatter(cmd)

	tx, err := opts.tx(program)
	if err != nil {
		_ = f.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid transaction", err)
	}

	st, err := openStore(cfg.Host.DB, true)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := newMetrics(cfg)
	if err != nil {
		return err
	}
	h, err := newHost(cfg, logger, m, st, st, newRunner(cfg, logger, m))
	if err != nil {
		return err
	}

	if cfg.Instrumentation.Prometheus {
		srv := startMetricsServer(cfg.Instrumentation.PrometheusListenAddr, logger)
		defer shutdown(srv, logger)
	}

	ln, err := net.Listen("tcp", cfg.Host.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	f.VerboseLog("listening on %s for tx %s", ln.Addr(), tx.ID)
	logger.Info("waiting for guest", "addr", ln.Addr().String(), "tx", tx.ID, "role", tx.Role.String())

	out, err := serveOne(cmd.Context(), ln, h, tx)
	if err != nil && out.Result == nil {
		return WrapExitError(ExitFailure, "failed to serve guest", err)
	}

	view := resultView(out.Result)
	view["tx"] = calldata.Str(out.Tx)
	view["node"] = calldata.Str(out.Node)
	view["gas"] = calldata.NewUint(out.Gas)
	if err := f.Value(view); err != nil {
		return err
	}
	return outcomeError(out.Result)
}

// serveOne accepts a single connection on ln, serves tx over it and closes
// the listener. A transport failure is returned together with the VMError
// outcome the host recorded.
func serveOne(ctx context.Context, ln net.Listener, h *host.Host, tx host.Tx) (host.Outcome, error) {
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return host.Outcome{}, ctx.Err()
		}
		return host.Outcome{}, fmt.Errorf("accept: %w", err)
	}
	defer conn.Close()

	return h.Serve(ctx, conn, tx)
}

// startMetricsServer serves the default Prometheus registry on addr.
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
}
