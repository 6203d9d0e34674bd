package main

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
	qhttp "github.com/iclim/ml-app/http"
	"github.com/iclim/ml-app/monitoring"
	"github.com/iclim/ml-app/registry"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load every model and start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()
	var hub *monitoring.EventHub
	rt, err := newRuntime(func(logger *zap.Logger) []registry.Option {
		hub = monitoring.NewEventHub(logger.Named("events"), nil)
		return []registry.Option{registry.WithObserver(metrics), registry.WithObserver(hub)}
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	go hub.Run(ctx)

	// Models load before the listener opens.
	report := rt.registry.LoadAll(ctx)
	if !report.Healthy() {
		logger.Warn("serving with unavailable models", zap.Error(report.Err))
	}

	if rt.cfg.Artifacts.Watch {
		if files, ok := rt.source.(*artifact.FileSource); ok {
			if err := rt.registry.Watch(ctx, files.Dir(), 0); err != nil {
				logger.Warn("artifact watcher disabled", zap.Error(err))
			}
		} else {
			logger.Warn("artifact watching needs the file backend", zap.String("backend", rt.cfg.Artifacts.Backend))
		}
	}

	serverCfg := qhttp.ServerConfigFrom(rt.cfg.HTTP)
	if servePort > 0 {
		serverCfg.Port = servePort
	}
	server := qhttp.NewServer(serverCfg, qhttp.Deps{
		Registry: rt.registry,
		Catalog:  rt.cfg.FeatureCounts(),
		Metrics:  metrics,
		Events:   hub,
		Logger:   logger,
	})

	listener, err := net.Listen("tcp", server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", server.Addr(), err)
	}
	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(listener)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		return err
	}
	logger.Info("exiting")
	return nil
}
