package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
	"github.com/iclim/ml-app/config"
	"github.com/iclim/ml-app/db"
	"github.com/iclim/ml-app/logging"
	"github.com/iclim/ml-app/registry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mlapp",
	Short:         "Serve pre-trained models over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (defaults apply when empty)")
	rootCmd.AddCommand(serveCmd, checkCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runtime is everything a command needs, built from one config.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	source   artifact.Source
	registry *registry.Registry
	closers  []io.Closer
}

// newRuntime loads config, opens the artifact source and registers every
// configured model. observe may add registry options that need the logger.
func newRuntime(observe func(logger *zap.Logger) []registry.Option) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	switch cfg.Artifacts.Backend {
	case config.BackendSQLite:
		store, err := db.Open(cfg.Artifacts.SQLitePath)
		if err != nil {
			logCloser.Close()
			return nil, err
		}
		rt.source = store
		rt.closers = append(rt.closers, store)
	default:
		rt.source = artifact.NewFileSource(cfg.Artifacts.Dir)
	}
	rt.closers = append(rt.closers, logCloser)

	opts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithCacheSize(cfg.Cache.Size),
	}
	if observe != nil {
		opts = append(opts, observe(logger)...)
	}
	rt.registry = registry.New(rt.source, opts...)
	for _, model := range cfg.Models {
		if err := rt.registry.Register(model.Name); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) Close() {
	for _, c := range rt.closers {
		c.Close()
	}
}
