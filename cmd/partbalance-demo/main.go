/*
Copyright 2021 The KEDA Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command partbalance-demo is a minimal composition root: it wires a
// Balancer, a Driver, and a telemetry Recorder against either the
// in-memory store or the Azure blob store, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kedacore/partbalance/pkg/balancer"
	"github.com/kedacore/partbalance/pkg/config"
	"github.com/kedacore/partbalance/pkg/driver"
	"github.com/kedacore/partbalance/pkg/store"
	"github.com/kedacore/partbalance/pkg/store/blobstore"
	"github.com/kedacore/partbalance/pkg/store/memstore"
	"github.com/kedacore/partbalance/pkg/telemetry"
)

// noopReader satisfies driver.PartitionReader by doing nothing; the demo
// exists to exercise the balancer and driver, not a real event consumer.
type noopReader struct {
	logger logr.Logger
}

func (r noopReader) Start(_ context.Context, partitionID string) error {
	r.logger.Info("would start consuming partition", "partitionID", partitionID)
	return nil
}

func (r noopReader) Stop(partitionID string) error {
	r.logger.Info("would stop consuming partition", "partitionID", partitionID)
	return nil
}

func main() {
	logger := stdr.New(nil).WithName("partbalance-demo")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	st, err := buildStore(cfg)
	if err != nil {
		logger.Error(err, "failed to build ownership store")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	promRecorder, err := telemetry.NewPromRecorder(registry, cfg.OwnerID)
	if err != nil {
		logger.Error(err, "failed to register metrics")
		os.Exit(1)
	}

	bcfg := cfg.BalancerConfig()
	bcfg.Logger = logger
	bcfg.Telemetry = promRecorder

	b, err := balancer.New(bcfg, st)
	if err != nil {
		logger.Error(err, "failed to construct balancer")
		os.Exit(1)
	}

	if cfg.PromListenAddr != "" {
		go serveMetrics(cfg.PromListenAddr, registry, logger)
	}

	dcfg := cfg.DriverConfig(cfg.PartitionIDs())
	dcfg.Logger = logger
	d := driver.New(dcfg, b, noopReader{logger: logger})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		logger.Error(err, "driver exited with error")
		os.Exit(1)
	}
}

func buildStore(cfg config.Config) (store.Store, error) {
	if !cfg.UseBlobStore {
		return memstore.New(), nil
	}
	if cfg.BlobServiceURL == "" {
		return nil, fmt.Errorf("--blob-service-url is required when --use-blob-store is set")
	}
	client, err := azblob.NewClientWithNoCredential(cfg.BlobServiceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing blob client: %w", err)
	}
	return blobstore.New(client, cfg.BlobContainer), nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger logr.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // demo binary, no need for timeouts tuning
		logger.Error(err, "metrics server exited")
	}
}
