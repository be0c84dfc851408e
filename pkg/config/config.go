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

// Package config loads the demo binary's configuration from flags and,
// optionally, a local .env file. It is deliberately thin: pkg/balancer
// and pkg/driver never import it, so callers embedding this module in a
// larger process are free to build balancer.Config some other way.
package config

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/kedacore/partbalance/pkg/balancer"
	"github.com/kedacore/partbalance/pkg/driver"
)

// Config holds everything needed to wire a Balancer and a Driver.
type Config struct {
	OwnerID          string
	Namespace        string
	Hub              string
	ConsumerGroup    string
	ExpirationWindow time.Duration
	TickInterval     time.Duration
	Partitions       int

	// UseBlobStore, BlobContainer, and BlobServiceURL select the Azure
	// blob-backed ownership store instead of the in-memory one.
	UseBlobStore   bool
	BlobContainer  string
	BlobServiceURL string

	// PromListenAddr, when non-empty, serves /metrics on this address.
	PromListenAddr string
}

// Load parses flags from args (typically os.Args[1:]) and returns a Config.
// It first loads a local .env file, if present, into the process
// environment. No flag takes its default from the environment, so the
// returned Config comes only from the flag defaults and args; values in
// .env do not change it.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("partbalance-demo", pflag.ContinueOnError)

	var cfg Config
	fs.StringVar(&cfg.OwnerID, "owner-id", defaultOwnerID(), "Unique identifier for this instance. Defaults to a generated UUID.")
	fs.StringVar(&cfg.Namespace, "namespace", "", "Event Hubs namespace.")
	fs.StringVar(&cfg.Hub, "hub", "", "Event hub name.")
	fs.StringVar(&cfg.ConsumerGroup, "consumer-group", "$Default", "Consumer group name.")
	fs.DurationVar(&cfg.ExpirationWindow, "expiration-window", 30*time.Second, "Duration after which an un-renewed ownership record is considered orphaned.")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", 10*time.Second, "Delay between balancer ticks.")
	fs.IntVar(&cfg.Partitions, "partitions", 4, "Number of partitions in the hub, numbered \"0\"..\"partitions-1\".")
	fs.BoolVar(&cfg.UseBlobStore, "use-blob-store", false, "Use the Azure blob ownership store instead of the in-memory one.")
	fs.StringVar(&cfg.BlobContainer, "blob-container", "partbalance-ownership", "Blob container name, when --use-blob-store is set.")
	fs.StringVar(&cfg.BlobServiceURL, "blob-service-url", "", "Azure blob service URL, when --use-blob-store is set.")
	fs.StringVar(&cfg.PromListenAddr, "metrics-bind-address", ":9090", "Address to serve Prometheus metrics on. Empty disables the server.")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultOwnerID() string {
	return uuid.NewString()
}

// BalancerConfig maps Config onto balancer.Config, leaving Logger and
// Telemetry for the caller to fill in.
func (c Config) BalancerConfig() balancer.Config {
	return balancer.Config{
		OwnerID:          c.OwnerID,
		Namespace:        c.Namespace,
		Hub:              c.Hub,
		ConsumerGroup:    c.ConsumerGroup,
		ExpirationWindow: c.ExpirationWindow,
	}
}

// DriverConfig maps Config onto driver.Config for the given partition set.
func (c Config) DriverConfig(partitionIDs []string) driver.Config {
	return driver.Config{
		TickInterval: c.TickInterval,
		PartitionIDs: partitionIDs,
	}
}

// PartitionIDs returns the partition ID set "0".."Partitions-1", matching
// the naming the balancer and memstore tests use.
func (c Config) PartitionIDs() []string {
	ids := make([]string, c.Partitions)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids
}
