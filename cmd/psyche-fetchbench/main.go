// Command psyche-fetchbench drives a configured provider with concurrent
// get_samples calls and reports achieved throughput, standing in for the
// runner's benchmark tooling adapted to the retrieval contract.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucasonchain/psyche/pkg/providerconfig"
	"github.com/lucasonchain/psyche/pkg/token"
)

var log = logrus.New()

func main() {
	var (
		configPath  string
		duration    time.Duration
		concurrency int
		batchWidth  uint64
	)
	root := &cobra.Command{
		Use:   "psyche-fetchbench",
		Short: "Benchmark a provider's get_samples throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, duration, concurrency, batchWidth)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a provider config JSON file")
	root.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to drive the provider")
	root.Flags().IntVar(&concurrency, "concurrency", 8, "number of concurrent get_samples callers")
	root.Flags().Uint64Var(&batchWidth, "batch-width", 16, "sequences requested per get_samples call")
	root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		log.Fatalf("psyche-fetchbench: %v", err)
	}
}

func run(configPath string, duration time.Duration, concurrency int, batchWidth uint64) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	var cfg providerconfig.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration+10*time.Second)
	defer cancel()

	p, err := providerconfig.Build(ctx, cfg, http.DefaultClient, log, nil)
	if err != nil {
		return err
	}

	n := p.NumSequences()
	if n == 0 {
		return fmt.Errorf("psyche-fetchbench: provider exposes zero sequences")
	}
	if batchWidth > n {
		batchWidth = n
	}

	deadline := time.Now().Add(duration)
	var sequencesFetched, callsIssued, errCount atomic.Int64

	g, gctx := errgroup.WithContext(context.Background())
	for w := 0; w < concurrency; w++ {
		offset := uint64(w) * batchWidth
		g.Go(func() error {
			for time.Now().Before(deadline) {
				if err := gctx.Err(); err != nil {
					return nil
				}
				start := offset % n
				end := start + batchWidth - 1
				if end >= n {
					end = n - 1
				}
				seqs, err := p.GetSamples(gctx, token.NewBatchId(start, end))
				callsIssued.Add(1)
				if err != nil {
					errCount.Add(1)
					continue
				}
				sequencesFetched.Add(int64(len(seqs)))
				offset += batchWidth
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(deadline.Add(-duration))
	fetched := sequencesFetched.Load()
	fmt.Printf("calls=%d sequences=%d errors=%d elapsed=%s sequences/s=%.1f\n",
		callsIssued.Load(), fetched, errCount.Load(), elapsed, float64(fetched)/elapsed.Seconds())
	return nil
}
