// Spins up an in-memory bucket with its pager subsystem wired together: ItemPager on high-watermark crossings,
// ExpiryPager on a timer, both fed by a MemoryWatcher. It has no client-facing wire protocol (out of scope); it
// seeds itself with synthetic writes so the pager subsystem has something to do.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/scwright027/kv-engine/pkg/checkpoint"
	"github.com/scwright027/kv-engine/pkg/config"
	"github.com/scwright027/kv-engine/pkg/histogram"
	"github.com/scwright027/kv-engine/pkg/item"
	"github.com/scwright027/kv-engine/pkg/pager"
	"github.com/scwright027/kv-engine/pkg/utils"
	"github.com/scwright027/kv-engine/pkg/vbucket"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("kv-engine build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}
	if err := config.Validate(); err != nil {
		slog.Error("Invalid configuration.", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, os.Kill)
	go func() {
		sig := <-signals
		slog.Info("Received termination signal, cancelling engine context.", "signal", sig)
		cancel()
	}()

	bucket, itemPager, expiryPager, mem := buildEngine(ctx)
	expiryPager.Enable(ctx)
	if itemPager != nil {
		itemPager.Start(ctx)
	}

	router := vbucket.NewRouter(config.NumVBuckets())
	slog.Info("Engine ready.", "bucket_type", bucket.Type, "max_size", bucket.MaxSize,
		"low_wat", bucket.LowWat, "high_wat", bucket.HighWat, "num_vbuckets", config.NumVBuckets())

	seedSyntheticLoad(ctx, bucket, router, mem)

	<-ctx.Done()
	if itemPager != nil {
		itemPager.Shutdown()
	}
	expiryPager.Shutdown()
}

// buildEngine wires a Bucket, its vBuckets, checkpoint manager, flusher, memory watcher, and the two pager tasks
// from the resolved configuration. ephemeral-fail-new-data has no ItemPager at all (spec.md §4.4): the memory
// watcher wakes the ExpiryPager instead, which is its only reclamation mechanism.
func buildEngine(ctx context.Context) (*vbucket.Bucket, *pager.ItemPager, *pager.ExpiryPager, *pager.MemoryWatcher) {
	flusher := vbucket.NewEagerFlusher()
	cm := checkpoint.NewRefCountManager()

	bucket := vbucket.New("default", config.BucketType(), config.MaxSize(), config.MemLowWat(), config.MemHighWat(),
		flusher)
	for vbid := uint16(0); vbid < config.NumVBuckets(); vbid++ {
		vb := vbucket.NewVBucket(vbid, vbucket.StateActive, cm)
		bucket.AddVBucket(vb)
		flusher.Register(vb)
	}

	mem := pager.NewMemoryWatcher(config.MaxSize(), config.MemHighWat(), nil)
	expiryPager := pager.NewExpiryPager(ctx, bucket, flusher, pager.RealClock, config.ExpiryPagerPeriod(),
		config.ExpiryPagerJitter())

	var itemPager *pager.ItemPager
	if bucket.Type != vbucket.TypeEphemeralFailNewData {
		itemPager = pager.NewItemPager(ctx, bucket, flusher, pager.RealClock, mem, config.HtEvictionPolicy(), 1.0,
			config.ItemEvictionAgePercentage(), config.ItemEvictionFreqCounterAgeThreshold())
		mem.SetWaker(itemPager)
	} else {
		mem.SetWaker(expiryPager)
	}
	return bucket, itemPager, expiryPager, mem
}

// seedSyntheticLoad writes a slow trickle of items so the pager subsystem has live data to act on; this demo has
// no client-facing write path of its own (spec.md's scope is the pager, not the protocol).
func seedSyntheticLoad(ctx context.Context, bucket *vbucket.Bucket, router *vbucket.Router, mem *pager.MemoryWatcher) {
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				seq++
				kv := utils.BytePair{Key: []byte("demo-key"), Value: make([]byte, 512)}
				kv.Key = append(kv.Key, byte(seq), byte(seq>>8))
				vbid := router.VBucketFor(kv.Key)
				vb := bucket.VBucket(vbid)
				if vb == nil {
					continue
				}
				if err := mem.Reserve(int64(len(kv.Key) + len(kv.Value) + 32)); err != nil {
					slog.Warn("Write rejected: quota exceeded.", "vbid", vbid)
					continue
				}
				it := item.New(vbid, kv.Key, kv.Value, histogram.InitialFreqCount)
				it.RevSeq = seq
				vb.HashTable.Set(it)
			}
		}
	}()
}
