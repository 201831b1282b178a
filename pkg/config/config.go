// Package config binds the engine's tunables to flags and an optional config file overlay, the way the teacher's
// config package binds flags from a parsed message (pkg/config/config.go in the retrieval pack): flag.Parse() first,
// then InitFlags loads the config file and calls flag.Set for every recognised key, and finally re-applies every flag
// given on the command line, so file values only take effect where the operator didn't already set them there.
//
// The teacher's config file format is a single .txtpb (protobuf text format) message, using annotated proto fields
// to find each flag's name at runtime. That relies on a generated package (kiwipb) that carries the flag_name
// extension; no such generated package exists for this module's config surface, and config-file marshalling was
// explicitly out of scope for this engine's own responsibilities. Instead, the overlay format here is the simplest
// thing that preserves the teacher's actual contract ("file sets flags, command line wins, missing file is not
// fatal"): a flat `key = value` file, one flag per line, '#' comments.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/scwright027/kv-engine/pkg/pager"
	"github.com/scwright027/kv-engine/pkg/utils"
	"github.com/scwright027/kv-engine/pkg/vbucket"
)

// CompressionMode selects whether the external item compressor is engaged (spec.md §6).
type CompressionMode string

const (
	CompressionOff     CompressionMode = "off"
	CompressionPassive CompressionMode = "passive"
	CompressionActive  CompressionMode = "active"
)

var (
	configFile = flag.String("config_file", "", "Path to a flat key=value configuration file overlay.")

	maxSize          = flag.Int64("max_size", 100<<20, "Bucket quota in bytes.")
	memLowWat        = flag.Int64("mem_low_wat", 75<<20, "Low watermark in bytes.")
	memHighWat       = flag.Int64("mem_high_wat", 85<<20, "High watermark in bytes.")
	htEvictionPolicy = flag.String("ht_eviction_policy", "2-bit_lru", "Eviction policy: 2-bit_lru or hifi_mfu.")
	ageP             = flag.Int("item_eviction_age_percentage", 5, "Age percentile (0..100) for threshold learning.")
	freqP            = flag.Int("item_eviction_freq_counter_age_threshold", 5,
		"Frequency percentile (0..100) for threshold learning.")
	compressionMode = flag.String("compression_mode", string(CompressionOff), "Compression mode: off/passive/active.")
	bucketType      = flag.String("bucket_type", "persistent_value_only",
		"Bucket type: persistent_value_only/persistent_full_eviction/ephemeral_auto_delete/ephemeral_fail_new_data.")

	expiryPagerPeriod = flag.Duration("expiry_pager_period", 5*time.Minute, "ExpiryPager sweep period.")
	expiryPagerJitter = flag.Duration("expiry_pager_jitter", 10*time.Second, "ExpiryPager sweep jitter.")

	numVBuckets = flag.Uint("num_vbuckets", 8, "Number of vBuckets in the bucket.")
)

// InitFlags parses command-line flags, then overlays values from -config_file if it can be opened. A missing or
// unreadable config file is not fatal: flags keep their command-line or default values, matching the teacher's
// "log and continue" behaviour.
func InitFlags() {
	flag.Parse()

	if *configFile == "" {
		return
	}
	f, err := os.Open(*configFile)
	if err != nil {
		slog.Error("Failed to open config file.", "error", err, "path", *configFile)
		return
	}
	defer func() { _ = f.Close() }()

	// Command-line flags win over the file: remember them and set them again after the overlay.
	cmdLine := make(map[string]string)
	flag.Visit(func(fl *flag.Flag) { cmdLine[fl.Name] = fl.Value.String() })

	if err := applyConfigFile(f); err != nil {
		slog.Error("Failed to apply config file.", "error", err, "path", *configFile)
	}
	for name, value := range cmdLine {
		_ = flag.Set(name, value)
	}
}

func applyConfigFile(f *os.File) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("malformed config line: %q", line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if err := flag.Set(key, value); err != nil {
			return fmt.Errorf("failed to set flag %s: %w", key, err)
		}
	}
	return scanner.Err()
}

// MaxSize returns the configured bucket quota in bytes.
func MaxSize() int64 { return *maxSize }

// MemLowWat returns the configured low watermark in bytes.
func MemLowWat() int64 { return *memLowWat }

// MemHighWat returns the configured high watermark in bytes.
func MemHighWat() int64 { return *memHighWat }

// HtEvictionPolicy parses -ht_eviction_policy into a pager.Policy, defaulting to 2-bit LRU on an unrecognised value.
func HtEvictionPolicy() pager.Policy {
	if strings.EqualFold(*htEvictionPolicy, "hifi_mfu") {
		return pager.HifiMFU
	}
	return pager.LRU2Bit
}

// ItemEvictionAgePercentage returns -item_eviction_age_percentage.
func ItemEvictionAgePercentage() int { return *ageP }

// ItemEvictionFreqCounterAgeThreshold returns -item_eviction_freq_counter_age_threshold.
func ItemEvictionFreqCounterAgeThreshold() int { return *freqP }

// CompressionModeValue parses -compression_mode.
func CompressionModeValue() CompressionMode {
	switch CompressionMode(strings.ToLower(*compressionMode)) {
	case CompressionPassive:
		return CompressionPassive
	case CompressionActive:
		return CompressionActive
	default:
		return CompressionOff
	}
}

// BucketType parses -bucket_type into a vbucket.Type, defaulting to persistent value-only on an unrecognised value.
func BucketType() vbucket.Type {
	switch strings.ToLower(*bucketType) {
	case "persistent_full_eviction":
		return vbucket.TypePersistentFullEviction
	case "ephemeral_auto_delete":
		return vbucket.TypeEphemeralAutoDelete
	case "ephemeral_fail_new_data":
		return vbucket.TypeEphemeralFailNewData
	default:
		return vbucket.TypePersistentValueOnly
	}
}

// durationCompare is the pkg/utils.CompareFn used to detect an unset (zero-value) duration flag below.
func durationCompare(a, b time.Duration) int { return int(a - b) }

// ExpiryPagerPeriod returns -expiry_pager_period, falling back to a sane default if it was explicitly set to zero
// (a zero ticker period would busy-loop).
func ExpiryPagerPeriod() time.Duration {
	if utils.IsZero(*expiryPagerPeriod, durationCompare) {
		return 5 * time.Minute
	}
	return *expiryPagerPeriod
}

// ExpiryPagerJitter returns -expiry_pager_jitter.
func ExpiryPagerJitter() time.Duration { return *expiryPagerJitter }

// NumVBuckets returns -num_vbuckets.
func NumVBuckets() uint16 { return uint16(*numVBuckets) }

// Validate checks the watermark ordering invariant spec.md §3 requires of every bucket: mem_low_wat < mem_high_wat
// < max_size. Operators are responsible for choosing the actual sizes (spec.md's own non-goal); this only catches
// configuration that can never satisfy the engine's contract.
func Validate() error {
	if !(MemLowWat() < MemHighWat() && MemHighWat() < MaxSize()) {
		return fmt.Errorf("config: watermarks must satisfy mem_low_wat(%d) < mem_high_wat(%d) < max_size(%d)",
			MemLowWat(), MemHighWat(), MaxSize())
	}
	return nil
}
