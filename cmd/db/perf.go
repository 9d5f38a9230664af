package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mpetrunic/ChainGuardian/cmd/util"
	libdb "github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for database servers",
		Long:    "Runs every operation of the remote store from several goroutines and reports latency percentiles. All test keys use the prefix __perf and are deleted afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOpsPerThread     = 1000
	perfSkip             = make([]string, 0)

	perfPercentiles = []float64{0.5, 0.9, 0.99}
)

// perfTest is one benchmark. op is called perfOpsPerThread times by every thread.
type perfTest struct {
	name    string
	prepare func(ctx context.Context, keys [][]byte) error
	op      func(ctx context.Context, keys [][]byte, i int) error
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per goroutine and benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOpsPerThread = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	_, _, err := util.GetBucket()
	return err
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for database servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Operations per thread: %d\n", perfNumThreads, perfOpsPerThread)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := context.Background()
	small := []byte("test")
	large := make([]byte, perfLargeValueSizeKB*1024)

	setAll := func(ctx context.Context, keys [][]byte) error {
		items := make([]libdb.KeyValue, len(keys))
		for i, key := range keys {
			items[i] = libdb.KeyValue{Key: key, Value: small}
		}
		_, err := rpcStore.BatchPut(ctx, items)
		return err
	}

	tests := []perfTest{
		{name: "put", op: func(ctx context.Context, keys [][]byte, i int) error {
			return rpcStore.Put(ctx, keys[i%len(keys)], small)
		}},
		{name: "put-large", op: func(ctx context.Context, keys [][]byte, i int) error {
			return rpcStore.Put(ctx, keys[i%len(keys)], large)
		}},
		{name: "get", prepare: setAll, op: func(ctx context.Context, keys [][]byte, i int) error {
			_, _, err := rpcStore.Get(ctx, keys[i%len(keys)])
			return err
		}},
		{name: "has", prepare: setAll, op: func(ctx context.Context, keys [][]byte, i int) error {
			_, err := rpcStore.Has(ctx, keys[i%len(keys)])
			return err
		}},
		{name: "has-not", op: func(ctx context.Context, keys [][]byte, i int) error {
			_, err := rpcStore.Has(ctx, keys[i%len(keys)])
			return err
		}},
		{name: "delete", prepare: setAll, op: func(ctx context.Context, keys [][]byte, i int) error {
			return rpcStore.Delete(ctx, keys[i%len(keys)])
		}},
		{name: "batch-put", op: func(ctx context.Context, keys [][]byte, _ int) error {
			return setAll(ctx, keys)
		}},
		{name: "stream", prepare: setAll, op: func(ctx context.Context, keys [][]byte, _ int) error {
			prefix, err := util.ComposeKey(perfKeyPrefix + "-stream-")
			if err != nil {
				return err
			}
			stream, err := rpcStore.ValuesStream(ctx, libdb.PrefixFilter(prefix))
			if err != nil {
				return err
			}
			_, err = libdb.Collect(stream)
			return err
		}},
		{name: "mixed", prepare: setAll, op: func(ctx context.Context, keys [][]byte, i int) error {
			key := keys[i%len(keys)]
			var err error
			switch i % 4 {
			case 0:
				err = rpcStore.Put(ctx, key, small)
			case 1:
				_, _, err = rpcStore.Get(ctx, key)
			case 2:
				err = rpcStore.Delete(ctx, key)
			case 3:
				_, err = rpcStore.Has(ctx, key)
			}
			return err
		}},
	}

	// Create results registry
	results := metrics.NewRegistry()
	order := make([]string, 0, len(tests))

	for _, test := range tests {
		if shouldSkip(test.name) {
			fmt.Printf("%-12sskipped\n", test.name)
			continue
		}
		timer, errs, err := runPerfTest(ctx, test)
		if err != nil {
			return fmt.Errorf("(%s) %w", test.name, err)
		}
		_ = results.Register(test.name, timer)
		order = append(order, test.name)
		printResult(test.name, timer, errs)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runPerfTest runs one test from all threads and returns the latency timer and the number of failed operations
func runPerfTest(ctx context.Context, test perfTest) (metrics.Timer, int64, error) {
	keys := getKeys(test.name)
	defer func() {
		if err := rpcStore.BatchDelete(ctx, keys); err != nil {
			util.Logger.Warningf("(%s) - error deleting keys: %v", test.name, err)
		}
	}()

	if test.prepare != nil {
		if err := test.prepare(ctx, keys); err != nil {
			return nil, 0, err
		}
	}

	timer := metrics.NewTimer()
	failed := metrics.NewCounter()

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < perfOpsPerThread; i++ {
				start := time.Now()
				if err := test.op(ctx, keys, offset+i); err != nil {
					failed.Inc(1)
					util.Logger.Debugf("(%s) - error: %v", test.name, err)
					continue
				}
				timer.UpdateSince(start)
			}
		}(t * perfOpsPerThread)
	}
	wg.Wait()

	return timer, failed.Count(), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of a benchmark, composed into the --bucket if one is set
func getKeys(prefix string) [][]byte {
	keys := make([][]byte, perfKeySpread)
	for i := range keys {
		// the bucket was validated by processPerfConfig
		keys[i], _ = util.ComposeKey(fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i))
	}
	return keys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, timer metrics.Timer, failed int64) {
	if timer.Count() == 0 {
		fmt.Printf("%-12sno successful operations (%d failed)\n", test, failed)
		return
	}

	ps := timer.Percentiles(perfPercentiles)
	fmt.Printf("%-12s%8d ops  mean %-12s p50 %-12s p90 %-12s p99 %-12s %.0f ops/sec  (%d failed)\n",
		test,
		timer.Count(),
		time.Duration(timer.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
		timer.RateMean(),
		failed,
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results metrics.Registry) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "MeanNs", "P50Ns", "P90Ns", "P99Ns", "MaxNs", "OpsPerSec",
		"Endpoints", "TimeoutSec", "Serializer", "Transport",
		"Threads", "OpsPerThread", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	clientConfig := util.GetClientConfig()

	// Write test results
	for _, test := range order {
		timer, ok := results.Get(test).(metrics.Timer)
		if !ok {
			continue
		}
		ps := timer.Percentiles(perfPercentiles)

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.FormatInt(timer.Max(), 10),
			fmt.Sprintf("%.0f", timer.RateMean()),
			strings.Join(clientConfig.Transport.Endpoints, ";"),
			strconv.Itoa(clientConfig.TimeoutSecond),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfOpsPerThread),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
