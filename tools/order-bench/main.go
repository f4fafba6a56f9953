package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"

	"strom_bft/types"
)

var (
	duration    int
	rate        int
	connections int
	pools       string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:     "order-bench [endpoints]",
	Short:   "Send random limit orders to strom nodes and report throughput",
	Example: `order-bench -T 30 -r 1000 -c 2 --pools 0x01..,0x02.. localhost:26657`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runBench,
}

func init() {
	rootCmd.Flags().IntVarP(&duration, "duration", "T", 10, "Exit after the specified amount of time in seconds")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 100, "Orders per second to send in a connection")
	rootCmd.Flags().IntVarP(&connections, "connections", "c", 1, "Connections to open to each endpoint")
	rootCmd.Flags().StringVar(&pools, "pools", "", "Comma separated pool ids (hex) the orders are spread over")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func runBench(cmd *cobra.Command, args []string) error {
	logger := log.NewNopLogger()
	if verbose {
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout)).With("module", "order-bench")
	}

	var poolIDs []types.Hash
	for _, p := range strings.Split(pools, ",") {
		if p = strings.TrimSpace(p); p != "" {
			poolIDs = append(poolIDs, types.HexToHash(p))
		}
	}
	if len(poolIDs) == 0 {
		return fmt.Errorf("at least one pool id is required (--pools)")
	}

	transacters := make([]*transacter, 0, len(args))
	for _, endpoint := range args {
		t := newTransacter(endpoint, connections, rate, poolIDs)
		t.SetLogger(logger)
		if err := t.Start(); err != nil {
			return err
		}
		transacters = append(transacters, t)
	}

	stop := make(chan struct{})
	tmos.TrapSignal(logger, func() {
		close(stop)
	})

	start := time.Now()
	select {
	case <-time.After(time.Duration(duration) * time.Second):
	case <-stop:
	}
	for _, t := range transacters {
		t.Stop()
	}
	printStatistics(transacters, time.Since(start))
	return nil
}

func printStatistics(transacters []*transacter, elapsed time.Duration) {
	var sent, accepted, rejected int64
	sendTime := metrics.NewHistogram(metrics.NewUniformSample(1000))
	for _, t := range transacters {
		sent += t.sent.Count()
		accepted += t.accepted.Count()
		rejected += t.rejected.Count()
		for _, v := range t.sendTime.Snapshot().Sample().Values() {
			sendTime.Update(v)
		}
	}

	fmt.Printf("Elapsed:   %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Sent:      %d (%.2f orders/s)\n", sent, float64(sent)/elapsed.Seconds())
	fmt.Printf("Accepted:  %d\n", accepted)
	fmt.Printf("Rejected:  %d\n", rejected)
	fmt.Printf("Batch send time: avg %v, p99 %v, max %v\n",
		time.Duration(int64(sendTime.Mean())),
		time.Duration(int64(sendTime.Percentile(0.99))),
		time.Duration(sendTime.Max()))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
