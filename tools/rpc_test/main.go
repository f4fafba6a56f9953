package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tmjson "github.com/tendermint/tendermint/libs/json"
	rpcclient "github.com/tendermint/tendermint/rpc/jsonrpc/client"

	"strom_bft/rpc"
)

// 按固定间隔轮询节点的 leader, round_state 和 metrics
func main() {
	var (
		remote   = flag.String("remote", "http://127.0.0.1:26657", "rpc address of the node")
		interval = flag.Duration("interval", time.Second, "poll interval")
		count    = flag.Int("n", 10, "number of polls, 0 to poll forever")
	)
	flag.Parse()

	c, err := rpcclient.New(*remote)
	if err != nil {
		fmt.Printf("failed to create client: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for i := 0; *count == 0 || i < *count; i++ {
		leader := new(rpc.ResultLeader)
		if _, err := c.Call(ctx, "leader", map[string]interface{}{}, leader); err != nil {
			fmt.Printf("leader: %v\n", err)
		} else {
			fmt.Printf("height %d leader %s self %s\n", leader.Height, leader.Leader, leader.Self)
		}

		rs := new(rpc.ResultRoundState)
		if _, err := c.Call(ctx, "round_state", map[string]interface{}{}, rs); err == nil {
			bz, _ := tmjson.MarshalIndent(rs, "", "  ")
			fmt.Println(string(bz))
		}

		ms := new(rpc.ResultMetrics)
		if _, err := c.Call(ctx, "metrics", map[string]interface{}{"label": ""}, ms); err == nil {
			for label, m := range ms.Metrics {
				fmt.Printf("[%s] %s\n", label, m)
			}
		}
		time.Sleep(*interval)
	}
}
