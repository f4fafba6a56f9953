package commands

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "strom_bft/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a strom node
func AddNodeFlags(cmd *cobra.Command) {
	// bind flags
	cmd.Flags().String("moniker", config.Moniker, "node name")

	// p2p flags
	cmd.Flags().String(
		"p2p.laddr",
		config.P2P.ListenAddress,
		"node listen address. (0.0.0.0:0 means any interface, any port)")
	cmd.Flags().String("p2p.persistent_peers", config.P2P.PersistentPeers, "comma-delimited ID@host:port persistent peers")
	cmd.Flags().String("p2p.external-address", config.P2P.ExternalAddress, "ip:port address to advertise to peers for them to dial")

	// rpc flags
	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address. Port required")

	// strom flags
	cmd.Flags().Duration(
		"strom.consensus_wait_duration",
		config.Strom.ConsensusWaitDuration,
		"how long a round collects orders before signing its pre-proposal")
	cmd.Flags().Duration("strom.dev_block_interval", config.Strom.DevBlockInterval, "dev chain block interval")
	cmd.Flags().Bool("strom.block_producer", config.Strom.BlockProducer, "mine dev chain blocks on this node")
	cmd.Flags().Bool("strom.prometheus", config.Strom.Prometheus, "serve prometheus metrics")
	cmd.Flags().Int("strom.matching_workers", config.Strom.MatchingWorkers, "pools solved in parallel (0 = number of CPUs)")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
// It can be used with a custom PrivValidator and in-process ABCI application.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the strom node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				return errors.Wrap(err, "failed to create node")
			}

			if err := n.Start(); err != nil {
				return errors.Wrap(err, "failed to start node")
			}

			logger.Info("Started node", "nodeInfo", n.Switch().NodeInfo())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
