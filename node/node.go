package node

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	"github.com/tendermint/tendermint/version"

	"strom_bft/amm"
	cfg "strom_bft/config"
	"strom_bft/consensus"
	"strom_bft/libs/metric"
	"strom_bft/libs/signoff"
	mempl "strom_bft/mempool"
	"strom_bft/privval"
	"strom_bft/rpc"
	"strom_bft/slot"
	"strom_bft/state"
	"strom_bft/store"
	"strom_bft/types"
)

// ParticipantChain 链上新块被观察到后在 barrier 上签到的名字
const ParticipantChain = "chain"

type Node struct {
	service.BaseService

	// config
	config  *cfg.Config
	genesis *types.GenesisDoc
	privVal types.PrivValidator

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// services
	store            *store.KVStore
	chain            *state.DevChain
	clock            *slot.BlockClock
	mempool          *mempl.ListMempool
	mempoolReactor   *mempl.Reactor
	consensusState   *consensus.ConsensusState
	consensusReactor *consensus.Reactor
	slotReactor      *slot.Reactor
	blockExec        *state.BlockExecutor
	barrier          *signoff.Barrier
	metricSet        *metric.MetricSet

	cancel        context.CancelFunc
	rpcListeners  []net.Listener
	prometheusSrv *http.Server
}

type Option func(*Node)

// Provider takes a config and a logger and returns a ready to go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// DefaultNewNode 从配置目录加载创世文件, 节点密钥和验证者密钥
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load or gen node key %s", config.NodeKeyFile())
	}
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}
	pv, err := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile(), config.PrivValidatorStateFile())
	if err != nil {
		return nil, err
	}
	return NewNode(config, genDoc, pv, nodeKey, logger)
}

func createTransport(
	config *cfg.Config,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)

	// Limit the number of incoming connections.
	max := config.P2P.MaxNumInboundPeers + len(splitAndTrimEmpty(config.P2P.UnconditionalPeerIDs, ",", " "))
	p2p.MultiplexTransportMaxIncomingConnections(max)(transport)

	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	mempoolReactor *mempl.Reactor,
	consensusReactor *consensus.Reactor,
	slotReactor *slot.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("MEMPOOL", mempoolReactor)
	sw.AddReactor("CONSENSUS", consensusReactor)
	sw.AddReactor("SLOT", slotReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func makeNodeInfo(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			version.P2PProtocol, // global
			version.BlockProtocol,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       genDoc.ChainID,
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			mempl.MempoolChannel,
			consensus.PreProposalChannel,
			consensus.AggregationChannel,
			consensus.ProposalChannel,
			consensus.AttestationChannel,
			slot.SlotChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress
	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}
	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

// loadValidators 优先使用 store 中保存的选举状态, 否则从创世文件构造
func loadValidators(kv *store.KVStore, genDoc *types.GenesisDoc, logger log.Logger) *types.ValidatorSet {
	vals, err := kv.LoadLeaderState()
	if err == nil && !vals.IsNilOrEmpty() {
		logger.Info("Loaded leader state from store", "block", vals.BlockNumber, "validators", vals.Size())
		return vals
	}
	return genDoc.ValidatorSet()
}

func loadPools(config *cfg.Config, logger log.Logger) (*amm.StaticPoolProvider, error) {
	path := config.Strom.PoolsPath()
	if !tmos.FileExists(path) {
		logger.Info("No pools file, starting without pools", "path", path)
		return amm.NewStaticPoolProvider(nil), nil
	}
	return amm.LoadPoolsFile(path)
}

func NewNode(config *cfg.Config,
	genDoc *types.GenesisDoc,
	privVal types.PrivValidator,
	nodeKey *p2p.NodeKey,
	logger log.Logger,
	options ...Option) (*Node, error) {
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, errors.Wrap(err, "invalid genesis doc")
	}

	kv, err := store.NewKVStore("strom", config.DBDir(), logger.With("module", "store"))
	if err != nil {
		return nil, err
	}
	vals := loadValidators(kv, genDoc, logger)

	pools, err := loadPools(config, logger)
	if err != nil {
		return nil, err
	}

	// 开发链
	startHeight := genDoc.InitialHeight
	if latest := kv.LatestHeight(); latest > startHeight {
		startHeight = latest
	}
	var chainOpts []state.DevChainOption
	if config.Strom.BlockProducer {
		chainOpts = append(chainOpts, state.AsBlockProducer())
	}
	chain := state.NewDevChain(startHeight, chainOpts...)
	chain.SetLogger(logger.With("module", "chain"))

	var clock *slot.BlockClock
	if config.Strom.BlockProducer {
		clock = slot.NewBlockClock(chain, config.Strom.DevBlockInterval)
		clock.SetLogger(logger.With("module", "slot"))
	}
	slotReactor := slot.NewReactor(chain)
	slotReactor.SetLogger(logger.With("module", "slot"))

	// mempool
	mempool := mempl.NewListMempool(config.Mempool, startHeight)
	mempool.SetLogger(logger.With("module", "mempool"))
	mempoolReactor := mempl.NewReactor(config.Mempool, mempool)
	mempoolReactor.SetLogger(logger.With("module", "mempool"))

	// consensus
	csMetrics := consensus.NopMetrics()
	if config.Strom.Prometheus {
		csMetrics = consensus.PrometheusMetrics(config.Strom.Namespace, "chain_id", genDoc.ChainID)
	}
	consensusState := consensus.NewConsensusState(config.Strom, vals, mempool, pools, chain,
		consensus.SetPrivValidator(privVal),
		consensus.SetStore(kv),
		consensus.SetMetrics(csMetrics),
	)
	consensusReactor := consensus.NewReactor(consensusState)
	consensusReactor.SetLogger(logger.With("module", "consensus"))

	// 订单池和链都处理完一个块之后才开始新的一轮
	barrier := signoff.NewBarrier(startHeight, consensusState.NewBlock, state.ParticipantMempool, ParticipantChain)
	blockExec := state.NewBlockExecutor(mempool, barrier)
	blockExec.SetLogger(logger.With("module", "state"))

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("consensus", consensusState.Metric()); err != nil {
		return nil, err
	}
	if err := metricSet.SetMetrics("mempool", mempool.Metric()); err != nil {
		return nil, err
	}

	p2pLogger := logger.With("module", "p2p")

	// setup node identity
	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc)
	if err != nil {
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(config, nodeInfo, nodeKey)

	// Setup Switch.
	sw := createSwitch(
		config, transport, mempoolReactor, consensusReactor, slotReactor, nodeInfo, nodeKey, p2pLogger,
	)

	node := &Node{
		config:    config,
		genesis:   genDoc,
		privVal:   privVal,
		transport: transport,
		sw:        sw,
		nodeInfo:  nodeInfo,
		nodeKey:   nodeKey,

		store:            kv,
		chain:            chain,
		clock:            clock,
		mempool:          mempool,
		mempoolReactor:   mempoolReactor,
		consensusState:   consensusState,
		consensusReactor: consensusReactor,
		slotReactor:      slotReactor,
		blockExec:        blockExec,
		barrier:          barrier,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}

	return node, nil
}

func (n *Node) OnStart() error {
	if n.config.Strom.Prometheus {
		n.prometheusSrv = n.startPrometheusServer(n.config.Strom.PrometheusListenAddr)
	}

	// rpc 在 p2p 之前启动, 方便外部观察启动过程
	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	if err := n.chain.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.applyBlocksRoutine(ctx, n.chain.WatchBlocks(ctx))
	go n.watchChainRoutine(ctx, n.chain.WatchBlocks(ctx))

	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// start the Switch
	if err := n.sw.Start(); err != nil {
		return err
	}

	if n.clock != nil {
		if err := n.clock.Start(); err != nil {
			return err
		}
	}

	n.Logger.Info("Dialing persistent peers", "peers", n.config.P2P.PersistentPeers)
	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return errors.Wrap(err, "could not dial peers from persistent_peers field")
	}

	return nil
}

func (n *Node) OnStop() {
	n.BaseService.OnStop()
	n.Logger.Info("Stopping Node")

	if n.clock != nil {
		if err := n.clock.Stop(); err != nil {
			n.Logger.Error("Error closing block clock", "err", err)
		}
	}
	if n.cancel != nil {
		n.cancel()
	}

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("Error closing switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("Error closing transport", "err", err)
	}
	if err := n.chain.Stop(); err != nil {
		n.Logger.Error("Error closing chain", "err", err)
	}

	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}

	if n.prometheusSrv != nil {
		if err := n.prometheusSrv.Shutdown(context.Background()); err != nil {
			n.Logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}

	if err := n.store.Close(); err != nil {
		n.Logger.Error("Error closing store", "err", err)
	}
}

// applyBlocksRoutine 新块先更新订单池, 然后订单池在 barrier 上签到
func (n *Node) applyBlocksRoutine(ctx context.Context, blocks <-chan *state.ChainBlock) {
	for {
		select {
		case block := <-blocks:
			if err := n.blockExec.ApplyBlock(block); err != nil {
				n.Logger.Error("Failed to apply block", "block", block, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchChainRoutine 链上新块被观察到后签到
// 开发链不会回滚, 新块的块高一定递增
func (n *Node) watchChainRoutine(ctx context.Context, blocks <-chan *state.ChainBlock) {
	for {
		select {
		case block := <-blocks:
			fired, err := n.barrier.SignOff(ParticipantChain, block.Number)
			if err != nil {
				n.Logger.Error("Chain failed to sign off", "block", block.Number, "err", err)
				continue
			}
			if len(fired) > 0 {
				n.Logger.Debug("Block signed off", "heights", fired)
			}
		case <-ctx.Done():
			return
		}
	}
}

// startRPC 注册 rpc.Routes, 同时提供 http 和 websocket
func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Mempool:   n.mempool,
		Consensus: n.consensusState,
		Store:     n.store,
		MetricSet: n.metricSet,
		Logger:    n.Logger.With("module", "rpc"),
	})

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	config := rpcserver.DefaultConfig()
	config.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	config.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listeners := make([]net.Listener, len(listenAddrs))
	for i, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcLogger := n.Logger.With("module", "rpc-server")
		wmLogger := rpcLogger.With("protocol", "websocket")
		wm := rpcserver.NewWebsocketManager(rpc.Routes,
			rpcserver.ReadLimit(config.MaxBodyBytes),
		)
		wm.SetLogger(wmLogger)
		mux.HandleFunc("/websocket", wm.WebsocketHandler)
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}

		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners[i] = listener
	}
	return listeners, nil
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on addr.
func (n *Node) startPrometheusServer(addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Error starting or closing listener:
			n.Logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) ConsensusState() *consensus.ConsensusState {
	return n.consensusState
}

func (n *Node) Mempool() *mempl.ListMempool {
	return n.mempool
}

func (n *Node) Chain() *state.DevChain {
	return n.chain
}

func (n *Node) Store() *store.KVStore {
	return n.store
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
