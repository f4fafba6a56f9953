package consensus

//
//          new block (sign-off barrier)
//                  |
//                  v
//  +----------------------------+  wait consensus_wait_duration,
//  |       BidAggregation       |  messages are buffered
//  +-------------+--------------+
//                | sign own PreProposal, replay buffer
//                v
//  +----------------------------+
//  |        PreProposal         |  >= 1 PreProposal known
//  +-------------+--------------+
//                | sign own aggregation
//                v
//  +----------------------------+  proposal/attestation from the leader
//  |   PreProposalAggregation   +---------------------------+
//  +-------------+--------------+                           |
//                | leader and ⌈2n/3⌉ aggregations            |
//                v                                          v
//  +----------------------------+  included on chain  +-------------+
//  |    Proposal (leader only)  +-------------------->| Finalization|
//  +----------------------------+  or failed (none)   +-------------+
//

//ConsensusState - 共识状态机，负责共识逻辑的推进，main goroutine
//	- Round - 一个块高对应的一轮, 新块到达时整轮丢弃; Phase 是五个阶段的 tagged union
//	- ValidatorSet - 出块者选举状态, 跨轮保留
//	- Mempool - 订单池, 每轮开始时读取快照
//	- Engine - 撮合引擎, leader 按池子并行撮合
//	- ChainClient - 提交 bundle 或空块声明并等待上链
//	- Store - 保存定稿的提案、空块声明以及选举状态
//Reactor - 共识消息的 p2p 收发, 通过 EventSwitch 与 ConsensusState 通信
