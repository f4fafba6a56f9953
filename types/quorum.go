package types

// QuorumThreshold 返回 n 个验证者时推进到 Proposal 阶段所需的聚合数 ⌈2n/3⌉
func QuorumThreshold(n int) int {
	if n <= 0 {
		return 0
	}
	return (2*n + 2) / 3
}

// HasQuorum count 个验证者是否达到 n 个验证者的法定数
func HasQuorum(count, n int) bool {
	return n > 0 && count >= QuorumThreshold(n)
}
