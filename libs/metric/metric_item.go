package metric

// MetricItem 每个模块(consensus, mempool)导出一份统计, rpc metrics 接口原样返回 json
type MetricItem interface {
	JSONString() string
}

// ItemFunc 把一个函数当作 MetricItem
type ItemFunc func() string

func (f ItemFunc) JSONString() string { return f() }
