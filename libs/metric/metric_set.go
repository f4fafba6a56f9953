package metric

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrMetricLabelExist = errors.New("metric label already exist")
	ErrEmptyLabel       = errors.New("metric label is empty")
)

func NewMetricSet() *MetricSet {
	return &MetricSet{
		items: make(map[string]MetricItem),
	}
}

// MetricSet 按 label 保存各模块的 MetricItem, label 不能重复
type MetricSet struct {
	mtx   sync.RWMutex
	items map[string]MetricItem
}

func (ms *MetricSet) SetMetrics(label string, item MetricItem) error {
	if label == "" {
		return ErrEmptyLabel
	}
	ms.mtx.Lock()
	defer ms.mtx.Unlock()
	if _, ok := ms.items[label]; ok {
		return errors.Wrap(ErrMetricLabelExist, label)
	}
	ms.items[label] = item
	return nil
}

func (ms *MetricSet) HasMetrics(label string) bool {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	_, ok := ms.items[label]
	return ok
}

// Labels 按字典序返回
func (ms *MetricSet) Labels() []string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	labels := make([]string, 0, len(ms.items))
	for l := range ms.items {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Snapshot 返回 label -> json, 不传 label 时返回全部, 未知的 label 被忽略
func (ms *MetricSet) Snapshot(labels ...string) map[string]string {
	if len(labels) == 0 {
		labels = ms.Labels()
	}

	ms.mtx.RLock()
	items := make(map[string]MetricItem, len(labels))
	for _, l := range labels {
		if item, ok := ms.items[l]; ok {
			items[l] = item
		}
	}
	ms.mtx.RUnlock()

	// JSONString 可能要拿各模块自己的锁, 不在 ms.mtx 内调用
	out := make(map[string]string, len(items))
	for l, item := range items {
		out[l] = item.JSONString()
	}
	return out
}
