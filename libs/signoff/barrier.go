package signoff

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownParticipant = errors.New("unknown sign-off participant")
	ErrStaleHeight        = errors.New("height already advanced")
)

// Barrier 各个模块处理完一个块后在这里签到, 所有参与者都签到之后全局块高才前进
// 参与者签到 height 表示 height 及之前的块都已处理
type Barrier struct {
	mtx sync.Mutex

	participants []string
	signed       map[string]uint64
	// 还没有前进的块高, 升序
	pending []uint64
	height  uint64

	onAdvance func(height uint64)
}

// NewBarrier onAdvance 在持有锁时按块高顺序调用, 不能在其中调用 SignOff
func NewBarrier(height uint64, onAdvance func(uint64), participants ...string) *Barrier {
	if len(participants) == 0 {
		panic("sign-off barrier needs at least one participant")
	}
	b := &Barrier{
		participants: append([]string(nil), participants...),
		signed:       make(map[string]uint64, len(participants)),
		height:       height,
		onAdvance:    onAdvance,
	}
	for _, p := range participants {
		if _, ok := b.signed[p]; ok {
			panic(fmt.Sprintf("duplicate sign-off participant %q", p))
		}
		b.signed[p] = height
	}
	return b
}

// SignOff 返回本次签到触发前进的块高
func (b *Barrier) SignOff(name string, height uint64) ([]uint64, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	last, ok := b.signed[name]
	if !ok {
		return nil, ErrUnknownParticipant
	}
	if height <= b.height {
		return nil, ErrStaleHeight
	}
	if height > last {
		b.signed[name] = height
	}
	b.enqueue(height)

	low := b.lowest()
	var fired []uint64
	for len(b.pending) > 0 && b.pending[0] <= low {
		h := b.pending[0]
		b.pending = b.pending[1:]
		b.height = h
		fired = append(fired, h)
		if b.onAdvance != nil {
			b.onAdvance(h)
		}
	}
	return fired, nil
}

func (b *Barrier) enqueue(height uint64) {
	i := sort.Search(len(b.pending), func(i int) bool { return b.pending[i] >= height })
	if i < len(b.pending) && b.pending[i] == height {
		return
	}
	b.pending = append(b.pending, 0)
	copy(b.pending[i+1:], b.pending[i:])
	b.pending[i] = height
}

func (b *Barrier) lowest() uint64 {
	low := b.signed[b.participants[0]]
	for _, p := range b.participants[1:] {
		if h := b.signed[p]; h < low {
			low = h
		}
	}
	return low
}

// Height 最近一次前进到的块高
func (b *Barrier) Height() uint64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.height
}

// Waiting 返回还没有签到 height 的参与者
func (b *Barrier) Waiting(height uint64) []string {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	var out []string
	for _, p := range b.participants {
		if b.signed[p] < height {
			out = append(out, p)
		}
	}
	return out
}
