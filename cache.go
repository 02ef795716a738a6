package plc_bridge

import (
	"container/heap"
	"github.com/TimeWtr/plc_bridge/domain"
	"sync"
)

type Cache interface {
	Set(key string, value any)
	Get(key string) (any, bool)
	Del(key string)
}

func NewLocalCache(size int) Cache {
	return &LocalCache{
		mp: make(map[string]any, size),
		mu: &sync.RWMutex{},
	}
}

// LocalCache 命令处理之间共享的会话状态，例如上一次上报完工的作业
type LocalCache struct {
	mp map[string]any
	mu *sync.RWMutex
}

func (l *LocalCache) Set(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mp[key] = value
}

func (l *LocalCache) Get(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.mp[key]
	return v, ok
}

func (l *LocalCache) Del(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.mp, key)
}

// queued 队列元素，pos是作业在文档中的下标
type queued struct {
	index int
	pos   int
}

// pendingQueue 小顶堆，ScheduleIndex最小的作业在堆顶
type pendingQueue []queued

func (h *pendingQueue) Len() int {
	return len(*h)
}

// Less 比较
// 条件：
// 1. ScheduleIndex较小者优先
// 2. ScheduleIndex相同时文档中靠前者优先
func (h *pendingQueue) Less(i, j int) bool {
	a, b := (*h)[i], (*h)[j]
	return a.index < b.index ||
		a.index == b.index && a.pos < b.pos
}

func (h *pendingQueue) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
}

func (h *pendingQueue) Push(x interface{}) {
	*h = append(*h, x.(queued))
}

func (h *pendingQueue) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// newPendingQueue 只收集状态满足match且ScheduleIndex可解析的作业
func newPendingQueue(jobs []domain.JobRecord, match func(domain.JobRecord) bool) *pendingQueue {
	h := make(pendingQueue, 0, len(jobs))
	for pos, job := range jobs {
		if !match(job) {
			continue
		}
		idx, ok := job.Index()
		if !ok {
			continue
		}
		h = append(h, queued{index: idx, pos: pos})
	}
	heap.Init(&h)
	return &h
}

// next 弹出堆顶作业在文档中的下标，队列为空返回-1
func (h *pendingQueue) next() int {
	if h.Len() == 0 {
		return -1
	}
	return heap.Pop(h).(queued).pos
}
