package reconcile

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShardCount = 64

// MemoryStore 进程内状态存储，按订单号分片加锁
type MemoryStore struct {
	shards            [memoryShardCount]*memoryShard
	terminalRetention time.Duration
	pendingRetention  time.Duration
	settleLease       time.Duration
	now               func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	records map[string]*Record
}

// MemoryOption 内存存储选项
type MemoryOption func(*MemoryStore)

// WithRetention 设置终态与非终态记录的保留时长，0 表示不清理
func WithRetention(terminal, pending time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.terminalRetention = terminal
		s.pendingRetention = pending
	}
}

// WithSettleLease 设置结算回调执行权的占用时长
func WithSettleLease(lease time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if lease > 0 {
			s.settleLease = lease
		}
	}
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{settleLease: defaultSettleLease, now: time.Now}
	for i := range s.shards {
		s.shards[i] = &memoryShard{records: make(map[string]*Record)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) shard(orderID string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return s.shards[h.Sum32()%memoryShardCount]
}

// Get 获取订单状态
func (s *MemoryStore) Get(_ context.Context, orderID string) (*Record, error) {
	orderID, err := normalizeLookup(orderID)
	if err != nil {
		return nil, err
	}
	sh := s.shard(orderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.records[orderID].clone(), nil
}

// Put 写入订单状态，success 不可被覆盖为其他状态
func (s *MemoryStore) Put(_ context.Context, input PutInput) (Transition, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return Transition{}, err
	}
	sh := s.shard(input.OrderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	previous := sh.records[input.OrderID]
	transition := Transition{}
	if previous != nil {
		transition.PreviousState = previous.State
	}
	if !shouldApply(transition.PreviousState, input.State) {
		transition.Current = previous.clone()
		return transition, nil
	}
	record := recordFromInput(input, previous)
	transition.claimed = record.claimSettlement(s.now(), s.settleLease)
	sh.records[input.OrderID] = record
	transition.Current = record.clone()
	transition.Applied = true
	return transition, nil
}

// MarkSettled 标记结算已交付；记录不存在时忽略
func (s *MemoryStore) MarkSettled(_ context.Context, orderID string) error {
	return s.update(orderID, func(record *Record) {
		record.SettlementDelivered = true
		record.settleClaimedAt = time.Time{}
	})
}

// ReleaseSettlement 释放结算执行权
func (s *MemoryStore) ReleaseSettlement(_ context.Context, orderID string) error {
	return s.update(orderID, func(record *Record) {
		record.settleClaimedAt = time.Time{}
	})
}

func (s *MemoryStore) update(orderID string, fn func(record *Record)) error {
	orderID, err := normalizeLookup(orderID)
	if err != nil {
		return err
	}
	sh := s.shard(orderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if record := sh.records[orderID]; record != nil {
		fn(record)
	}
	return nil
}

// Sweep 清理过期记录，返回清理数量
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, record := range sh.records {
			retention := s.pendingRetention
			if IsTerminal(record.State) {
				retention = s.terminalRetention
			}
			if retention <= 0 {
				continue
			}
			if now.Sub(record.ObservedAt) >= retention {
				delete(sh.records, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len 当前记录数
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.records)
		sh.mu.Unlock()
	}
	return total
}
