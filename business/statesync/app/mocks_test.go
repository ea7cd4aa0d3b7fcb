package app

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// testState is a minimal state with a big integer and a log trail.
type testState struct {
	Value *big.Int `json:"value"`
	Trail []uint   `json:"trail"`
}

func newTestState(v int64) testState {
	return testState{Value: big.NewInt(v)}
}

func (s testState) Clone() testState {
	out := testState{Trail: append([]uint(nil), s.Trail...)}
	if s.Value != nil {
		out.Value = new(big.Int).Set(s.Value)
	}
	return out
}

func (s testState) int64() int64 {
	if s.Value == nil {
		return 0
	}
	return s.Value.Int64()
}

// mockCollaborator adds each log's first data byte to Value.
type mockCollaborator struct {
	mu        sync.Mutex
	addresses []common.Address
	tracking  bool
	genErr    error
	failN     int // failures before succeeding; negative fails forever
	genValue  int64
	genCalls  []uint64
	genDone   chan uint64
}

func (m *mockCollaborator) Addresses() []common.Address { return m.addresses }

func (m *mockCollaborator) IsTracking() bool { return m.tracking }

func (m *mockCollaborator) ProcessLog(ctx context.Context, state testState, log types.Log, block *chainDomain.Block) (testState, bool, error) {
	if len(log.Data) == 0 {
		return state, false, nil
	}
	next := state.Clone()
	next.Value.Add(next.Value, big.NewInt(int64(log.Data[0])))
	next.Trail = append(next.Trail, log.Index)
	return next, true, nil
}

func (m *mockCollaborator) GenerateState(ctx context.Context, blockNumber uint64) (testState, error) {
	m.mu.Lock()
	m.genCalls = append(m.genCalls, blockNumber)
	var err error
	if m.genErr != nil && m.failN != 0 {
		err = m.genErr
		if m.failN > 0 {
			m.failN--
		}
	}
	v, done := m.genValue, m.genDone
	m.mu.Unlock()

	if done != nil {
		defer func() { done <- blockNumber }()
	}
	if err != nil {
		return testState{}, err
	}
	return newTestState(v), nil
}

func (m *mockCollaborator) generateCalls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.genCalls...)
}

// mockCache is an in-memory SharedCache recording publishes and deferred gets.
type mockCache struct {
	mu        sync.Mutex
	hashes    map[string][]byte
	values    map[string]string
	published chan []byte
	deferred  []func([]byte)
	readErr   error
	incoming  chan []byte
}

func newMockCache() *mockCache {
	return &mockCache{
		hashes:    make(map[string][]byte),
		values:    make(map[string]string),
		published: make(chan []byte, 8),
	}
}

func (c *mockCache) HashGet(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, false, c.readErr
	}
	v, ok := c.hashes[bucket+"/"+key]
	return v, ok, nil
}

func (c *mockCache) HashSet(ctx context.Context, bucket, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[bucket+"/"+key] = value
	return nil
}

func (c *mockCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mockCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mockCache) Publish(ctx context.Context, channel string, message []byte) error {
	c.published <- message
	return nil
}

func (c *mockCache) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if c.incoming != nil {
		return c.incoming, nil
	}
	return make(chan []byte), nil
}

func (c *mockCache) ScheduleDeferredGet(ctx context.Context, bucket, key string, fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred = append(c.deferred, fn)
}

func (c *mockCache) deferredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deferred)
}

func (c *mockCache) fireDeferred(data []byte) {
	c.mu.Lock()
	fns := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (c *mockCache) putSnapshot(t interface{ Fatalf(string, ...any) }, id domain.ObjectID, snapshot domain.Snapshot[testState]) {
	data, err := JSONCodec[testState]{}.Encode(snapshot)
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	_ = c.HashSet(context.Background(), id.CacheBucket(), id.CacheKey(), data)
}

// mockSubscriber records SubscribeLogs calls.
type mockSubscriber struct {
	mu        sync.Mutex
	fromBlock []uint64
	addresses [][]common.Address
}

func (s *mockSubscriber) SubscribeLogs(ctx context.Context, sink Sink, addresses []common.Address, fromBlock uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fromBlock = append(s.fromBlock, fromBlock)
	s.addresses = append(s.addresses, addresses)
}

func testID() domain.ObjectID {
	return domain.NewObjectID("test", "0xPool", "")
}

func newTestTracker(t interface{ Fatalf(string, ...any) }, role domain.Role, needsShared bool, window uint64, collab *mockCollaborator, cache SharedCache) *Tracker[testState] {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	env := Environment{
		Role:             role,
		Cache:            cache,
		Logs:             &mockSubscriber{},
		Logger:           &mockLogger{},
		Metrics:          m,
		MarkerKey:        "primary:block",
		NewObjectChannel: "new-object",
	}
	return NewTracker[testState](TrackerConfig{
		ID:               testID(),
		HistoryWindow:    window,
		NeedsSharedState: needsShared,
	}, collab, env)
}

func logAt(block uint64, index uint, delta byte) types.Log {
	var data []byte
	if delta > 0 {
		data = []byte{delta}
	}
	return types.Log{BlockNumber: block, Index: index, Data: data}
}

func headersFor(blocks ...uint64) map[uint64]*chainDomain.Block {
	out := make(map[uint64]*chainDomain.Block, len(blocks))
	for _, b := range blocks {
		out[b] = &chainDomain.Block{Number: b}
	}
	return out
}
