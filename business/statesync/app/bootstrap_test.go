package app

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/apperror"
)

func subscriberOf(tr *Tracker[testState]) *mockSubscriber {
	return tr.env.Logs.(*mockSubscriber)
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		role        domain.Role
		needsShared bool
		want        string
	}{
		{domain.RoleStandalone, false, "standalone"},
		{domain.RoleStandalone, true, "standalone"},
		{domain.RolePrimary, false, "standalone"},
		{domain.RolePrimary, true, "primary"},
		{domain.RoleReplica, false, "standalone"},
		{domain.RoleReplica, true, "replica"},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := StrategyFor[testState](tt.role, tt.needsShared).Name(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestInitialize_SuppliedState(t *testing.T) {
	ctx := context.Background()
	collab := &mockCollaborator{addresses: []common.Address{common.HexToAddress("0x01")}}
	tr := newTestTracker(t, domain.RoleReplica, true, 0, collab, newMockCache())

	var installed int64
	err := tr.Initialize(ctx, 100,
		WithInitialState(newTestState(3)),
		WithOnInstalled(func(ctx context.Context, s testState) error {
			installed = s.int64()
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if len(collab.generateCalls()) != 0 {
		t.Error("expected no generation for supplied state")
	}
	if installed != 3 {
		t.Errorf("expected callback with state 3, got %d", installed)
	}

	sub := subscriberOf(tr)
	if !reflect.DeepEqual(sub.fromBlock, []uint64{100}) {
		t.Errorf("expected subscription from 100, got %v", sub.fromBlock)
	}
	if !reflect.DeepEqual(sub.addresses[0], collab.addresses) {
		t.Errorf("unexpected addresses %v", sub.addresses[0])
	}
}

func TestInitialize_GenerateFailurePropagates(t *testing.T) {
	collab := &mockCollaborator{genErr: errors.New("boom"), failN: -1}
	tr := newTestTracker(t, domain.RoleStandalone, false, 0, collab, nil)

	called := false
	err := tr.Initialize(context.Background(), 100, WithOnInstalled(func(context.Context, testState) error {
		called = true
		return nil
	}))

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.CodeStateGenerationFailed {
		t.Fatalf("expected state generation error, got %v", err)
	}
	if called {
		t.Error("callback must not run without a state")
	}
	if len(subscriberOf(tr).fromBlock) != 0 {
		t.Error("expected no subscription on failure")
	}
}

func TestInitialize_ReplicaAdoptsSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		marker   string
		wantFrom uint64
	}{
		{name: "marker present", marker: "180", wantFrom: 180},
		{name: "marker missing", marker: "", wantFrom: 150},
		{name: "marker malformed", marker: "abc", wantFrom: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cache := newMockCache()
			cache.putSnapshot(t, testID(), domain.NewSnapshot(newTestState(11), 150))
			if tt.marker != "" {
				_ = cache.Set(ctx, "primary:block", tt.marker)
			}

			collab := &mockCollaborator{}
			tr := newTestTracker(t, domain.RoleReplica, true, 0, collab, cache)

			if err := tr.Initialize(ctx, 100); err != nil {
				t.Fatalf("initialize: %v", err)
			}

			got, bn, ok := tr.StaleState()
			if !ok || bn != 150 || got.int64() != 11 {
				t.Errorf("expected adopted 11 at 150, got %d at %d", got.int64(), bn)
			}
			if len(collab.generateCalls()) != 0 {
				t.Error("expected no generation")
			}
			if from := subscriberOf(tr).fromBlock; !reflect.DeepEqual(from, []uint64{tt.wantFrom}) {
				t.Errorf("expected subscription from %d, got %v", tt.wantFrom, from)
			}
		})
	}
}

func TestInitialize_ReplicaMissPublishesAndGenerates(t *testing.T) {
	ctx := context.Background()
	cache := newMockCache()
	collab := &mockCollaborator{genValue: 5, addresses: []common.Address{common.HexToAddress("0x02")}}
	tr := newTestTracker(t, domain.RoleReplica, true, 0, collab, cache)

	if err := tr.Initialize(ctx, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	select {
	case msg := <-cache.published:
		var req domain.NewObjectRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ObjectID() != testID() || req.BlockNumber != 100 {
			t.Errorf("unexpected request %+v", req)
		}
	case <-time.After(time.Second):
		t.Fatal("expected new object request")
	}

	if !reflect.DeepEqual(collab.generateCalls(), []uint64{100}) {
		t.Errorf("expected generation at 100, got %v", collab.generateCalls())
	}
}

func TestInitialize_ReplicaEmptyMarkerGenerates(t *testing.T) {
	ctx := context.Background()
	cache := newMockCache()
	cache.putSnapshot(t, testID(), domain.Snapshot[testState]{BlockNumber: 150})

	collab := &mockCollaborator{genValue: 5}
	tr := newTestTracker(t, domain.RoleReplica, true, 0, collab, cache)

	if err := tr.Initialize(ctx, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !reflect.DeepEqual(collab.generateCalls(), []uint64{100}) {
		t.Errorf("expected fallback generation, got %v", collab.generateCalls())
	}
	if len(cache.published) != 0 {
		t.Error("expected no publish for an empty marker")
	}
}

func TestInitialize_ReplicaSnapshotAtBlockZeroGenerates(t *testing.T) {
	ctx := context.Background()
	cache := newMockCache()
	cache.putSnapshot(t, testID(), domain.NewSnapshot(newTestState(9), 0))

	collab := &mockCollaborator{genValue: 5}
	tr := newTestTracker(t, domain.RoleReplica, true, 0, collab, cache)

	if err := tr.Initialize(ctx, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !reflect.DeepEqual(collab.generateCalls(), []uint64{100}) {
		t.Errorf("expected fallback generation at 100, got %v", collab.generateCalls())
	}
	st, ok := tr.State(0)
	if !ok {
		t.Fatal("expected generated state")
	}
	if st.int64() != 5 {
		t.Errorf("expected generated value 5, got %d", st.int64())
	}
}

func TestInitialize_ReplicaCacheErrorGenerates(t *testing.T) {
	cache := newMockCache()
	cache.readErr = errors.New("connection refused")
	collab := &mockCollaborator{genValue: 5}
	tr := newTestTracker(t, domain.RoleReplica, true, 0, collab, cache)

	if err := tr.Initialize(context.Background(), 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, ok := tr.State(100); !ok {
		t.Error("expected generated state")
	}
}

func TestInitialize_PrimaryWritesBack(t *testing.T) {
	ctx := context.Background()
	cache := newMockCache()
	m, _ := NewMetrics()

	attempts := make(chan WriteAttempt, 4)
	writer := NewCacheWriter(DefaultCacheWriterConfig(), cache, &mockLogger{}, m,
		WithWriteObserver(func(a WriteAttempt) { attempts <- a }))
	writer.Start(ctx)
	defer writer.Close()

	tr := newTestTracker(t, domain.RolePrimary, true, 0, &mockCollaborator{genValue: 8}, cache)
	tr.env.Writer = writer

	if err := tr.Initialize(ctx, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	select {
	case a := <-attempts:
		if a.Err != nil || a.Dropped || a.BlockNumber != 100 {
			t.Fatalf("unexpected attempt %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("expected write-back attempt")
	}

	data, found, _ := cache.HashGet(ctx, testID().CacheBucket(), testID().CacheKey())
	if !found {
		t.Fatal("expected snapshot in cache")
	}
	snapshot, err := JSONCodec[testState]{}.Decode(data)
	if err != nil || snapshot.BlockNumber != 100 || snapshot.State.int64() != 8 {
		t.Errorf("unexpected cached snapshot %+v (err=%v)", snapshot, err)
	}
}
