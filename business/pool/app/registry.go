package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/poolsync/business/pool/domain"
	statesyncApp "github.com/fd1az/poolsync/business/statesync/app"
	statesyncDomain "github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/asset"
	"github.com/fd1az/poolsync/internal/logger"
)

// RegistryConfig holds per-pair tracker settings.
type RegistryConfig struct {
	Namespace        string
	HistoryWindow    uint64
	NeedsSharedState bool
}

// PairTracker is the engine's tracker specialised to pair state.
type PairTracker = statesyncApp.Tracker[domain.PairState]

// PairInfo is a read-only view of one tracked pair.
type PairInfo struct {
	Address     common.Address
	Token0      *asset.Asset
	Token1      *asset.Asset
	Reserve0    *asset.Amount
	Reserve1    *asset.Amount
	BlockNumber uint64
	HasState    bool
	Valid       bool
}

type trackedPair struct {
	address common.Address
	tracker *PairTracker

	mu     sync.RWMutex
	token0 *asset.Asset
	token1 *asset.Asset
}

func (p *trackedPair) setTokens(token0, token1 *asset.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token0, p.token1 = token0, token1
}

func (p *trackedPair) tokens() (*asset.Asset, *asset.Asset) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token0, p.token1
}

// Registry owns the tracked pairs of one namespace.
type Registry struct {
	config  RegistryConfig
	env     statesyncApp.Environment
	newPair PairFactory
	assets  *asset.Registry
	logger  logger.LoggerInterface

	mu      sync.RWMutex
	pairs   map[common.Address]*trackedPair
	pending map[common.Address]struct{}
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig, env statesyncApp.Environment, newPair PairFactory, assets *asset.Registry, log logger.LoggerInterface) *Registry {
	return &Registry{
		config:  cfg,
		env:     env,
		newPair: newPair,
		assets:  assets,
		logger:  log,
		pairs:   make(map[common.Address]*trackedPair),
		pending: make(map[common.Address]struct{}),
	}
}

// ObjectID returns the engine identity of a pair.
func (r *Registry) ObjectID(address common.Address) statesyncDomain.ObjectID {
	return statesyncDomain.NewObjectID(r.config.Namespace, strings.ToLower(address.Hex()), "")
}

// Track starts following the pair at address from blockNumber. Token metadata
// is bound once the first state is installed.
func (r *Registry) Track(ctx context.Context, address common.Address, blockNumber uint64) error {
	r.mu.Lock()
	_, tracked := r.pairs[address]
	_, busy := r.pending[address]
	if tracked || busy {
		r.mu.Unlock()
		return apperror.New(apperror.CodeObjectAlreadyTracked, apperror.WithContext(address.Hex()))
	}
	r.pending[address] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, address)
		r.mu.Unlock()
	}()

	source, err := r.newPair(address)
	if err != nil {
		return err
	}

	tracker := statesyncApp.NewTracker[domain.PairState](statesyncApp.TrackerConfig{
		ID:               r.ObjectID(address),
		HistoryWindow:    r.config.HistoryWindow,
		NeedsSharedState: r.config.NeedsSharedState,
	}, source, r.env)
	pair := &trackedPair{address: address, tracker: tracker}

	err = tracker.Initialize(ctx, blockNumber,
		statesyncApp.WithOnInstalled(func(ctx context.Context, state domain.PairState) error {
			token0, token1, err := r.resolveTokens(ctx, state)
			if err != nil {
				return err
			}
			pair.setTokens(token0, token1)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.pairs[address] = pair
	r.mu.Unlock()

	bn, _ := tracker.BlockNumber()
	r.logger.Info(ctx, "pair tracked",
		"pair", address.Hex(),
		"strategy", tracker.Strategy().Name(),
		"block", bn,
	)
	return nil
}

// TrackAll tracks every address, continuing past failures.
func (r *Registry) TrackAll(ctx context.Context, addresses []common.Address, blockNumber uint64) error {
	var errs []error
	for _, addr := range addresses {
		if err := r.Track(ctx, addr, blockNumber); err != nil {
			r.logger.Error(ctx, "pair tracking failed", "pair", addr.Hex(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Untrack stops following a pair.
func (r *Registry) Untrack(address common.Address) bool {
	r.mu.Lock()
	_, ok := r.pairs[address]
	delete(r.pairs, address)
	r.mu.Unlock()

	if ok {
		if u, isU := r.env.Logs.(Unsubscriber); isU {
			u.Unsubscribe(r.ObjectID(address))
		}
	}
	return ok
}

// HandleNewObject starts tracking a pair a replica asked for. Requests for
// other namespaces and already tracked pairs are ignored.
func (r *Registry) HandleNewObject(ctx context.Context, req statesyncDomain.NewObjectRequest) {
	if req.Namespace != r.config.Namespace || !common.IsHexAddress(req.Name) {
		return
	}
	address := common.HexToAddress(req.Name)
	if _, ok := r.Tracker(address); ok {
		r.logger.Debug(ctx, "new object request for tracked pair", "pair", address.Hex())
		return
	}

	r.logger.Info(ctx, "tracking pair on request", "pair", address.Hex(), "block", req.BlockNumber)
	if err := r.Track(ctx, address, req.BlockNumber); err != nil && apperror.GetCode(err) != apperror.CodeObjectAlreadyTracked {
		r.logger.Error(ctx, "requested pair tracking failed", "pair", address.Hex(), "error", err)
	}
}

// Tracker returns the tracker of a pair.
func (r *Registry) Tracker(address common.Address) (*PairTracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[address]
	if !ok {
		return nil, false
	}
	return p.tracker, true
}

// Pairs returns a view of every tracked pair, ordered by address.
func (r *Registry) Pairs() []PairInfo {
	r.mu.RLock()
	pairs := make([]*trackedPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		pairs = append(pairs, p)
	}
	r.mu.RUnlock()

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].address.Cmp(pairs[j].address) < 0
	})

	out := make([]PairInfo, 0, len(pairs))
	for _, p := range pairs {
		info := PairInfo{Address: p.address, Valid: p.tracker.IsValid()}
		info.Token0, info.Token1 = p.tokens()

		if state, bn, ok := p.tracker.StaleState(); ok {
			info.HasState = true
			info.BlockNumber = bn
			if info.Token0 != nil && info.Token1 != nil {
				if a, err := asset.NewAmount(info.Token0, state.Reserve0); err == nil {
					info.Reserve0 = &a
				}
				if a, err := asset.NewAmount(info.Token1, state.Reserve1); err == nil {
					info.Reserve1 = &a
				}
			}
		}
		out = append(out, info)
	}
	return out
}

// Ready counts the pairs whose state has been served by the subscriber and
// is still valid for the current head.
func (r *Registry) Ready() (synced, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pairs {
		if _, _, ok := p.tracker.StaleState(); ok && p.tracker.IsValid() {
			synced++
		}
	}
	return synced, len(r.pairs)
}

// Len returns the number of tracked pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}

// tokenAssets returns the bound tokens, resolving them from state when the
// install callback could not.
func (r *Registry) tokenAssets(ctx context.Context, address common.Address, state domain.PairState) (*asset.Asset, *asset.Asset, error) {
	r.mu.RLock()
	p, ok := r.pairs[address]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, apperror.New(apperror.CodeObjectNotTracked, apperror.WithContext(address.Hex()))
	}

	if t0, t1 := p.tokens(); t0 != nil && t1 != nil {
		return t0, t1, nil
	}
	t0, t1, err := r.resolveTokens(ctx, state)
	if err != nil {
		return nil, nil, err
	}
	p.setTokens(t0, t1)
	return t0, t1, nil
}

func (r *Registry) resolveTokens(ctx context.Context, state domain.PairState) (*asset.Asset, *asset.Asset, error) {
	token0, err := r.assets.Resolve(ctx, state.Token0)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeUnknownToken, apperror.WithCause(err), apperror.WithContext(state.Token0.Hex()))
	}
	token1, err := r.assets.Resolve(ctx, state.Token1)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeUnknownToken, apperror.WithCause(err), apperror.WithContext(state.Token1.Hex()))
	}
	return token0, token1, nil
}
