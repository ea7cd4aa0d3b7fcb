package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	chainApp "github.com/fd1az/poolsync/business/blockchain/app"
	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	poolApp "github.com/fd1az/poolsync/business/pool/app"
	poolDomain "github.com/fd1az/poolsync/business/pool/domain"
	statesyncApp "github.com/fd1az/poolsync/business/statesync/app"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/logger"
	"github.com/fd1az/poolsync/pkg/ui"
	"github.com/fd1az/poolsync/pkg/ui/components"
)

// snapshot is one periodic view of the running tracker.
type snapshot struct {
	at         time.Time
	connection chainDomain.ConnectionState
	gas        *chainDomain.GasPrice
	sync       statesyncApp.SyncStatus
	pairs      []poolApp.PairInfo
	quotes     []*poolDomain.Quote
	errs       []error
}

type reporter struct {
	cfg      *config.Config
	log      logger.LoggerInterface
	chain    *chainApp.BlockchainService
	syncer   *statesyncApp.Syncer
	registry *poolApp.Registry
	quotes   *poolApp.QuoteService
	emit     func(context.Context, snapshot)
}

func (r *reporter) run(ctx context.Context) {
	interval := r.cfg.Pool.ReportInterval
	if interval <= 0 {
		interval = 12 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First report shortly after startup so the dashboard fills in.
	first := time.NewTimer(time.Second)
	defer first.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-first.C:
		case <-ticker.C:
		}
		r.emit(ctx, r.collect(ctx))
	}
}

func (r *reporter) collect(ctx context.Context) snapshot {
	snap := snapshot{
		at:         time.Now(),
		connection: r.chain.ConnectionState(),
		sync:       r.syncer.Status(),
		pairs:      r.registry.Pairs(),
	}

	if gas, err := r.chain.GasPrice(ctx); err == nil {
		snap.gas = gas
	}

	amount, err := decimal.NewFromString(r.cfg.Pool.QuoteAmount)
	if err != nil || !amount.IsPositive() {
		return snap
	}
	for _, p := range snap.pairs {
		if !p.HasState || p.Token0 == nil {
			continue
		}
		q, err := r.quotes.Quote(ctx, p.Address, p.Token0.Address(), amount, 0)
		if err != nil {
			snap.errs = append(snap.errs, fmt.Errorf("quote %s: %w", p.Address.Hex(), err))
			continue
		}
		snap.quotes = append(snap.quotes, q)
	}
	return snap
}

func (r *reporter) logSnapshot(ctx context.Context, snap snapshot) {
	args := []any{
		"connection", snap.connection,
		"head", snap.sync.Head,
		"subscriptions", snap.sync.Subscriptions,
		"reorgs", snap.sync.Reorgs,
		"pairs", len(snap.pairs),
	}
	if snap.gas != nil {
		args = append(args, "gas_gwei", snap.gas.Gwei().StringFixed(2))
	}
	r.log.Info(ctx, "sync status", args...)

	for _, q := range snap.quotes {
		r.log.Info(ctx, "quote",
			"pair", q.Pair.Hex(),
			"amount_in", q.AmountIn.String(),
			"amount_out", q.AmountOut.String(),
			"spot", q.SpotPrice.String(),
			"impact_pct", q.PriceImpact().Mul(decimal.NewFromInt(100)).StringFixed(4),
			"block", q.BlockNumber,
		)
	}
	for _, err := range snap.errs {
		var appErr *apperror.AppError
		switch {
		case apperror.IsTemporary(err):
			r.log.Debug(ctx, "quote unavailable", "error", err)
		case errors.As(err, &appErr):
			r.log.Warn(ctx, "quote failed", appErr.LogArgs()...)
		default:
			r.log.Warn(ctx, "quote failed", "error", err)
		}
	}
}

func (r *reporter) sendToUI(_ context.Context, snap snapshot) {
	ui.Send(ui.ConnectionStatusMsg{
		Name:      "Ethereum",
		Connected: snap.connection == chainDomain.StateConnected,
	})
	if snap.sync.Head > 0 {
		ui.Send(ui.BlockMsg{Number: snap.sync.Head, Timestamp: snap.at})
	}
	if snap.gas != nil {
		gwei, _ := snap.gas.Gwei().Float64()
		ui.Send(ui.GasPriceMsg{GweiPrice: gwei})
	}

	ui.Send(ui.SyncStatusMsg{Role: r.cfg.Sync.Role, Status: components.SyncStats{
		Head:          snap.sync.Head,
		Subscriptions: snap.sync.Subscriptions,
		Reorgs:        snap.sync.Reorgs,
		LastReorgTo:   snap.sync.LastReorgTo,
	}})
	ui.Send(ui.PairsMsg{Rows: pairRows(snap.pairs)})

	for _, q := range snap.quotes {
		impact, _ := q.PriceImpact().Mul(decimal.NewFromInt(100)).Float64()
		ui.Send(ui.QuoteMsg{
			Pair:        shortHex(q.Pair),
			AmountIn:    q.AmountIn.String(),
			AmountOut:   q.AmountOut.String(),
			ImpactPct:   impact,
			BlockNumber: q.BlockNumber,
		})
	}
	for _, err := range snap.errs {
		if !apperror.IsTemporary(err) {
			ui.Send(ui.ErrorMsg{Error: err})
		}
	}
}

func pairRows(pairs []poolApp.PairInfo) []components.PairRow {
	rows := make([]components.PairRow, 0, len(pairs))
	for _, p := range pairs {
		row := components.PairRow{
			Address:  p.Address.Hex(),
			Pair:     "?/?",
			Block:    p.BlockNumber,
			Valid:    p.Valid,
			HasState: p.HasState,
		}
		if p.Token0 != nil && p.Token1 != nil {
			row.Pair = p.Token0.Symbol() + "/" + p.Token1.Symbol()
		}
		if p.Reserve0 != nil {
			row.Reserve0 = p.Reserve0.StringFixed(4)
		}
		if p.Reserve1 != nil {
			row.Reserve1 = p.Reserve1.StringFixed(4)
		}
		rows = append(rows, row)
	}
	return rows
}

func shortHex(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}
