package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/internal/asset"
)

// Quote is a swap quote computed from a tracked pair's reserves.
type Quote struct {
	Pair           common.Address
	AmountIn       asset.Amount
	AmountOut      asset.Amount
	SpotPrice      decimal.Decimal
	ExecutionPrice decimal.Decimal
	BlockNumber    uint64
	Gas            *chainDomain.GasEstimate // nil when the gas price was unavailable
}

// PriceImpact is the relative shortfall of the execution price against spot.
func (q Quote) PriceImpact() decimal.Decimal {
	if q.SpotPrice.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(q.ExecutionPrice.Div(q.SpotPrice))
}
