package chain

import (
	"context"
	"fmt"
	"math/big"
)

var gasHeadroomNumerator = big.NewInt(120)
var gasHeadroomDenominator = big.NewInt(100)

// ErrMissingChainID is returned when a tx is submitted with chainId == 0.
var ErrMissingChainID = fmt.Errorf("chain: chainId is required and must be nonzero")

// Populator fills in the fields a caller omitted from an UnpopulatedTx by
// querying an Adapter, per spec.md §4.4.
type Populator struct {
	adapter Adapter
}

// NewPopulator constructs a Populator bound to adapter.
func NewPopulator(adapter Adapter) *Populator {
	return &Populator{adapter: adapter}
}

// Populate fills nonce, gas limit (with 20% headroom) and EIP-1559 fees
// from chain state, in the order spec.md §4.4 prescribes. Any RPC failure
// is propagated verbatim to the caller.
func (p *Populator) Populate(ctx context.Context, tx UnpopulatedTx, fromAddress string) (PopulatedTx, error) {
	if tx.ChainID == 0 {
		return PopulatedTx{}, ErrMissingChainID
	}

	out := PopulatedTx{
		To:                   tx.To,
		Value:                tx.Value,
		Data:                 tx.Data,
		ChainID:              tx.ChainID,
		MaxFeePerGas:         tx.MaxFeePerGas,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		GasPrice:             tx.GasPrice,
	}
	if out.Value == nil {
		out.Value = big.NewInt(0)
	}

	if tx.Nonce != nil {
		out.Nonce = *tx.Nonce
	} else {
		nonce, err := p.adapter.GetNonce(ctx, fromAddress)
		if err != nil {
			return PopulatedTx{}, fmt.Errorf("chain: get nonce: %w", err)
		}
		out.Nonce = nonce
	}

	if tx.GasLimit != nil {
		out.GasLimit = *tx.GasLimit
	} else {
		estimated, err := p.adapter.EstimateGas(ctx, GasEstimateRequest{
			From:  fromAddress,
			To:    tx.To,
			Value: out.Value,
			Data:  tx.Data,
		})
		if err != nil {
			return PopulatedTx{}, fmt.Errorf("chain: estimate gas: %w", err)
		}
		out.GasLimit = applyHeadroom(estimated)
	}

	if tx.MaxFeePerGas == nil && tx.GasPrice == nil {
		fees, err := p.adapter.EstimateFeesPerGas(ctx)
		if err != nil {
			return PopulatedTx{}, fmt.Errorf("chain: estimate fees: %w", err)
		}
		out.MaxFeePerGas = fees.MaxFeePerGas
		out.MaxPriorityFeePerGas = fees.MaxPriorityFeePerGas
	}

	return out, nil
}

// applyHeadroom multiplies estimated by 1.20 using integer-safe big.Int
// arithmetic: estimated * 120 / 100.
func applyHeadroom(estimated uint64) uint64 {
	v := new(big.Int).SetUint64(estimated)
	v.Mul(v, gasHeadroomNumerator)
	v.Div(v, gasHeadroomDenominator)
	return v.Uint64()
}
