package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

func callMsg(req GasEstimateRequest) ethereum.CallMsg {
	msg := ethereum.CallMsg{
		From: common.HexToAddress(req.From),
		Data: req.Data,
	}
	if req.To != "" {
		to := common.HexToAddress(req.To)
		msg.To = &to
	}
	if req.Value != nil {
		msg.Value = req.Value
	} else {
		msg.Value = big.NewInt(0)
	}
	return msg
}

// EthClientAdapter implements Adapter against a live Ethereum-compatible
// JSON-RPC endpoint via go-ethereum's ethclient.Client.
type EthClientAdapter struct {
	client *ethclient.Client
}

// NewEthClientAdapter dials rpcURL and returns a ready Adapter.
func NewEthClientAdapter(rpcURL string) (*EthClientAdapter, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc endpoint: %w", err)
	}
	return &EthClientAdapter{client: client}, nil
}

// GetNonce implements Adapter.
func (a *EthClientAdapter) GetNonce(ctx context.Context, address string) (uint64, error) {
	return a.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

// EstimateGas implements Adapter.
func (a *EthClientAdapter) EstimateGas(ctx context.Context, req GasEstimateRequest) (uint64, error) {
	msg := callMsg(req)
	return a.client.EstimateGas(ctx, msg)
}

// EstimateFeesPerGas implements Adapter.
func (a *EthClientAdapter) EstimateFeesPerGas(ctx context.Context) (FeeEstimate, error) {
	tip, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeEstimate{}, fmt.Errorf("chain: suggest gas tip cap: %w", err)
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return FeeEstimate{}, fmt.Errorf("chain: fetch latest header: %w", err)
	}

	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	return FeeEstimate{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

// BuildTransaction implements Adapter, constructing an unsigned EIP-1559
// DynamicFeeTx and returning its RLP-encoded signing form.
func (a *EthClientAdapter) BuildTransaction(ctx context.Context, tx PopulatedTx) ([]byte, error) {
	to := common.HexToAddress(tx.To)
	inner := &types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(tx.ChainID),
		Nonce:     tx.Nonce,
		GasTipCap: tx.MaxPriorityFeePerGas,
		GasFeeCap: tx.MaxFeePerGas,
		Gas:       tx.GasLimit,
		To:        &to,
		Value:     tx.Value,
		Data:      tx.Data,
	}
	ethTx := types.NewTx(inner)
	return ethTx.MarshalBinary()
}

// DecodeTransaction implements Adapter.
func (a *EthClientAdapter) DecodeTransaction(ctx context.Context, unsignedBytes []byte) (DecodedTx, error) {
	var ethTx types.Transaction
	if err := ethTx.UnmarshalBinary(unsignedBytes); err != nil {
		return DecodedTx{}, fmt.Errorf("chain: decode transaction: %w", err)
	}

	decoded := DecodedTx{}
	if ethTx.To() != nil {
		decoded.To = ethTx.To().Hex()
	}
	if data := ethTx.Data(); len(data) >= 4 {
		decoded.FunctionSelector = fmt.Sprintf("0x%x", data[:4])
	}
	return decoded, nil
}

// SerializeSignedTransaction implements Adapter.
func (a *EthClientAdapter) SerializeSignedTransaction(ctx context.Context, unsignedBytes []byte, sig Signature) ([]byte, error) {
	var ethTx types.Transaction
	if err := ethTx.UnmarshalBinary(unsignedBytes); err != nil {
		return nil, fmt.Errorf("chain: decode unsigned transaction: %w", err)
	}

	full := make([]byte, 65)
	copy(full[0:32], sig.R)
	copy(full[32:64], sig.S)
	// londonSigner expects the raw yParity bit (0/1), not the 27/28-offset
	// V that coordinator's finalizeSignature builds from recovery.Compute's bit.
	full[64] = sig.V - 27

	signer := types.NewLondonSigner(ethTx.ChainId())
	signedTx, err := ethTx.WithSignature(signer, full)
	if err != nil {
		return nil, fmt.Errorf("chain: attach signature: %w", err)
	}
	return signedTx.MarshalBinary()
}

// BroadcastTransaction implements Adapter.
func (a *EthClientAdapter) BroadcastTransaction(ctx context.Context, signedBytes []byte) (string, error) {
	var ethTx types.Transaction
	if err := ethTx.UnmarshalBinary(signedBytes); err != nil {
		return "", fmt.Errorf("chain: decode signed transaction: %w", err)
	}
	if err := a.client.SendTransaction(ctx, &ethTx); err != nil {
		return "", fmt.Errorf("chain: broadcast transaction: %w", err)
	}
	return ethTx.Hash().Hex(), nil
}
