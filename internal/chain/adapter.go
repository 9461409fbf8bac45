// Package chain provides the Transaction Populator and the outbound Chain
// Adapter contract the coordinator drives it through.
package chain

import (
	"context"
	"math/big"
)

// UnpopulatedTx is a user-supplied transaction intent with optional fields
// the Populator fills in from chain state.
type UnpopulatedTx struct {
	To                   string
	Value                *big.Int
	Data                 []byte
	ChainID              uint64
	Nonce                *uint64
	GasLimit             *uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

// PopulatedTx is UnpopulatedTx with every field resolved.
type PopulatedTx struct {
	To                   string
	Value                *big.Int
	Data                 []byte
	ChainID              uint64
	Nonce                uint64
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

// DecodedTx is the result of decoding a built transaction back into its
// human-meaningful parts for policy evaluation and audit.
type DecodedTx struct {
	To               string
	FunctionSelector string
	FunctionName     string
}

// Signature is a finalized ECDSA signature over a transaction's signing
// hash.
type Signature struct {
	R []byte
	S []byte
	V byte
}

// FeeEstimate is the result of an EIP-1559 fee query.
type FeeEstimate struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// GasEstimateRequest describes a gas estimation call.
type GasEstimateRequest struct {
	From  string
	To    string
	Value *big.Int
	Data  []byte
}

// Adapter is the outbound contract the coordinator drives every populated
// transaction through. One concrete implementation, EthClientAdapter, wraps
// go-ethereum's ethclient.Client; tests supply a stub.
type Adapter interface {
	GetNonce(ctx context.Context, address string) (uint64, error)
	EstimateGas(ctx context.Context, req GasEstimateRequest) (uint64, error)
	EstimateFeesPerGas(ctx context.Context) (FeeEstimate, error)
	BuildTransaction(ctx context.Context, tx PopulatedTx) ([]byte, error)
	DecodeTransaction(ctx context.Context, unsignedBytes []byte) (DecodedTx, error)
	SerializeSignedTransaction(ctx context.Context, unsignedBytes []byte, sig Signature) ([]byte, error)
	BroadcastTransaction(ctx context.Context, signedBytes []byte) (string, error)
}
