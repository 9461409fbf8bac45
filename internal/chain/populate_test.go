package chain

import (
	"context"
	"math/big"
	"testing"
)

type stubAdapter struct {
	nonce        uint64
	gasEstimate  uint64
	fees         FeeEstimate
	buildErr     error
	nonceErr     error
	gasErr       error
	feesErr      error
	builtBytes   []byte
	decoded      DecodedTx
	serialized   []byte
	broadcastTxH string
}

func (s *stubAdapter) GetNonce(context.Context, string) (uint64, error) { return s.nonce, s.nonceErr }
func (s *stubAdapter) EstimateGas(context.Context, GasEstimateRequest) (uint64, error) {
	return s.gasEstimate, s.gasErr
}
func (s *stubAdapter) EstimateFeesPerGas(context.Context) (FeeEstimate, error) {
	return s.fees, s.feesErr
}
func (s *stubAdapter) BuildTransaction(context.Context, PopulatedTx) ([]byte, error) {
	return s.builtBytes, s.buildErr
}
func (s *stubAdapter) DecodeTransaction(context.Context, []byte) (DecodedTx, error) {
	return s.decoded, nil
}
func (s *stubAdapter) SerializeSignedTransaction(context.Context, []byte, Signature) ([]byte, error) {
	return s.serialized, nil
}
func (s *stubAdapter) BroadcastTransaction(context.Context, []byte) (string, error) {
	return s.broadcastTxH, nil
}

func TestPopulateRejectsMissingChainID(t *testing.T) {
	p := NewPopulator(&stubAdapter{})
	_, err := p.Populate(context.Background(), UnpopulatedTx{ChainID: 0}, "0xabc")
	if err != ErrMissingChainID {
		t.Fatalf("expected ErrMissingChainID, got %v", err)
	}
}

func TestPopulateFillsNonceGasAndFees(t *testing.T) {
	adapter := &stubAdapter{
		nonce:       7,
		gasEstimate: 100000,
		fees:        FeeEstimate{MaxFeePerGas: big.NewInt(50), MaxPriorityFeePerGas: big.NewInt(2)},
	}
	p := NewPopulator(adapter)

	out, err := p.Populate(context.Background(), UnpopulatedTx{
		To:      "0xdead",
		ChainID: 1,
	}, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Nonce != 7 {
		t.Fatalf("expected nonce 7, got %d", out.Nonce)
	}
	if out.GasLimit != 120000 {
		t.Fatalf("expected gas limit 120000 (20%% headroom), got %d", out.GasLimit)
	}
	if out.MaxFeePerGas.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected max fee 50, got %s", out.MaxFeePerGas)
	}
	if out.MaxPriorityFeePerGas.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected priority fee 2, got %s", out.MaxPriorityFeePerGas)
	}
}

func TestPopulateRespectsSuppliedFields(t *testing.T) {
	adapter := &stubAdapter{nonce: 99, gasEstimate: 1, fees: FeeEstimate{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(1)}}
	p := NewPopulator(adapter)

	nonce := uint64(3)
	gasLimit := uint64(21000)
	maxFee := big.NewInt(1000)

	out, err := p.Populate(context.Background(), UnpopulatedTx{
		ChainID:      1,
		Nonce:        &nonce,
		GasLimit:     &gasLimit,
		MaxFeePerGas: maxFee,
	}, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Nonce != 3 {
		t.Fatalf("expected supplied nonce 3, got %d", out.Nonce)
	}
	if out.GasLimit != 21000 {
		t.Fatalf("expected supplied gas limit 21000, got %d", out.GasLimit)
	}
	if out.MaxFeePerGas.Cmp(maxFee) != 0 {
		t.Fatalf("expected supplied max fee, got %s", out.MaxFeePerGas)
	}
	if out.MaxPriorityFeePerGas != nil {
		t.Fatal("expected no fee estimation call when MaxFeePerGas supplied")
	}
}

func TestPopulatePropagatesRPCFailure(t *testing.T) {
	adapter := &stubAdapter{nonceErr: context.DeadlineExceeded}
	p := NewPopulator(adapter)

	if _, err := p.Populate(context.Background(), UnpopulatedTx{ChainID: 1}, "0xabc"); err == nil {
		t.Fatal("expected nonce RPC failure to propagate")
	}
}

func TestApplyHeadroomIntegerSafeMultiply(t *testing.T) {
	if got := applyHeadroom(100000); got != 120000 {
		t.Fatalf("expected 120000, got %d", got)
	}
	if got := applyHeadroom(21000); got != 25200 {
		t.Fatalf("expected 25200, got %d", got)
	}
}
