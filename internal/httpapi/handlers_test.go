package httpapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tsscrypto "github.com/bnb-chain/tss-lib/v2/crypto"
	"github.com/bnb-chain/tss-lib/v2/ecdsa/keygen"
	"github.com/bnb-chain/tss-lib/v2/tss"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/guardianwallet/signer/internal/chain"
	"github.com/guardianwallet/signer/internal/coordinator"
	"github.com/guardianwallet/signer/internal/policy"
	"github.com/guardianwallet/signer/internal/scheme"
	"github.com/guardianwallet/signer/internal/session"
	"github.com/guardianwallet/signer/internal/storage"
)

type fakeSignerRepo struct {
	signers map[string]*storage.Signer
}

func (f *fakeSignerRepo) FindByID(_ context.Context, id string) (*storage.Signer, error) {
	s, ok := f.signers[id]
	if !ok {
		return nil, storage.ErrSignerNotFound
	}
	cp := *s
	return &cp, nil
}

type fakeShareStore struct{ shares map[string][]byte }

func (f *fakeShareStore) GetShare(_ context.Context, path string) ([]byte, error) {
	b, ok := f.shares[path]
	if !ok {
		return nil, fmt.Errorf("fake: no share at %s", path)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
func (f *fakeShareStore) SaveShare(_ context.Context, path string, raw []byte) error {
	f.shares[path] = raw
	return nil
}
func (f *fakeShareStore) DeleteShare(_ context.Context, path string) error {
	delete(f.shares, path)
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (f *fakeAuditRepo) Create(_ context.Context, e storage.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}
func (f *fakeAuditRepo) CountBySignerInWindow(context.Context, string, time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeAuditRepo) SumValueBySignerInWindow(context.Context, string, time.Duration) (*big.Int, error) {
	return big.NewInt(0), nil
}

type fakeChainAdapter struct {
	unsignedBytes []byte
	decoded       chain.DecodedTx
	txHash        string
}

func (f *fakeChainAdapter) GetNonce(context.Context, string) (uint64, error) { return 1, nil }
func (f *fakeChainAdapter) EstimateGas(context.Context, chain.GasEstimateRequest) (uint64, error) {
	return 21000, nil
}
func (f *fakeChainAdapter) EstimateFeesPerGas(context.Context) (chain.FeeEstimate, error) {
	return chain.FeeEstimate{MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(1)}, nil
}
func (f *fakeChainAdapter) BuildTransaction(context.Context, chain.PopulatedTx) ([]byte, error) {
	return f.unsignedBytes, nil
}
func (f *fakeChainAdapter) DecodeTransaction(context.Context, []byte) (chain.DecodedTx, error) {
	return f.decoded, nil
}
func (f *fakeChainAdapter) SerializeSignedTransaction(context.Context, []byte, chain.Signature) ([]byte, error) {
	return []byte("signed-tx"), nil
}
func (f *fakeChainAdapter) BroadcastTransaction(context.Context, []byte) (string, error) {
	return f.txHash, nil
}

type fakeEngine struct {
	mu      sync.Mutex
	started map[string]bool
	r, s    []byte
}

func (f *fakeEngine) StartSigning(ctx scheme.SigningContext) (*scheme.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		f.started = make(map[string]bool)
	}
	f.started[ctx.SessionID] = true
	return &scheme.Round{Outbound: []scheme.PartyMessage{{ToParty: 0, Payload: []byte("first")}}}, nil
}
func (f *fakeEngine) ProcessSigningRound(sessionID string, _ []scheme.PartyMessage) (*scheme.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started[sessionID] {
		return nil, fmt.Errorf("fake: unknown signing session %s", sessionID)
	}
	return &scheme.Round{Done: true, Sign: &scheme.SignResult{R: f.r, S: f.s}}, nil
}
func (f *fakeEngine) AbortSigning(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.started, sessionID)
}
func (f *fakeEngine) StartKeygen(scheme.KeygenContext) (*scheme.Round, error) { return nil, nil }
func (f *fakeEngine) ProcessKeygenRound(string, []scheme.PartyMessage) (*scheme.Round, error) {
	return nil, nil
}
func (f *fakeEngine) AbortKeygen(string) {}

type fixture struct {
	ethAddress      string
	coreShareJSON   []byte
	unsignedTxBytes []byte
	messageHash     []byte
	r, s            []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ethAddress := gethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	point, err := tsscrypto.NewECPoint(tss.S256(), key.PublicKey.X, key.PublicKey.Y)
	if err != nil {
		t.Fatalf("build ec point: %v", err)
	}
	saveData := keygen.LocalPartySaveData{}
	saveData.ECDSAPub = point
	coreShareJSON, err := json.Marshal(saveData)
	if err != nil {
		t.Fatalf("marshal save data: %v", err)
	}

	unsignedTxBytes := []byte("fixture-unsigned-tx-bytes")
	messageHash := gethcrypto.Keccak256(unsignedTxBytes)
	sig, err := gethcrypto.Sign(messageHash, key)
	if err != nil {
		t.Fatalf("sign fixture hash: %v", err)
	}

	return &fixture{
		ethAddress: ethAddress, coreShareJSON: coreShareJSON,
		unsignedTxBytes: unsignedTxBytes, messageHash: messageHash,
		r: sig[0:32], s: sig[32:64],
	}
}

func (fx *fixture) keyMaterialBytes(t *testing.T) []byte {
	t.Helper()
	doc := struct {
		CoreShare []byte `json:"coreShare"`
		AuxInfo   []byte `json:"auxInfo"`
	}{CoreShare: fx.coreShareJSON, AuxInfo: []byte("aux-info-fixture")}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal key material doc: %v", err)
	}
	return b
}

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	fx := newFixture(t)

	signers := &fakeSignerRepo{signers: map[string]*storage.Signer{
		"signer-a": {
			ID: "signer-a", EthAddress: fx.ethAddress, OwnerAddress: "0xOwner",
			Status: storage.SignerActive, SharePath: "signer-a",
		},
	}}
	shares := &fakeShareStore{shares: map[string][]byte{"signer-a": fx.keyMaterialBytes(t)}}
	audit := &fakeAuditRepo{}
	gate := policy.NewGate(audit, policy.NewLegacyPolicyEngine(big.NewInt(1_000_000_000_000_000_000)))
	chainAdapt := &fakeChainAdapter{unsignedBytes: fx.unsignedTxBytes, decoded: chain.DecodedTx{To: "0xDest"}, txHash: "0xTxHash"}
	engine := &fakeEngine{r: fx.r, s: fx.s}
	sessions := session.New()
	t.Cleanup(sessions.Shutdown)

	coord := coordinator.New(zap.NewNop(), signers, shares, audit, gate, chainAdapt, engine, sessions)
	return NewRouter(zap.NewNop(), coord), fx
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)
	rec := doJSON(t, mux, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSignSessionRoundTripOverHTTP(t *testing.T) {
	mux, fx := newTestRouter(t)

	createResp := doJSON(t, mux, http.MethodPost, "/signers/signer-a/sign/session", map[string]any{
		"transaction": map[string]any{
			"to":      "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
			"value":   "10000000000000000",
			"chainId": 11155111,
		},
	})
	if createResp.Code != http.StatusOK {
		t.Fatalf("expected 200 from create, got %d: %s", createResp.Code, createResp.Body.String())
	}
	var created createSessionResponse
	if err := json.Unmarshal(createResp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if len(created.ServerFirstMessages) == 0 {
		t.Fatal("expected nonempty serverFirstMessages")
	}
	hashBytes, err := base64.StdEncoding.DecodeString(created.MessageHash)
	if err != nil || len(hashBytes) != 32 {
		t.Fatalf("expected 32-byte base64 messageHash, got %q (err=%v)", created.MessageHash, err)
	}

	roundResp := doJSON(t, mux, http.MethodPost, "/signers/signer-a/sign/round", map[string]any{
		"sessionId": created.SessionID, "messages": []string{},
	})
	if roundResp.Code != http.StatusOK {
		t.Fatalf("expected 200 from round, got %d: %s", roundResp.Code, roundResp.Body.String())
	}
	var round processRoundResponse
	if err := json.Unmarshal(roundResp.Body.Bytes(), &round); err != nil {
		t.Fatalf("decode round response: %v", err)
	}
	if !round.Complete {
		t.Fatal("expected round to report complete with the fake engine")
	}

	completeResp := doJSON(t, mux, http.MethodPost, "/signers/signer-a/sign/complete", map[string]any{
		"sessionId": created.SessionID,
	})
	if completeResp.Code != http.StatusOK {
		t.Fatalf("expected 200 from complete, got %d: %s", completeResp.Code, completeResp.Body.String())
	}
	var complete completeSignResponse
	if err := json.Unmarshal(completeResp.Body.Bytes(), &complete); err != nil {
		t.Fatalf("decode complete response: %v", err)
	}
	if complete.TxHash != "0xTxHash" {
		t.Fatalf("unexpected tx hash: %s", complete.TxHash)
	}
	_ = fx
}

func TestCreateSessionUnknownSignerReturns404(t *testing.T) {
	mux, _ := newTestRouter(t)

	resp := doJSON(t, mux, http.MethodPost, "/signers/does-not-exist/sign/session", map[string]any{
		"transaction": map[string]any{"to": "0xabc", "chainId": 1},
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.Code, resp.Body.String())
	}
	var e errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if e.Message == "" {
		t.Fatal("expected nonempty error message")
	}
}

func TestCreateSessionPolicyDenyReturns403WithViolations(t *testing.T) {
	mux, _ := newTestRouter(t)

	resp := doJSON(t, mux, http.MethodPost, "/signers/signer-a/sign/session", map[string]any{
		"transaction": map[string]any{
			"to": "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
			// exceeds the fixture's 1-ETH legacy policy cap
			"value":   "2000000000000000000",
			"chainId": 11155111,
		},
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.Code, resp.Body.String())
	}
	var e errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if len(e.Violations) == 0 {
		t.Fatal("expected nonempty violations in response")
	}
}

func TestMissingChainIDReturns403(t *testing.T) {
	mux, _ := newTestRouter(t)

	resp := doJSON(t, mux, http.MethodPost, "/signers/signer-a/sign/session", map[string]any{
		"transaction": map[string]any{"to": "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"},
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.Code, resp.Body.String())
	}
}
