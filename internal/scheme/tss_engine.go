package scheme

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/bnb-chain/tss-lib/v2/common"
	"github.com/bnb-chain/tss-lib/v2/ecdsa/keygen"
	"github.com/bnb-chain/tss-lib/v2/ecdsa/signing"
	"github.com/bnb-chain/tss-lib/v2/tss"
	"go.uber.org/zap"
)

// TSSEngine is the Engine implementation backed by bnb-chain/tss-lib/v2.
// Session bookkeeping follows the teacher's SigningHandler/DKGHandler
// shape: one RWMutex-guarded map of session id to in-flight party state,
// each entry additionally guarded by its own mutex so round processing
// never races with itself.
type TSSEngine struct {
	logger *zap.Logger

	signMu   sync.RWMutex
	signing  map[string]*signSession
	keygenMu sync.RWMutex
	keygen   map[string]*keygenSession
}

// NewTSSEngine constructs an Engine ready to run signing and keygen
// ceremonies.
func NewTSSEngine(logger *zap.Logger) *TSSEngine {
	return &TSSEngine{
		logger:  logger,
		signing: make(map[string]*signSession),
		keygen:  make(map[string]*keygenSession),
	}
}

type signSession struct {
	mu        sync.Mutex
	party     tss.Party
	outCh     chan tss.Message
	endCh     chan common.SignatureData
	errCh     chan *tss.Error
	partyIDs  tss.SortedPartyIDs
	publicKey *ecdsa.PublicKey
	msgHash   []byte
}

type keygenSession struct {
	mu       sync.Mutex
	party    tss.Party
	outCh    chan tss.Message
	endCh    chan keygen.LocalPartySaveData
	errCh    chan *tss.Error
	partyIDs tss.SortedPartyIDs
}

// ErrBackendMismatch is returned when a session requests a backend this
// engine cannot serve. TSSEngine runs bnb-chain/tss-lib in-process and
// stands in for the native GMP-backed party only; a browser peer's
// WASM-compatible backend is a distinct implementation outside this
// repo's scope, so any session pinned to BackendWasm fails loudly here
// rather than silently producing non-interoperable wire messages.
var ErrBackendMismatch = fmt.Errorf("scheme: engine only serves the native backend, session requested a different one")

func sortedPartyIDs(total int) tss.SortedPartyIDs {
	ids := make([]*tss.PartyID, total)
	for i := 0; i < total; i++ {
		ids[i] = tss.NewPartyID(fmt.Sprintf("party-%d", i), fmt.Sprintf("Party %d", i), big.NewInt(int64(i+1)))
	}
	return tss.SortPartyIDs(ids)
}

// StartSigning begins a signing ceremony for the local party and returns
// whatever first-round traffic the scheme library produces immediately.
func (e *TSSEngine) StartSigning(ctx SigningContext) (*Round, error) {
	e.signMu.Lock()
	defer e.signMu.Unlock()

	if _, exists := e.signing[ctx.SessionID]; exists {
		return nil, fmt.Errorf("scheme: signing session already started: %s", ctx.SessionID)
	}

	if ctx.Backend != "" && ctx.Backend != BackendNative {
		return nil, ErrBackendMismatch
	}

	var saveData keygen.LocalPartySaveData
	if err := json.Unmarshal(ctx.CoreShare, &saveData); err != nil {
		return nil, fmt.Errorf("scheme: deserialize share data: %w", err)
	}

	var publicKey *ecdsa.PublicKey
	if saveData.ECDSAPub != nil {
		publicKey = saveData.ECDSAPub.ToECDSAPubKey()
	}

	ids := sortedPartyIDs(ctx.TotalParties)
	thisID := ids[ctx.PartyIndex]
	signingIDs := ids[:ctx.Threshold+1]
	peerCtx := tss.NewPeerContext(signingIDs)
	params := tss.NewParameters(tss.S256(), peerCtx, thisID, len(signingIDs), ctx.Threshold)

	outCh := make(chan tss.Message, 100)
	endCh := make(chan common.SignatureData, 1)
	errCh := make(chan *tss.Error, 1)

	msgInt := new(big.Int).SetBytes(ctx.MessageHash)
	party := signing.NewLocalParty(msgInt, params, saveData, outCh, endCh)

	sess := &signSession{
		party:     party,
		outCh:     outCh,
		endCh:     endCh,
		errCh:     errCh,
		partyIDs:  ids,
		publicKey: publicKey,
		msgHash:   ctx.MessageHash,
	}
	e.signing[ctx.SessionID] = sess

	go func() {
		if err := party.Start(); err != nil {
			e.logger.Error("scheme: signing party failed to start", zap.Error(err))
			errCh <- err
		}
	}()

	out, err := collectOutgoing(outCh, ids)
	if err != nil {
		delete(e.signing, ctx.SessionID)
		return nil, err
	}
	return &Round{Outbound: out}, nil
}

// ProcessSigningRound feeds inbound traffic into the ceremony and reports
// either more outbound traffic or the final signature.
func (e *TSSEngine) ProcessSigningRound(sessionID string, inbound []PartyMessage) (*Round, error) {
	e.signMu.RLock()
	sess, ok := e.signing[sessionID]
	e.signMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scheme: unknown signing session: %s", sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	for _, in := range inbound {
		if in.FromParty < 0 || in.FromParty >= len(sess.partyIDs) {
			e.logger.Warn("scheme: inbound message from invalid party index", zap.Int("from", in.FromParty))
			continue
		}
		fromID := sess.partyIDs[in.FromParty]
		parsed, err := tss.ParseWireMessage(in.Payload, fromID, true)
		if err != nil {
			e.logger.Warn("scheme: failed to parse inbound signing message", zap.Error(err))
			continue
		}
		if _, err := sess.party.Update(parsed); err != nil {
			e.logger.Warn("scheme: signing party update failed", zap.Error(err))
		}
	}

	select {
	case sigData := <-sess.endCh:
		if sess.publicKey != nil {
			r := new(big.Int).SetBytes(sigData.R)
			s := new(big.Int).SetBytes(sigData.S)
			if !ecdsa.Verify(sess.publicKey, sess.msgHash, r, s) {
				e.signMu.Lock()
				delete(e.signing, sessionID)
				e.signMu.Unlock()
				return nil, fmt.Errorf("scheme: signature failed local verification")
			}
		}
		e.signMu.Lock()
		delete(e.signing, sessionID)
		e.signMu.Unlock()
		return &Round{Done: true, Sign: &SignResult{R: padTo32(sigData.R), S: padTo32(sigData.S)}}, nil

	case tssErr := <-sess.errCh:
		e.signMu.Lock()
		delete(e.signing, sessionID)
		e.signMu.Unlock()
		return nil, fmt.Errorf("scheme: signing ceremony error: %v", tssErr)

	case <-time.After(roundTimeout):
	}

	out, err := collectOutgoing(sess.outCh, sess.partyIDs)
	if err != nil {
		return nil, err
	}
	return &Round{Outbound: out}, nil
}

// AbortSigning discards in-flight ceremony state for sessionID, if any.
func (e *TSSEngine) AbortSigning(sessionID string) {
	e.signMu.Lock()
	defer e.signMu.Unlock()
	delete(e.signing, sessionID)
}

// StartKeygen begins a distributed key generation ceremony for the local
// party.
func (e *TSSEngine) StartKeygen(ctx KeygenContext) (*Round, error) {
	e.keygenMu.Lock()
	defer e.keygenMu.Unlock()

	if _, exists := e.keygen[ctx.SessionID]; exists {
		return nil, fmt.Errorf("scheme: keygen session already started: %s", ctx.SessionID)
	}

	ids := sortedPartyIDs(ctx.TotalParties)
	thisID := ids[ctx.PartyIndex]
	peerCtx := tss.NewPeerContext(ids)
	params := tss.NewParameters(tss.S256(), peerCtx, thisID, ctx.TotalParties, ctx.Threshold)

	outCh := make(chan tss.Message, 100)
	endCh := make(chan keygen.LocalPartySaveData, 1)
	errCh := make(chan *tss.Error, 1)

	party := keygen.NewLocalParty(params, outCh, endCh)

	sess := &keygenSession{
		party:    party,
		outCh:    outCh,
		endCh:    endCh,
		errCh:    errCh,
		partyIDs: ids,
	}
	e.keygen[ctx.SessionID] = sess

	go func() {
		if err := party.Start(); err != nil {
			e.logger.Error("scheme: keygen party failed to start", zap.Error(err))
			errCh <- &tss.Error{Cause: err}
		}
	}()

	out, err := collectOutgoing(outCh, ids)
	if err != nil {
		delete(e.keygen, ctx.SessionID)
		return nil, err
	}
	return &Round{Outbound: out}, nil
}

// ProcessKeygenRound feeds inbound traffic into the ceremony and reports
// either more outbound traffic or the final share material.
func (e *TSSEngine) ProcessKeygenRound(sessionID string, inbound []PartyMessage) (*Round, error) {
	e.keygenMu.RLock()
	sess, ok := e.keygen[sessionID]
	e.keygenMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scheme: unknown keygen session: %s", sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	for _, in := range inbound {
		if in.FromParty < 0 || in.FromParty >= len(sess.partyIDs) {
			e.logger.Warn("scheme: inbound message from invalid party index", zap.Int("from", in.FromParty))
			continue
		}
		fromID := sess.partyIDs[in.FromParty]
		parsed, err := tss.ParseWireMessage(in.Payload, fromID, true)
		if err != nil {
			e.logger.Warn("scheme: failed to parse inbound keygen message", zap.Error(err))
			continue
		}
		if _, err := sess.party.Update(parsed); err != nil {
			e.logger.Warn("scheme: keygen party update failed", zap.Error(err))
		}
	}

	select {
	case saveData := <-sess.endCh:
		result, err := buildKeygenResult(saveData)
		if err != nil {
			e.keygenMu.Lock()
			delete(e.keygen, sessionID)
			e.keygenMu.Unlock()
			return nil, err
		}
		e.keygenMu.Lock()
		delete(e.keygen, sessionID)
		e.keygenMu.Unlock()
		return &Round{Done: true, Keygen: result}, nil

	case tssErr := <-sess.errCh:
		e.keygenMu.Lock()
		delete(e.keygen, sessionID)
		e.keygenMu.Unlock()
		return nil, fmt.Errorf("scheme: keygen ceremony error: %v", tssErr)

	case <-time.After(roundTimeout):
	}

	out, err := collectOutgoing(sess.outCh, sess.partyIDs)
	if err != nil {
		return nil, err
	}
	return &Round{Outbound: out}, nil
}

// AbortKeygen discards in-flight ceremony state for sessionID, if any.
func (e *TSSEngine) AbortKeygen(sessionID string) {
	e.keygenMu.Lock()
	defer e.keygenMu.Unlock()
	delete(e.keygen, sessionID)
}

func collectOutgoing(outCh chan tss.Message, ids tss.SortedPartyIDs) ([]PartyMessage, error) {
	var out []PartyMessage

	select {
	case msg := <-outCh:
		converted, err := convertMessage(msg, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	case <-time.After(roundTimeout):
		return nil, nil
	}

	for {
		select {
		case msg := <-outCh:
			converted, err := convertMessage(msg, ids)
			if err != nil {
				return nil, err
			}
			out = append(out, converted...)
		default:
			return out, nil
		}
	}
}

func convertMessage(msg tss.Message, ids tss.SortedPartyIDs) ([]PartyMessage, error) {
	wireBytes, routing, err := msg.WireBytes()
	if err != nil {
		return nil, fmt.Errorf("scheme: serialize round message: %w", err)
	}

	if routing.IsBroadcast {
		return []PartyMessage{{ToParty: -1, Broadcast: true, Payload: wireBytes}}, nil
	}

	var out []PartyMessage
	for _, to := range routing.To {
		for i, id := range ids {
			if id.Id == to.Id {
				out = append(out, PartyMessage{ToParty: i, Payload: wireBytes})
				break
			}
		}
	}
	return out, nil
}

// ExtractCompressedPublicKey parses a coreShare blob in the wire format this
// engine produces (a marshaled keygen.LocalPartySaveData) and returns its
// compressed secp256k1 public key. This lets the coordinator populate
// SessionState.expectedPublicKey for recovery-id verification without
// depending on tss-lib's save-data shape directly.
func ExtractCompressedPublicKey(coreShare []byte) ([]byte, error) {
	var saveData keygen.LocalPartySaveData
	if err := json.Unmarshal(coreShare, &saveData); err != nil {
		return nil, fmt.Errorf("scheme: parse core share: %w", err)
	}
	if saveData.ECDSAPub == nil {
		return nil, fmt.Errorf("scheme: core share missing public key")
	}
	return compressPubKey(saveData.ECDSAPub.ToECDSAPubKey()), nil
}

func buildKeygenResult(saveData keygen.LocalPartySaveData) (*KeygenResult, error) {
	if saveData.ECDSAPub == nil {
		return nil, fmt.Errorf("scheme: keygen completed without a public key")
	}
	pub := saveData.ECDSAPub.ToECDSAPubKey()

	saveDataBytes, err := json.Marshal(saveData)
	if err != nil {
		return nil, fmt.Errorf("scheme: serialize share data: %w", err)
	}

	return &KeygenResult{
		PublicKeyCompressed:   compressPubKey(pub),
		PublicKeyUncompressed: uncompressPubKey(pub),
		ShareData:             saveDataBytes,
	}, nil
}

func compressPubKey(pub *ecdsa.PublicKey) []byte {
	prefix := byte(0x02)
	if pub.Y.Bit(0) == 1 {
		prefix = 0x03
	}
	out := make([]byte, 33)
	out[0] = prefix
	pub.X.FillBytes(out[1:])
	return out
}

func uncompressPubKey(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	pub.X.FillBytes(out[1:33])
	pub.Y.FillBytes(out[33:65])
	return out
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b[:32]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
