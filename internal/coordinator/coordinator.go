// Package coordinator implements the interactive threshold-ECDSA signing
// state machine: create-session → process-round* → complete. It is the
// 40%-share core component spec.md names, wiring together the Session
// Table, Scheme Engine, Policy Gate, Transaction Populator, Chain Adapter,
// Recovery-ID Computer and the storage repositories without owning any of
// their internals. Grounded on the teacher's MPCServer in
// internal/server/server.go: constructor-injected collaborators, one
// session map, handler methods that validate then delegate.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardianwallet/signer/internal/chain"
	"github.com/guardianwallet/signer/internal/metrics"
	"github.com/guardianwallet/signer/internal/policy"
	"github.com/guardianwallet/signer/internal/recovery"
	"github.com/guardianwallet/signer/internal/scheme"
	"github.com/guardianwallet/signer/internal/secret"
	"github.com/guardianwallet/signer/internal/session"
	"github.com/guardianwallet/signer/internal/storage"
)

// roundsPerCeremony is the fixed round budget CGGMP24 signing needs; it
// bounds the roundsRemaining hint returned to peers (spec.md §6 example:
// "roundsRemaining: 4").
const roundsPerCeremony = 4

// Coordinator is the signing state machine. All fields are collaborators
// injected at construction; the coordinator owns no persistent state beyond
// the in-process Session Table.
type Coordinator struct {
	logger *zap.Logger

	signers storage.SignerRepo
	shares  storage.ShareStore
	audit   storage.AuditRepo

	gate *policy.Gate

	chainAdapter chain.Adapter
	populator    *chain.Populator

	engine   scheme.Engine
	sessions *session.Table

	now func() time.Time
}

// New constructs a Coordinator. sessions is typically session.New() with
// the process defaults; tests may supply one configured with a short TTL.
func New(
	logger *zap.Logger,
	signers storage.SignerRepo,
	shares storage.ShareStore,
	audit storage.AuditRepo,
	gate *policy.Gate,
	chainAdapter chain.Adapter,
	engine scheme.Engine,
	sessions *session.Table,
) *Coordinator {
	return &Coordinator{
		logger:       logger,
		signers:      signers,
		shares:       shares,
		audit:        audit,
		gate:         gate,
		chainAdapter: chainAdapter,
		populator:    chain.NewPopulator(chainAdapter),
		engine:       engine,
		sessions:     sessions,
		now:          time.Now,
	}
}

// CreateTxSessionInput is createTxSession's input, per spec.md §4.5.
type CreateTxSessionInput struct {
	SignerID    string
	Transaction chain.UnpopulatedTx
	SigningPath SigningPath
	CallerIP    string
}

// CreateSessionOutput is the response shape shared by createTxSession and
// createMessageSession, per spec.md §6.
type CreateSessionOutput struct {
	SessionID           string
	ServerFirstMessages []PeerMessage
	MessageHash         []byte
	EID                 []byte
	PartyConfig         PartyConfig
	RoundsRemaining     int
}

// CreateTxSession implements createTxSession: resolves the signer,
// populates and builds the transaction, gates it through policy, loads key
// material, and starts a signing ceremony. See spec.md §4.5 for the
// numbered effects this follows in order.
func (c *Coordinator) CreateTxSession(ctx context.Context, in CreateTxSessionInput) (out *CreateSessionOutput, err error) {
	defer func() { metrics.SessionsCreated.WithLabelValues(sessionCreationOutcome(err)).Inc() }()

	path := in.SigningPath
	if path == "" {
		path = SignerServer
	}
	pc, err := partyConfigFor(path)
	if err != nil {
		return nil, err
	}

	// 1. Capacity check.
	if c.sessions.Len() >= session.MaxConcurrentSessions {
		return nil, Forbidden("Too many concurrent signing sessions")
	}

	// 2. Load signer; require active.
	signer, err := c.signers.FindByID(ctx, in.SignerID)
	if err != nil {
		if errors.Is(err, storage.ErrSignerNotFound) {
			return nil, NotFound("signer not found")
		}
		return nil, Internal("load signer failed")
	}
	if signer.Status != storage.SignerActive {
		return nil, Forbidden(fmt.Sprintf("Signer is %s", signer.Status))
	}

	// 3. Require chainId.
	if in.Transaction.ChainID == 0 {
		return nil, Forbidden("chainId is required")
	}

	// 4. Populate missing fields.
	populated, err := c.populator.Populate(ctx, in.Transaction, signer.EthAddress)
	if err != nil {
		metrics.ChainErrors.WithLabelValues("populate").Inc()
		return nil, ChainErr(fmt.Sprintf("populate transaction: %v", err))
	}

	// 5. Build and decode.
	unsignedBytes, err := c.chainAdapter.BuildTransaction(ctx, populated)
	if err != nil {
		metrics.ChainErrors.WithLabelValues("build").Inc()
		return nil, ChainErr(fmt.Sprintf("build transaction: %v", err))
	}
	decoded, err := c.chainAdapter.DecodeTransaction(ctx, unsignedBytes)
	if err != nil {
		metrics.ChainErrors.WithLabelValues("decode").Inc()
		return nil, ChainErr(fmt.Sprintf("decode transaction: %v", err))
	}

	// 6. Policy gate.
	outcome, err := c.gate.Evaluate(ctx, policy.Intent{
		SignerID:     signer.ID,
		OwnerAddress: signer.OwnerAddress,
		ValueWei:     populated.Value,
		ChainID:      populated.ChainID,
		Selector:     decoded.FunctionSelector,
		CallerIP:     in.CallerIP,
	})
	if err != nil {
		return nil, Internal(fmt.Sprintf("policy evaluation failed: %v", err))
	}
	if !outcome.Allowed {
		for _, v := range outcome.Violations {
			metrics.PolicyViolations.WithLabelValues(v.Type).Inc()
		}
		c.writeAuditBlocked(storage.AuditEntry{
			SignerID: signer.ID, OwnerAddress: signer.OwnerAddress,
			RequestType: storage.RequestSignTx, Status: storage.AuditBlocked,
			SigningPath: string(path), ToAddress: decoded.To, ValueWei: populated.Value,
			ChainID: populated.ChainID, DecodedFunctionName: decoded.FunctionName,
			PoliciesEvaluated: outcome.EvaluatedCount, EvaluationTimeMs: outcome.EvaluationTimeMs,
			Violations: violationStrings(outcome.Violations),
		})
		return nil, PolicyViolationErr("Transaction blocked by policy", outcome.Violations)
	}

	// 7. messageHash.
	messageHash := crypto.Keccak256(unsignedBytes)

	// 8. eid.
	eid := make([]byte, 32)
	if _, err := rand.Read(eid); err != nil {
		return nil, Internal("generate execution id failed")
	}

	// 10. Load key material.
	raw, coreShare, auxInfo, expectedPublicKey, err := c.loadKeyMaterial(ctx, signer)
	if err != nil {
		c.writeAuditAwaited(storage.AuditEntry{
			SignerID: signer.ID, OwnerAddress: signer.OwnerAddress,
			RequestType: storage.RequestSignTx, Status: storage.AuditFailed,
			SigningPath: string(path), ToAddress: decoded.To, ValueWei: populated.Value,
			ChainID: populated.ChainID, DecodedFunctionName: decoded.FunctionName,
			PoliciesEvaluated: outcome.EvaluatedCount, EvaluationTimeMs: outcome.EvaluationTimeMs,
		})
		return nil, Internal("load key material failed")
	}

	// 11. Start signing, forcing the WASM backend for USER_SERVER.
	backend := scheme.BackendNative
	if path == UserServer {
		backend = scheme.BackendWasm
	}
	schemeSessionID := uuid.NewString()
	round, err := c.engine.StartSigning(scheme.SigningContext{
		SessionID:    schemeSessionID,
		PartyIndex:   localPartyIndex(pc.PartiesAtKeygen, pc.ServerPartyIndex),
		TotalParties: len(pc.PartiesAtKeygen),
		Threshold:    1,
		MessageHash:  messageHash,
		CoreShare:    coreShare.Bytes(),
		AuxInfo:      auxInfo.Bytes(),
		EID:          eid,
		Backend:      backend,
	})
	// 12. Wipe parsed share copies now that the scheme holds its internal form.
	coreShare.Wipe()
	auxInfo.Wipe()
	if err != nil {
		raw.Wipe()
		c.writeAuditAwaited(storage.AuditEntry{
			SignerID: signer.ID, OwnerAddress: signer.OwnerAddress,
			RequestType: storage.RequestSignTx, Status: storage.AuditFailed,
			SigningPath: string(path), ToAddress: decoded.To, ValueWei: populated.Value,
			ChainID: populated.ChainID, DecodedFunctionName: decoded.FunctionName,
			PoliciesEvaluated: outcome.EvaluatedCount, EvaluationTimeMs: outcome.EvaluationTimeMs,
		})
		return nil, SchemeErr(fmt.Sprintf("start signing: %v", err))
	}

	// 13. Allocate sessionId, insert state.
	state := &SessionState{
		kind:                   kindTx,
		signerID:               signer.ID,
		ethAddress:             signer.EthAddress,
		ownerAddress:           signer.OwnerAddress,
		expectedPublicKey:      expectedPublicKey,
		signingPath:            path,
		partyConfig:            pc,
		serverKeyMaterial:      raw,
		policyEvaluatedCount:   outcome.EvaluatedCount,
		policyEvaluationTimeMs: outcome.EvaluationTimeMs,
		schemeSessionID:        schemeSessionID,
		createdAt:              c.now(),
		unsignedTxBytes:        unsignedBytes,
		decodedTo:              decoded.To,
		decodedFunctionName:    decoded.FunctionName,
		valueWei:               populated.Value,
		chainID:                populated.ChainID,
		messageHash:            messageHash,
	}

	sessionID, err := c.sessions.TryInsert(state)
	if err != nil {
		raw.Wipe()
		return nil, Forbidden("Too many concurrent signing sessions")
	}

	return &CreateSessionOutput{
		SessionID:           sessionID,
		ServerFirstMessages: toOutbound(pc.ServerPartyIndex, round.Outbound, pc.PartiesAtKeygen),
		MessageHash:         messageHash,
		EID:                 eid,
		PartyConfig:         PartyConfig(pc),
		RoundsRemaining:     roundsPerCeremony,
	}, nil
}

// ProcessRoundInput is processRound's input, per spec.md §4.5.
type ProcessRoundInput struct {
	SessionID string
	SignerID  string
	Incoming  []PeerMessage
}

// ProcessRoundOutput is processRound's response, per spec.md §6.
type ProcessRoundOutput struct {
	Outgoing        []PeerMessage
	RoundsRemaining int
	Complete        bool
}

// ProcessRound implements processRound: enforces ownership and signer
// status, delegates one round to the Scheme Engine, and advances round.
func (c *Coordinator) ProcessRound(ctx context.Context, in ProcessRoundInput) (out *ProcessRoundOutput, err error) {
	start := c.now()
	defer func() {
		metrics.RoundDuration.Observe(c.now().Sub(start).Seconds())
		metrics.RoundsProcessed.WithLabelValues(roundResult(err)).Inc()
	}()

	state, err := c.fetchOwnedSession(ctx, in.SessionID, in.SignerID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	inbound := toInbound(state.partyConfig.PartiesAtKeygen, in.Incoming)
	round, err := c.engine.ProcessSigningRound(state.schemeSessionID, inbound)
	if err != nil {
		c.sessions.Destroy(in.SessionID)
		return nil, SchemeErr(fmt.Sprintf("process round: %v", err))
	}

	state.round++
	remaining := 0
	if round.Done {
		state.signResult = round.Sign
	} else {
		remaining = maxInt(1, roundsPerCeremony-state.round)
	}

	return &ProcessRoundOutput{
		Outgoing:        toOutbound(state.partyConfig.ServerPartyIndex, round.Outbound, state.partyConfig.PartiesAtKeygen),
		RoundsRemaining: remaining,
		Complete:        round.Done,
	}, nil
}

// CompleteSignInput is completeSign's input.
type CompleteSignInput struct {
	SessionID string
	SignerID  string
}

// CompleteSignOutput is completeSign's response, per spec.md §6.
type CompleteSignOutput struct {
	TxHash    string
	Signature chain.Signature
}

// CompleteSign implements completeSign: extracts (r,s) from the completed
// ceremony, derives v, serializes and broadcasts the transaction, and
// unconditionally destroys the session.
func (c *Coordinator) CompleteSign(ctx context.Context, in CompleteSignInput) (*CompleteSignOutput, error) {
	state, err := c.fetchOwnedSession(ctx, in.SessionID, in.SignerID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.kind != kindTx {
		c.sessions.Destroy(in.SessionID)
		return nil, Internal("session is not a transaction session")
	}
	if state.signResult == nil {
		c.sessions.Destroy(in.SessionID)
		return nil, Forbidden("session has not completed its signing rounds")
	}

	sig, err := finalizeSignature(state)
	if err != nil {
		c.sessions.Destroy(in.SessionID)
		return nil, err
	}

	signedBytes, err := c.chainAdapter.SerializeSignedTransaction(ctx, state.unsignedTxBytes, sig)
	if err != nil {
		metrics.ChainErrors.WithLabelValues("serialize").Inc()
		c.sessions.Destroy(in.SessionID)
		return nil, ChainErr(fmt.Sprintf("serialize signed transaction: %v", err))
	}

	txHash, broadcastErr := c.chainAdapter.BroadcastTransaction(ctx, signedBytes)

	status := storage.AuditApproved
	if broadcastErr != nil {
		metrics.ChainErrors.WithLabelValues("broadcast").Inc()
		status = storage.AuditFailed
	}
	metrics.SigningCompletions.WithLabelValues(string(storage.RequestSignTx), string(status)).Inc()
	c.writeAuditAwaited(storage.AuditEntry{
		SignerID: state.signerID, OwnerAddress: state.ownerAddress,
		RequestType: storage.RequestSignTx, Status: status, SigningPath: string(state.signingPath),
		ToAddress: state.decodedTo, ValueWei: state.valueWei, ChainID: state.chainID, TxHash: txHash,
		DecodedFunctionName: state.decodedFunctionName, PoliciesEvaluated: state.policyEvaluatedCount,
		EvaluationTimeMs: state.policyEvaluationTimeMs,
	})

	c.sessions.Destroy(in.SessionID)

	if broadcastErr != nil {
		c.logger.Error("coordinator: broadcast failed after signature extraction",
			zap.String("sessionId", in.SessionID), zap.Error(broadcastErr))
		return nil, ChainErr("broadcast transaction failed")
	}

	return &CompleteSignOutput{TxHash: txHash, Signature: sig}, nil
}

// CreateMessageSessionInput is createMessageSession's input, per spec.md
// §4.5: like createTxSession's but messageHash is supplied by the peer.
type CreateMessageSessionInput struct {
	SignerID     string
	MessageHash  []byte
	SigningPath  SigningPath
	FirstMessage *PeerMessage
	CallerIP     string
}

// CreateMessageSession implements createMessageSession.
func (c *Coordinator) CreateMessageSession(ctx context.Context, in CreateMessageSessionInput) (out *CreateSessionOutput, err error) {
	defer func() { metrics.SessionsCreated.WithLabelValues(sessionCreationOutcome(err)).Inc() }()

	if len(in.MessageHash) != 32 {
		return nil, Forbidden("messageHash must be 32 bytes")
	}

	path := in.SigningPath
	if path == "" {
		path = SignerServer
	}
	pc, err := partyConfigFor(path)
	if err != nil {
		return nil, err
	}

	if c.sessions.Len() >= session.MaxConcurrentSessions {
		return nil, Forbidden("Too many concurrent signing sessions")
	}

	signer, err := c.signers.FindByID(ctx, in.SignerID)
	if err != nil {
		if errors.Is(err, storage.ErrSignerNotFound) {
			return nil, NotFound("signer not found")
		}
		return nil, Internal("load signer failed")
	}
	if signer.Status != storage.SignerActive {
		return nil, Forbidden(fmt.Sprintf("Signer is %s", signer.Status))
	}

	// Message-signing contexts use valueWei=0, chainId=0 and skip spend
	// roll-ups (policy.Gate.Evaluate skips the roll-ups automatically on ChainID==0).
	outcome, err := c.gate.Evaluate(ctx, policy.Intent{
		SignerID:     signer.ID,
		OwnerAddress: signer.OwnerAddress,
		ValueWei:     big.NewInt(0),
		CallerIP:     in.CallerIP,
	})
	if err != nil {
		return nil, Internal(fmt.Sprintf("policy evaluation failed: %v", err))
	}
	if !outcome.Allowed {
		for _, v := range outcome.Violations {
			metrics.PolicyViolations.WithLabelValues(v.Type).Inc()
		}
		c.writeAuditBlocked(storage.AuditEntry{
			SignerID: signer.ID, OwnerAddress: signer.OwnerAddress,
			RequestType: storage.RequestSignMessage, Status: storage.AuditBlocked,
			SigningPath:       string(path),
			PoliciesEvaluated: outcome.EvaluatedCount, EvaluationTimeMs: outcome.EvaluationTimeMs,
			Violations: violationStrings(outcome.Violations),
		})
		return nil, PolicyViolationErr("Message signing blocked by policy", outcome.Violations)
	}

	eid := make([]byte, 32)
	if _, err := rand.Read(eid); err != nil {
		return nil, Internal("generate execution id failed")
	}

	raw, coreShare, auxInfo, expectedPublicKey, err := c.loadKeyMaterial(ctx, signer)
	if err != nil {
		c.writeAuditAwaited(storage.AuditEntry{
			SignerID: signer.ID, OwnerAddress: signer.OwnerAddress,
			RequestType: storage.RequestSignMessage, Status: storage.AuditFailed,
			SigningPath:       string(path),
			PoliciesEvaluated: outcome.EvaluatedCount, EvaluationTimeMs: outcome.EvaluationTimeMs,
		})
		return nil, Internal("load key material failed")
	}

	backend := scheme.BackendNative
	if path == UserServer {
		backend = scheme.BackendWasm
	}
	schemeSessionID := uuid.NewString()
	round, err := c.engine.StartSigning(scheme.SigningContext{
		SessionID:    schemeSessionID,
		PartyIndex:   localPartyIndex(pc.PartiesAtKeygen, pc.ServerPartyIndex),
		TotalParties: len(pc.PartiesAtKeygen),
		Threshold:    1,
		MessageHash:  in.MessageHash,
		CoreShare:    coreShare.Bytes(),
		AuxInfo:      auxInfo.Bytes(),
		EID:          eid,
		Backend:      backend,
	})
	coreShare.Wipe()
	auxInfo.Wipe()
	if err != nil {
		raw.Wipe()
		c.writeAuditAwaited(storage.AuditEntry{
			SignerID: signer.ID, OwnerAddress: signer.OwnerAddress,
			RequestType: storage.RequestSignMessage, Status: storage.AuditFailed,
			SigningPath:       string(path),
			PoliciesEvaluated: outcome.EvaluatedCount, EvaluationTimeMs: outcome.EvaluationTimeMs,
		})
		return nil, SchemeErr(fmt.Sprintf("start signing: %v", err))
	}

	outboundMsgs := round.Outbound
	round1Count := 0
	var signResult *scheme.SignResult

	// The peer's first message, if present, is processed immediately and
	// its output concatenated with the server's first messages.
	if in.FirstMessage != nil {
		next, err := c.engine.ProcessSigningRound(schemeSessionID, toInbound(pc.PartiesAtKeygen, []PeerMessage{*in.FirstMessage}))
		if err != nil {
			raw.Wipe()
			c.engine.AbortSigning(schemeSessionID)
			return nil, SchemeErr(fmt.Sprintf("process first message: %v", err))
		}
		round1Count++
		outboundMsgs = append(outboundMsgs, next.Outbound...)
		if next.Done {
			signResult = next.Sign
		}
	}

	state := &SessionState{
		kind:                   kindMessage,
		signerID:               signer.ID,
		ethAddress:             signer.EthAddress,
		ownerAddress:           signer.OwnerAddress,
		expectedPublicKey:      expectedPublicKey,
		signingPath:            path,
		partyConfig:            pc,
		serverKeyMaterial:      raw,
		policyEvaluatedCount:   outcome.EvaluatedCount,
		policyEvaluationTimeMs: outcome.EvaluationTimeMs,
		schemeSessionID:        schemeSessionID,
		round:                  round1Count,
		createdAt:              c.now(),
		messageHash:            in.MessageHash,
		signResult:             signResult,
	}

	sessionID, err := c.sessions.TryInsert(state)
	if err != nil {
		raw.Wipe()
		return nil, Forbidden("Too many concurrent signing sessions")
	}

	remaining := roundsPerCeremony - round1Count
	if signResult != nil {
		remaining = 0
	}

	return &CreateSessionOutput{
		SessionID:           sessionID,
		ServerFirstMessages: toOutbound(pc.ServerPartyIndex, outboundMsgs, pc.PartiesAtKeygen),
		MessageHash:         in.MessageHash,
		EID:                 eid,
		PartyConfig:         PartyConfig(pc),
		RoundsRemaining:     maxInt(0, remaining),
	}, nil
}

// CompleteMessageSignInput is completeMessageSign's input.
type CompleteMessageSignInput struct {
	SessionID string
	SignerID  string
}

// CompleteMessageSignOutput is completeMessageSign's response: no
// broadcast, no txHash.
type CompleteMessageSignOutput struct {
	Signature chain.Signature
}

// CompleteMessageSign implements completeMessageSign.
func (c *Coordinator) CompleteMessageSign(ctx context.Context, in CompleteMessageSignInput) (*CompleteMessageSignOutput, error) {
	state, err := c.fetchOwnedSession(ctx, in.SessionID, in.SignerID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.kind != kindMessage {
		return nil, Internal("session is not a message session")
	}
	if state.signResult == nil {
		return nil, Forbidden("session has not completed its signing rounds")
	}

	sig, err := finalizeSignature(state)
	if err != nil {
		c.sessions.Destroy(in.SessionID)
		return nil, err
	}

	metrics.SigningCompletions.WithLabelValues(string(storage.RequestSignMessage), string(storage.AuditApproved)).Inc()
	c.writeAuditAwaited(storage.AuditEntry{
		SignerID: state.signerID, OwnerAddress: state.ownerAddress,
		RequestType: storage.RequestSignMessage, Status: storage.AuditApproved,
		SigningPath: string(state.signingPath), PoliciesEvaluated: state.policyEvaluatedCount,
		EvaluationTimeMs: state.policyEvaluationTimeMs,
	})

	c.sessions.Destroy(in.SessionID)

	return &CompleteMessageSignOutput{Signature: sig}, nil
}

// fetchOwnedSession fetches a session by id and enforces ownership and
// signer-active status, destroying the session on any violation that
// spec.md §4.5/§8 scenario 6 says must terminate it.
func (c *Coordinator) fetchOwnedSession(ctx context.Context, sessionID, signerID string) (*SessionState, error) {
	entry, err := c.sessions.GetOrExpire(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrExpired) {
			return nil, Forbidden("Session expired")
		}
		return nil, NotFound("session not found")
	}
	state, ok := entry.(*SessionState)
	if !ok {
		return nil, Internal("session entry has unexpected type")
	}

	if state.signerID != signerID {
		return nil, Forbidden("Session does not belong to this signer")
	}

	signer, err := c.signers.FindByID(ctx, state.signerID)
	if err != nil || signer.Status != storage.SignerActive {
		c.sessions.Destroy(sessionID)
		status := "unavailable"
		if signer != nil {
			status = string(signer.Status)
		}
		return nil, Forbidden(fmt.Sprintf("Signer is %s", status))
	}

	return state, nil
}

func finalizeSignature(state *SessionState) (chain.Signature, error) {
	bit, _, err := recovery.Compute(state.messageHash, state.signResult.R, state.signResult.S, state.expectedPublicKey)
	if err != nil {
		return chain.Signature{}, SchemeErr("recovery id computation failed")
	}
	return chain.Signature{R: state.signResult.R, S: state.signResult.S, V: bit + 27}, nil
}

// loadKeyMaterial reads, parses, and extracts the expected public key from
// a signer's share-store entry, per spec.md §4.5 step 10. On any failure
// the raw buffer is wiped before returning; per this repo's Open Question
// decision (DESIGN.md), a failed public-key extraction is a hard error
// rather than a degrade-to-try-both-bits fallback.
func (c *Coordinator) loadKeyMaterial(ctx context.Context, signer *storage.Signer) (raw, coreShare, auxInfo *secret.Buffer, expectedPublicKey []byte, err error) {
	rawBytes, err := c.shares.GetShare(ctx, signer.SharePath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("coordinator: read share: %w", err)
	}
	raw = secret.New(rawBytes)

	var doc keyMaterialDoc
	if err := json.Unmarshal(raw.Bytes(), &doc); err != nil {
		raw.Wipe()
		return nil, nil, nil, nil, fmt.Errorf("coordinator: parse key material: %w", err)
	}

	pub, err := scheme.ExtractCompressedPublicKey(doc.CoreShare)
	if err != nil {
		raw.Wipe()
		return nil, nil, nil, nil, fmt.Errorf("coordinator: extract public key: %w", err)
	}

	coreShare = secret.New(doc.CoreShare)
	auxInfo = secret.New(doc.AuxInfo)
	return raw, coreShare, auxInfo, pub, nil
}

func (c *Coordinator) writeAuditBlocked(entry storage.AuditEntry) {
	go func() {
		if err := c.audit.Create(context.Background(), entry); err != nil {
			c.logger.Error("coordinator: failed to write blocked audit entry", zap.Error(err))
		}
	}()
}

func (c *Coordinator) writeAuditAwaited(entry storage.AuditEntry) {
	if err := c.audit.Create(context.Background(), entry); err != nil {
		c.logger.Error("coordinator: failed to write audit entry",
			zap.String("status", string(entry.Status)), zap.Error(err))
	}
}

// sessionCreationOutcome classifies a createTxSession/createMessageSession
// result for the SessionsCreated metric's "outcome" label.
func sessionCreationOutcome(err error) string {
	if err == nil {
		return "allowed"
	}
	if ce, ok := err.(*Error); ok && ce.Kind == KindPolicyViolation {
		return "policy_blocked"
	}
	return "rejected"
}

// roundResult classifies a processRound result for the RoundsProcessed
// metric's "result" label.
func roundResult(err error) string {
	if err == nil {
		return "ok"
	}
	if ce, ok := err.(*Error); ok {
		switch ce.Kind {
		case KindSchemeError:
			return "scheme_error"
		case KindForbidden, KindNotFound:
			return "forbidden"
		}
	}
	return "internal"
}

func violationStrings(violations []policy.Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Type + ": " + v.Reason
	}
	return out
}
