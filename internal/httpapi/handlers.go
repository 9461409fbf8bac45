package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"go.uber.org/zap"

	"github.com/guardianwallet/signer/internal/chain"
	"github.com/guardianwallet/signer/internal/coordinator"
	"github.com/guardianwallet/signer/internal/peer"
)

type handler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

// writeJSON and readJSON follow the ReadyTrader-Crypto mpc_signer example's
// stdlib-only request/response helpers.
func writeJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(obj)
}

func readJSON(r *http.Request, dst any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

type errorResponse struct {
	Message    string              `json:"message"`
	Violations []violationResponse `json:"violations,omitempty"`
}

type violationResponse struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// writeError maps a coordinator.Error's Kind to the HTTP status spec.md §7
// assigns it. Any other error is treated as internal.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	ce, ok := err.(*coordinator.Error)
	if !ok {
		h.logger.Error("httpapi: unmapped error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	status := statusForKind(ce.Kind)
	resp := errorResponse{Message: ce.Message}
	for _, v := range ce.Violations {
		resp.Violations = append(resp.Violations, violationResponse{Type: v.Type, Reason: v.Reason})
	}
	if status >= 500 {
		h.logger.Error("httpapi: request failed", zap.String("kind", string(ce.Kind)), zap.String("message", ce.Message))
	}
	writeJSON(w, status, resp)
}

func statusForKind(kind coordinator.Kind) int {
	switch kind {
	case coordinator.KindNotFound:
		return http.StatusNotFound
	case coordinator.KindForbidden, coordinator.KindPolicyViolation:
		return http.StatusForbidden
	case coordinator.KindChainError:
		return http.StatusBadGateway
	case coordinator.KindSchemeError, coordinator.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// --- wire <-> domain translation for transaction fields ---

type txRequest struct {
	To                   string  `json:"to"`
	Value                *string `json:"value,omitempty"`
	Data                 *string `json:"data,omitempty"`
	ChainID              uint64  `json:"chainId"`
	Nonce                *uint64 `json:"nonce,omitempty"`
	GasLimit             *uint64 `json:"gasLimit,omitempty"`
	GasPrice             *string `json:"gasPrice,omitempty"`
	MaxFeePerGas         *string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas,omitempty"`
}

func (t txRequest) toUnpopulatedTx() (chain.UnpopulatedTx, error) {
	out := chain.UnpopulatedTx{To: t.To, ChainID: t.ChainID, Nonce: t.Nonce, GasLimit: t.GasLimit}

	parseWei := func(s *string, label string) (*big.Int, error) {
		if s == nil {
			return nil, nil
		}
		n, ok := new(big.Int).SetString(*s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid %s: %q", label, *s)
		}
		return n, nil
	}

	var err error
	if out.Value, err = parseWei(t.Value, "value"); err != nil {
		return out, err
	}
	if out.GasPrice, err = parseWei(t.GasPrice, "gasPrice"); err != nil {
		return out, err
	}
	if out.MaxFeePerGas, err = parseWei(t.MaxFeePerGas, "maxFeePerGas"); err != nil {
		return out, err
	}
	if out.MaxPriorityFeePerGas, err = parseWei(t.MaxPriorityFeePerGas, "maxPriorityFeePerGas"); err != nil {
		return out, err
	}
	if out.Value == nil {
		out.Value = big.NewInt(0)
	}
	if t.Data != nil {
		data, err := base64.StdEncoding.DecodeString(*t.Data)
		if err != nil {
			return out, fmt.Errorf("invalid data: %w", err)
		}
		out.Data = data
	}
	return out, nil
}

type partyConfigResponse struct {
	ServerPartyIndex int   `json:"serverPartyIndex"`
	ClientPartyIndex int   `json:"clientPartyIndex"`
	PartiesAtKeygen  []int `json:"partiesAtKeygen"`
}

type createSessionResponse struct {
	SessionID           string              `json:"sessionId"`
	ServerFirstMessages []string            `json:"serverFirstMessages"`
	MessageHash         string              `json:"messageHash"`
	EID                 string              `json:"eid"`
	PartyConfig         partyConfigResponse `json:"partyConfig"`
	RoundsRemaining     int                 `json:"roundsRemaining"`
}

func toCreateSessionResponse(out *coordinator.CreateSessionOutput) (createSessionResponse, error) {
	msgs := make([]string, len(out.ServerFirstMessages))
	for i, m := range out.ServerFirstMessages {
		enc, err := encodeEnvelope(m)
		if err != nil {
			return createSessionResponse{}, err
		}
		msgs[i] = enc
	}
	return createSessionResponse{
		SessionID:           out.SessionID,
		ServerFirstMessages: msgs,
		MessageHash:         base64.StdEncoding.EncodeToString(out.MessageHash),
		EID:                 base64.StdEncoding.EncodeToString(out.EID),
		PartyConfig: partyConfigResponse{
			ServerPartyIndex: out.PartyConfig.ServerPartyIndex,
			ClientPartyIndex: out.PartyConfig.ClientPartyIndex,
			PartiesAtKeygen:  out.PartyConfig.PartiesAtKeygen,
		},
		RoundsRemaining: out.RoundsRemaining,
	}, nil
}

// encodeEnvelope wraps one coordinator.PeerMessage into spec.md §6's peer
// opaque message JSON, base64-encoded for its slot in a messages array.
func encodeEnvelope(m coordinator.PeerMessage) (string, error) {
	envelope := peer.Encode(m.Sender, m.Recipient, m.IsBroadcast, m.Payload)
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeEnvelope is encodeEnvelope's inverse, used to parse the `messages`
// array peers submit to /sign/round.
func decodeEnvelope(s string) (coordinator.PeerMessage, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return coordinator.PeerMessage{}, fmt.Errorf("invalid envelope base64: %w", err)
	}
	var envelope peer.Message
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return coordinator.PeerMessage{}, fmt.Errorf("invalid envelope json: %w", err)
	}
	payload, err := envelope.Decode()
	if err != nil {
		return coordinator.PeerMessage{}, fmt.Errorf("invalid envelope payload: %w", err)
	}
	return coordinator.PeerMessage{
		Sender:      envelope.Sender,
		IsBroadcast: envelope.IsBroadcast,
		Recipient:   envelope.Recipient,
		Payload:     payload,
	}, nil
}

func decodeEnvelopes(ss []string) ([]coordinator.PeerMessage, error) {
	out := make([]coordinator.PeerMessage, 0, len(ss))
	for _, s := range ss {
		m, err := decodeEnvelope(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// --- createTxSession ---

type createTxSessionRequest struct {
	Transaction txRequest `json:"transaction"`
}

func (h *handler) createTxSession(w http.ResponseWriter, r *http.Request) {
	signerID := r.PathValue("id")

	var req createTxSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	tx, err := req.Transaction.toUnpopulatedTx()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	out, err := h.coord.CreateTxSession(r.Context(), coordinator.CreateTxSessionInput{
		SignerID:    signerID,
		Transaction: tx,
		CallerIP:    callerIP(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := toCreateSessionResponse(out)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to encode response"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- createMessageSession ---

type createMessageSessionRequest struct {
	MessageHash  string  `json:"messageHash"`
	FirstMessage *string `json:"firstMessage,omitempty"`
}

func (h *handler) createMessageSession(w http.ResponseWriter, r *http.Request) {
	signerID := r.PathValue("id")

	var req createMessageSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	hash, err := base64.StdEncoding.DecodeString(req.MessageHash)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid messageHash"})
		return
	}

	in := coordinator.CreateMessageSessionInput{SignerID: signerID, MessageHash: hash, CallerIP: callerIP(r)}
	if req.FirstMessage != nil {
		msg, err := decodeEnvelope(*req.FirstMessage)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
			return
		}
		in.FirstMessage = &msg
	}

	out, err := h.coord.CreateMessageSession(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := toCreateSessionResponse(out)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to encode response"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- processRound (shared by tx and message paths) ---

type processRoundRequest struct {
	SessionID string   `json:"sessionId"`
	Messages  []string `json:"messages"`
}

type processRoundResponse struct {
	Messages        []string `json:"messages"`
	RoundsRemaining int      `json:"roundsRemaining"`
	Complete        bool     `json:"complete"`
}

func (h *handler) processRound(w http.ResponseWriter, r *http.Request) {
	signerID := r.PathValue("id")

	var req processRoundRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	incoming, err := decodeEnvelopes(req.Messages)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	out, err := h.coord.ProcessRound(r.Context(), coordinator.ProcessRoundInput{
		SessionID: req.SessionID, SignerID: signerID, Incoming: incoming,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	msgs := make([]string, len(out.Outgoing))
	for i, m := range out.Outgoing {
		enc, err := encodeEnvelope(m)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to encode response"})
			return
		}
		msgs[i] = enc
	}

	writeJSON(w, http.StatusOK, processRoundResponse{
		Messages: msgs, RoundsRemaining: out.RoundsRemaining, Complete: out.Complete,
	})
}

// --- completeSign / completeMessageSign ---

type completeRequest struct {
	SessionID string `json:"sessionId"`
}

type signatureResponse struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

func toSignatureResponse(sig chain.Signature) signatureResponse {
	return signatureResponse{
		R: "0x" + hex.EncodeToString(sig.R),
		S: "0x" + hex.EncodeToString(sig.S),
		V: sig.V,
	}
}

type completeSignResponse struct {
	TxHash    string            `json:"txHash"`
	Signature signatureResponse `json:"signature"`
}

func (h *handler) completeSign(w http.ResponseWriter, r *http.Request) {
	signerID := r.PathValue("id")

	var req completeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	out, err := h.coord.CompleteSign(r.Context(), coordinator.CompleteSignInput{
		SessionID: req.SessionID, SignerID: signerID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completeSignResponse{
		TxHash: out.TxHash, Signature: toSignatureResponse(out.Signature),
	})
}

type completeMessageSignResponse struct {
	Signature signatureResponse `json:"signature"`
}

func (h *handler) completeMessageSign(w http.ResponseWriter, r *http.Request) {
	signerID := r.PathValue("id")

	var req completeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	out, err := h.coord.CompleteMessageSign(r.Context(), coordinator.CompleteMessageSignInput{
		SessionID: req.SessionID, SignerID: signerID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completeMessageSignResponse{Signature: toSignatureResponse(out.Signature)})
}

func callerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
