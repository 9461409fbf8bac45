package coordinator

import (
	"math/big"
	"sync"
	"time"

	"github.com/guardianwallet/signer/internal/scheme"
	"github.com/guardianwallet/signer/internal/secret"
)

// SigningPath selects which second party the coordinator is pairing with,
// per spec.md §4.5.4.
type SigningPath string

const (
	SignerServer SigningPath = "SIGNER_SERVER"
	UserServer   SigningPath = "USER_SERVER"
	SignerUser   SigningPath = "SIGNER_USER"
)

// partyConfig is the fixed DKG-party-index convention spec.md §4.5.4 names:
// index 0 = signer (agent), 1 = server, 2 = user (browser).
type partyConfig struct {
	ServerPartyIndex int
	ClientPartyIndex int
	PartiesAtKeygen  []int
}

// PartyConfig is the wire-shaped view of partyConfig returned to callers.
type PartyConfig struct {
	ServerPartyIndex int
	ClientPartyIndex int
	PartiesAtKeygen  []int
}

func partyConfigFor(path SigningPath) (partyConfig, error) {
	switch path {
	case SignerServer, "":
		return partyConfig{ServerPartyIndex: 1, ClientPartyIndex: 0, PartiesAtKeygen: []int{0, 1}}, nil
	case UserServer:
		return partyConfig{ServerPartyIndex: 1, ClientPartyIndex: 2, PartiesAtKeygen: []int{1, 2}}, nil
	case SignerUser:
		return partyConfig{ServerPartyIndex: 1, ClientPartyIndex: 0, PartiesAtKeygen: []int{0, 1}}, nil
	default:
		return partyConfig{}, Internal("unknown signing path: " + string(path))
	}
}

// localPartyIndex translates a global party index (the 0=signer/1=server/
// 2=user convention) into the local 0/1 index the two-party scheme-engine
// ceremony for this session actually uses.
func localPartyIndex(partiesAtKeygen []int, global int) int {
	for i, p := range partiesAtKeygen {
		if p == global {
			return i
		}
	}
	return 0
}

// PeerMessage is the coordinator-level shape of one hop of opaque scheme
// traffic, addressed using the global party-index convention. The REST
// transport (internal/peer, internal/httpapi) wraps/unwraps these into the
// base64 JSON envelope spec.md §6 describes; the coordinator never inspects
// Payload.
type PeerMessage struct {
	Sender      int
	IsBroadcast bool
	Recipient   int
	Payload     []byte
}

func toOutbound(serverIndex int, msgs []scheme.PartyMessage, partiesAtKeygen []int) []PeerMessage {
	out := make([]PeerMessage, 0, len(msgs))
	for _, m := range msgs {
		recipient := 0
		if !m.Broadcast && m.ToParty >= 0 && m.ToParty < len(partiesAtKeygen) {
			recipient = partiesAtKeygen[m.ToParty]
		}
		out = append(out, PeerMessage{
			Sender:      serverIndex,
			IsBroadcast: m.Broadcast,
			Recipient:   recipient,
			Payload:     m.Payload,
		})
	}
	return out
}

func toInbound(partiesAtKeygen []int, msgs []PeerMessage) []scheme.PartyMessage {
	out := make([]scheme.PartyMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, scheme.PartyMessage{
			FromParty: localPartyIndex(partiesAtKeygen, m.Sender),
			Broadcast: m.IsBroadcast,
			Payload:   m.Payload,
		})
	}
	return out
}

// keyMaterialDoc is the on-disk wire format at a signer's sharePath, per
// spec.md §6: `{"coreShare": base64, "auxInfo": base64}`. encoding/json
// base64-decodes string fields into []byte automatically.
type keyMaterialDoc struct {
	CoreShare []byte `json:"coreShare"`
	AuxInfo   []byte `json:"auxInfo"`
}

type sessionKind int

const (
	kindTx sessionKind = iota
	kindMessage
)

// SessionState is one active signing ceremony. It implements
// internal/session.Entry so the Session Table can TTL-check and wipe it
// without depending on the coordinator package.
type SessionState struct {
	mu sync.Mutex

	kind sessionKind

	signerID     string
	ethAddress   string
	ownerAddress string

	expectedPublicKey []byte
	signingPath       SigningPath
	partyConfig       partyConfig

	serverKeyMaterial *secret.Buffer

	policyEvaluatedCount   int
	policyEvaluationTimeMs int64

	schemeSessionID string
	round           int
	createdAt       time.Time

	// transaction-session-only fields.
	unsignedTxBytes     []byte
	decodedTo           string
	decodedFunctionName string
	valueWei            *big.Int
	chainID             uint64

	messageHash []byte

	// set once a processRound (or the immediate first-message processing
	// in createMessageSession) reports the ceremony done.
	signResult *scheme.SignResult
}

// CreatedAt implements session.Entry.
func (s *SessionState) CreatedAt() time.Time { return s.createdAt }

// Wipe implements session.Entry: zeroizes the raw key material buffer this
// session's lifetime owns. Parsed coreShare/auxInfo copies are wiped
// earlier, immediately after being handed to the Scheme Engine (spec.md
// §4.5 step 12).
func (s *SessionState) Wipe() {
	s.serverKeyMaterial.Wipe()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
