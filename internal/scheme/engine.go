// Package scheme wraps the threshold-ECDSA cryptographic engine behind a
// narrow, opaque interface. The coordinator never inspects a party message's
// contents or round structure — it only shuttles PartyMessage values between
// the Engine and the peer transport. This mirrors spec.md's "Scheme Engine"
// component: swapping the concrete scheme (CGGMP24, or any other threshold
// ECDSA construction) must never require a change outside this package.
package scheme

import "time"

// PartyMessage is one hop of wire traffic produced or consumed by a round of
// the underlying scheme. ToParty is ignored when Broadcast is true.
type PartyMessage struct {
	FromParty int
	ToParty   int
	Broadcast bool
	Payload   []byte
}

// SignResult is the final output of a completed signing ceremony: a
// 65-byte-decomposable ECDSA signature over the message digest that was
// supplied at StartSigning time.
type SignResult struct {
	R []byte // 32 bytes
	S []byte // 32 bytes
}

// KeygenResult is the final output of a completed distributed key
// generation ceremony for one party.
type KeygenResult struct {
	PublicKeyCompressed   []byte // 33 bytes
	PublicKeyUncompressed []byte // 65 bytes
	ShareData             []byte // opaque, party-private; feeds secret.Buffer
}

// Round is what advancing a ceremony by one step yields: either more
// outbound traffic, or a terminal result.
type Round struct {
	Outbound []PartyMessage
	Done     bool
	Sign     *SignResult
	Keygen   *KeygenResult
}

// Backend identifies which MPC arithmetic backend a signing ceremony runs
// on. CGGMP24 wire messages from a native GMP-backed party and a
// WASM-compatible party are not interoperable, so every session pins one.
type Backend string

const (
	BackendNative Backend = "native"
	BackendWasm   Backend = "wasm"
)

// SigningContext describes the parameters of a signing ceremony from the
// perspective of the local party. CoreShare and AuxInfo come from the same
// DKG ceremony's KeyMaterial; an engine that does not distinguish them
// (this one doesn't — see TSSEngine) is free to fold AuxInfo into CoreShare
// parsing or ignore it.
type SigningContext struct {
	SessionID    string
	PartyIndex   int
	TotalParties int
	Threshold    int
	MessageHash  []byte
	CoreShare    []byte
	AuxInfo      []byte
	EID          []byte
	Backend      Backend
}

// KeygenContext describes the parameters of a distributed keygen ceremony
// from the perspective of the local party.
type KeygenContext struct {
	SessionID    string
	PartyIndex   int
	TotalParties int
	Threshold    int
}

// Engine is the opaque scheme boundary. Implementations own all ceremony
// state keyed by SessionID; the coordinator holds no scheme-internal state
// of its own.
type Engine interface {
	StartSigning(ctx SigningContext) (*Round, error)
	ProcessSigningRound(sessionID string, inbound []PartyMessage) (*Round, error)
	AbortSigning(sessionID string)

	StartKeygen(ctx KeygenContext) (*Round, error)
	ProcessKeygenRound(sessionID string, inbound []PartyMessage) (*Round, error)
	AbortKeygen(sessionID string)
}

// roundTimeout bounds how long a single ProcessSigningRound or
// ProcessKeygenRound call waits for the
// scheme library to finish asynchronous processing before collecting
// whatever outbound traffic is ready. Grounded on the teacher's own
// 50ms/500ms wait windows in signing_tss.go/dkg_tss.go.
const roundTimeout = 200 * time.Millisecond
