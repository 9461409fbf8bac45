// Package dkg defines the distributed key generation boundary at the
// interface level only, per spec.md's scope: DKG produces three shares,
// auxiliary material, and a public key/address, but running a full keygen
// ceremony end-to-end is outside this repo's operational surface. The real
// work happens in internal/scheme.TSSEngine's keygen path; Driver is the
// thin seam a future DKG orchestrator would implement against.
package dkg

import (
	"context"

	"github.com/guardianwallet/signer/internal/scheme"
)

// Result is what a completed DKG ceremony yields for the local party.
type Result struct {
	PublicKeyCompressed   []byte
	PublicKeyUncompressed []byte
	EthereumAddress       string
	ShareData             []byte // feeds a signer's on-disk KeyMaterial.coreShare
}

// Driver is the interface-only DKG boundary: StartKeygen/ProcessRound
// mirror the Scheme Engine's signing-round shape so a coordinator-like
// caller can drive either ceremony the same way.
type Driver interface {
	StartKeygen(ctx context.Context, sessionID string, partyIndex, totalParties, threshold int) (*scheme.Round, error)
	ProcessRound(ctx context.Context, sessionID string, inbound []scheme.PartyMessage) (*scheme.Round, error)
}

// TSSDriver adapts scheme.TSSEngine's keygen path to Driver.
type TSSDriver struct {
	engine *scheme.TSSEngine
}

// NewTSSDriver constructs a Driver backed by engine.
func NewTSSDriver(engine *scheme.TSSEngine) *TSSDriver {
	return &TSSDriver{engine: engine}
}

// StartKeygen implements Driver.
func (d *TSSDriver) StartKeygen(_ context.Context, sessionID string, partyIndex, totalParties, threshold int) (*scheme.Round, error) {
	return d.engine.StartKeygen(scheme.KeygenContext{
		SessionID:    sessionID,
		PartyIndex:   partyIndex,
		TotalParties: totalParties,
		Threshold:    threshold,
	})
}

// ProcessRound implements Driver.
func (d *TSSDriver) ProcessRound(_ context.Context, sessionID string, inbound []scheme.PartyMessage) (*scheme.Round, error) {
	return d.engine.ProcessKeygenRound(sessionID, inbound)
}
