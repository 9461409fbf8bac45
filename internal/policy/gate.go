package policy

import (
	"context"
	"math/big"
	"time"
)

// AuditWindowQuerier is the subset of the Audit Repo the Policy Gate needs
// to assemble rolling spend sums and counts. internal/storage implements
// this against Postgres; tests can supply a stub.
type AuditWindowQuerier interface {
	SumValueBySignerInWindow(ctx context.Context, signerID string, window time.Duration) (*big.Int, error)
	CountBySignerInWindow(ctx context.Context, signerID string, window time.Duration) (int, error)
}

const (
	windowDay   = 24 * time.Hour
	windowMonth = 30 * 24 * time.Hour
	windowHour  = time.Hour
)

// Gate assembles a Context from an intent and the rolling audit windows,
// then asks its Engine for a verdict.
type Gate struct {
	audit  AuditWindowQuerier
	engine Engine
	now    func() time.Time
}

// NewGate constructs a Gate. engine is typically a StaticRulesEngine when a
// rules document is configured, or a LegacyPolicyEngine otherwise — per
// spec.md §4.3's "if no rules document exists, fall back to the legacy
// per-policy engine".
func NewGate(audit AuditWindowQuerier, engine Engine) *Gate {
	return &Gate{audit: audit, engine: engine, now: time.Now}
}

// Intent describes the transaction or message being evaluated.
type Intent struct {
	SignerID     string
	OwnerAddress string
	ValueWei     *big.Int // nil or zero for message-signing contexts
	ChainID      uint64   // 0 for message-signing contexts
	Selector     string
	CallerIP     string
}

// Evaluate builds a Context for intent and asks the configured Engine for
// an outcome. Message-signing contexts (ChainID == 0) skip the rolling
// spend roll-ups, per spec.md §4.3.
func (g *Gate) Evaluate(ctx context.Context, intent Intent) (Outcome, error) {
	pc := Context{
		SignerID:     intent.SignerID,
		OwnerAddress: intent.OwnerAddress,
		ValueWei:     intent.ValueWei,
		ChainID:      intent.ChainID,
		Selector:     intent.Selector,
		HourUTC:      g.now().UTC().Hour(),
		CallerIP:     intent.CallerIP,
	}

	if intent.ChainID != 0 {
		spend24h, err := g.audit.SumValueBySignerInWindow(ctx, intent.SignerID, windowDay)
		if err != nil {
			return Outcome{}, err
		}
		spend30d, err := g.audit.SumValueBySignerInWindow(ctx, intent.SignerID, windowMonth)
		if err != nil {
			return Outcome{}, err
		}
		count1h, err := g.audit.CountBySignerInWindow(ctx, intent.SignerID, windowHour)
		if err != nil {
			return Outcome{}, err
		}
		count24h, err := g.audit.CountBySignerInWindow(ctx, intent.SignerID, windowDay)
		if err != nil {
			return Outcome{}, err
		}
		pc.SpendLast24h = spend24h
		pc.SpendLast30d = spend30d
		pc.CountLast1h = count1h
		pc.CountLast24h = count24h
	}

	return g.engine.Evaluate(pc)
}
