// Package policy implements the Policy Gate: assembling a PolicyContext
// from rolling audit-window queries and consulting a Rules Engine (or its
// legacy fallback) for an allow/deny decision.
package policy

import "math/big"

// Violation is one reason a Context was denied.
type Violation struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Outcome is the Rules Engine's verdict.
type Outcome struct {
	Allowed          bool        `json:"allowed"`
	Violations       []Violation `json:"violations,omitempty"`
	EvaluatedCount   int         `json:"evaluatedCount"`
	EvaluationTimeMs int64       `json:"evaluationTimeMs"`
}

// Context is the evaluation context handed to a RulesEngine: the rolling
// spend/count windows the Policy Gate assembled, plus the intent being
// evaluated. Message-signing contexts use ValueWei=0, ChainID=0 and skip
// spend roll-ups entirely (SpendLast24h/SpendLast30d stay nil).
type Context struct {
	SignerID     string
	OwnerAddress string
	ValueWei     *big.Int
	ChainID      uint64
	Selector     string
	HourUTC      int
	CallerIP     string

	SpendLast24h *big.Int
	SpendLast30d *big.Int
	CountLast1h  int
	CountLast24h int
}

// Engine is the opaque Rules Engine / legacy Policy Engine boundary.
type Engine interface {
	Evaluate(ctx Context) (Outcome, error)
}
