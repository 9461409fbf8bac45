package policy

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Rules is the on-disk JSON shape of a rules document: max value per
// transaction, rolling daily/monthly spend caps, a selector allowlist, and
// allowed hours of day (UTC). A nil/empty field means "no limit" for that
// dimension.
type Rules struct {
	MaxValueWei      *big.Int `json:"maxValueWei,omitempty"`
	MaxDailySpendWei *big.Int `json:"maxDailySpendWei,omitempty"`
	MaxMonthlySpend  *big.Int `json:"maxMonthlySpendWei,omitempty"`
	AllowedSelectors []string `json:"allowedSelectors,omitempty"`
	AllowedHoursUTC  []int    `json:"allowedHoursUtc,omitempty"`
}

// LoadRulesFile reads and parses a rules document from path.
func LoadRulesFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules file: %w", err)
	}
	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("policy: parse rules file: %w", err)
	}
	return &r, nil
}

// StaticRulesEngine evaluates a Context against a fixed Rules document
// loaded at startup. This is a real, minimal implementation standing in for
// spec.md's externally-defined Rules Engine so the Policy Gate has a
// concrete collaborator to call in tests and standalone deployments.
type StaticRulesEngine struct {
	rules *Rules
}

// NewStaticRulesEngine constructs an engine bound to rules.
func NewStaticRulesEngine(rules *Rules) *StaticRulesEngine {
	return &StaticRulesEngine{rules: rules}
}

// Evaluate implements Engine.
func (e *StaticRulesEngine) Evaluate(ctx Context) (Outcome, error) {
	start := time.Now()
	var violations []Violation
	checks := 0

	if e.rules.MaxValueWei != nil && ctx.ValueWei != nil {
		checks++
		if ctx.ValueWei.Cmp(e.rules.MaxValueWei) > 0 {
			violations = append(violations, Violation{
				Type:   "max_value",
				Reason: fmt.Sprintf("transaction value %s exceeds max %s", ctx.ValueWei, e.rules.MaxValueWei),
			})
		}
	}

	if e.rules.MaxDailySpendWei != nil && ctx.SpendLast24h != nil && ctx.ValueWei != nil {
		checks++
		projected := new(big.Int).Add(ctx.SpendLast24h, ctx.ValueWei)
		if projected.Cmp(e.rules.MaxDailySpendWei) > 0 {
			violations = append(violations, Violation{
				Type:   "max_daily_spend",
				Reason: fmt.Sprintf("projected 24h spend %s exceeds max %s", projected, e.rules.MaxDailySpendWei),
			})
		}
	}

	if e.rules.MaxMonthlySpend != nil && ctx.SpendLast30d != nil && ctx.ValueWei != nil {
		checks++
		projected := new(big.Int).Add(ctx.SpendLast30d, ctx.ValueWei)
		if projected.Cmp(e.rules.MaxMonthlySpend) > 0 {
			violations = append(violations, Violation{
				Type:   "max_monthly_spend",
				Reason: fmt.Sprintf("projected 30d spend %s exceeds max %s", projected, e.rules.MaxMonthlySpend),
			})
		}
	}

	if len(e.rules.AllowedSelectors) > 0 && ctx.Selector != "" {
		checks++
		if !contains(e.rules.AllowedSelectors, ctx.Selector) {
			violations = append(violations, Violation{
				Type:   "selector_not_allowed",
				Reason: fmt.Sprintf("function selector %s is not in the allowlist", ctx.Selector),
			})
		}
	}

	if len(e.rules.AllowedHoursUTC) > 0 {
		checks++
		if !containsInt(e.rules.AllowedHoursUTC, ctx.HourUTC) {
			violations = append(violations, Violation{
				Type:   "hour_not_allowed",
				Reason: fmt.Sprintf("hour %d UTC is outside the allowed signing window", ctx.HourUTC),
			})
		}
	}

	return Outcome{
		Allowed:          len(violations) == 0,
		Violations:       violations,
		EvaluatedCount:   checks,
		EvaluationTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// LegacyPolicyEngine is the fallback consulted when no rules document
// exists: a single flat max-value-per-transaction limit, mirroring the
// simplest policy check a pre-rules-engine deployment would have had.
type LegacyPolicyEngine struct {
	MaxValueWei *big.Int
}

// NewLegacyPolicyEngine constructs a fallback engine with a flat limit.
func NewLegacyPolicyEngine(maxValueWei *big.Int) *LegacyPolicyEngine {
	return &LegacyPolicyEngine{MaxValueWei: maxValueWei}
}

// Evaluate implements Engine.
func (e *LegacyPolicyEngine) Evaluate(ctx Context) (Outcome, error) {
	start := time.Now()
	var violations []Violation
	checks := 0

	if e.MaxValueWei != nil && ctx.ValueWei != nil {
		checks++
		if ctx.ValueWei.Cmp(e.MaxValueWei) > 0 {
			violations = append(violations, Violation{
				Type:   "max_value",
				Reason: fmt.Sprintf("transaction value %s exceeds legacy policy max %s", ctx.ValueWei, e.MaxValueWei),
			})
		}
	}

	return Outcome{
		Allowed:          len(violations) == 0,
		Violations:       violations,
		EvaluatedCount:   checks,
		EvaluationTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
