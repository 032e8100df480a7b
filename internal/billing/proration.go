package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProrationBehavior decides how a plan change is charged
type ProrationBehavior string

const (
	ProrateImmediately ProrationBehavior = "prorate_immediately"
	ChargeImmediately  ProrationBehavior = "charge_immediately"
	EndOfPeriod        ProrationBehavior = "end_of_period"
)

var validBehaviors = map[ProrationBehavior]bool{
	ProrateImmediately: true,
	ChargeImmediately:  true,
	EndOfPeriod:        true,
}

// ParseProrationBehavior validates a configured proration value
func ParseProrationBehavior(value string) (ProrationBehavior, error) {
	behavior := ProrationBehavior(value)
	if !validBehaviors[behavior] {
		return "", fmt.Errorf("unsupported proration behavior %q (allowed: %s, %s, %s)",
			value, ProrateImmediately, ChargeImmediately, EndOfPeriod)
	}
	return behavior, nil
}

// ChangeDirection classifies a plan change
type ChangeDirection string

const (
	Upgrade   ChangeDirection = "upgrade"
	Downgrade ChangeDirection = "downgrade"
)

// DirectionBetween compares the current and the requested price.
// A change to an equal or cheaper price counts as a downgrade.
func DirectionBetween(current, requested decimal.Decimal) ChangeDirection {
	if requested.GreaterThan(current) {
		return Upgrade
	}
	return Downgrade
}

// ProrationPolicy holds the validated upgrade and downgrade behaviors
type ProrationPolicy struct {
	Upgrade   ProrationBehavior
	Downgrade ProrationBehavior
}

// NewProrationPolicy validates both configured values
func NewProrationPolicy(upgrade, downgrade string) (ProrationPolicy, error) {
	up, err := ParseProrationBehavior(upgrade)
	if err != nil {
		return ProrationPolicy{}, fmt.Errorf("upgrade: %w", err)
	}
	down, err := ParseProrationBehavior(downgrade)
	if err != nil {
		return ProrationPolicy{}, fmt.Errorf("downgrade: %w", err)
	}
	return ProrationPolicy{Upgrade: up, Downgrade: down}, nil
}

// For returns the behavior configured for a change direction
func (p ProrationPolicy) For(direction ChangeDirection) ProrationBehavior {
	if direction == Upgrade {
		return p.Upgrade
	}
	return p.Downgrade
}

// UnusedCredit returns the share of price not yet consumed in the period
// [start, end) at now, rounded to cents.
func UnusedCredit(price decimal.Decimal, start, end, now time.Time) decimal.Decimal {
	total := end.Sub(start)
	if total <= 0 || !now.Before(end) {
		return decimal.Zero
	}
	remaining := end.Sub(now)
	if remaining > total {
		remaining = total
	}
	ratio := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(total)))
	return price.Mul(ratio).Round(2)
}
