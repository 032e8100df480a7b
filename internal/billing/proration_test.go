package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProrationBehavior(t *testing.T) {
	for _, valid := range []string{"prorate_immediately", "charge_immediately", "end_of_period"} {
		behavior, err := ParseProrationBehavior(valid)
		require.NoError(t, err)
		assert.Equal(t, ProrationBehavior(valid), behavior)
	}

	for _, invalid := range []string{"", "none", "End_Of_Period", " end_of_period"} {
		_, err := ParseProrationBehavior(invalid)
		assert.Error(t, err, "value %q should be rejected", invalid)
	}
}

func TestNewProrationPolicy(t *testing.T) {
	policy, err := NewProrationPolicy("charge_immediately", "end_of_period")
	require.NoError(t, err)
	assert.Equal(t, ChargeImmediately, policy.For(Upgrade))
	assert.Equal(t, EndOfPeriod, policy.For(Downgrade))

	_, err = NewProrationPolicy("charge_immediately", "later")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downgrade")

	_, err = NewProrationPolicy("sooner", "end_of_period")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upgrade")
}

func TestDirectionBetween(t *testing.T) {
	assert.Equal(t, Upgrade, DirectionBetween(decimal.NewFromInt(10), decimal.NewFromInt(20)))
	assert.Equal(t, Downgrade, DirectionBetween(decimal.NewFromInt(20), decimal.NewFromInt(10)))
	assert.Equal(t, Downgrade, DirectionBetween(decimal.NewFromInt(10), decimal.NewFromInt(10)))
}

func TestUnusedCredit(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	price := decimal.NewFromInt(30)

	t.Run("half way", func(t *testing.T) {
		credit := UnusedCredit(price, start, end, start.AddDate(0, 0, 15))
		assert.True(t, decimal.NewFromInt(15).Equal(credit), "got %s", credit)
	})

	t.Run("at start", func(t *testing.T) {
		credit := UnusedCredit(price, start, end, start)
		assert.True(t, price.Equal(credit), "got %s", credit)
	})

	t.Run("after end", func(t *testing.T) {
		credit := UnusedCredit(price, start, end, end)
		assert.True(t, credit.IsZero())
	})

	t.Run("before start is capped at full price", func(t *testing.T) {
		credit := UnusedCredit(price, start, end, start.Add(-time.Hour))
		assert.True(t, price.Equal(credit), "got %s", credit)
	})

	t.Run("empty period", func(t *testing.T) {
		assert.True(t, UnusedCredit(price, start, start, start).IsZero())
	})
}

func TestAddInterval(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		interval string
		count    int
		want     time.Time
	}{
		{"days", IntervalDay, 10, base.AddDate(0, 0, 10)},
		{"weeks", IntervalWeek, 2, base.AddDate(0, 0, 14)},
		{"months", IntervalMonth, 3, base.AddDate(0, 3, 0)},
		{"years", IntervalYear, 1, base.AddDate(1, 0, 0)},
		{"zero count behaves as one", IntervalDay, 0, base.AddDate(0, 0, 1)},
		{"unknown unit adds one month", "fortnight", 5, base.AddDate(0, 1, 0)},
		{"empty unit adds one month", "", 1, base.AddDate(0, 1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddInterval(base, tt.interval, tt.count))
		})
	}
}
