package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"servicehub/internal/domain"
)

func TestComputeTotals_DefaultRate(t *testing.T) {
	tax, total := ComputeTotals(500, nil, 0, "", 0)
	assert.Equal(t, int64(90), tax)
	assert.Equal(t, int64(590), total)
}

func TestComputeTotals_RoundsTax(t *testing.T) {
	// 333 * 0.18 = 59.94 -> 60
	tax, total := ComputeTotals(333, nil, 0, "", 0.18)
	assert.Equal(t, int64(60), tax)
	assert.Equal(t, int64(393), total)
}

func TestComputeTotals_ChargesAndFixedDiscount(t *testing.T) {
	charges := []domain.AdditionalCharge{
		{Name: "materials", Amount: 200},
		{Name: "travel", Amount: 50},
	}
	tax, total := ComputeTotals(1000, charges, 100, domain.DiscountFixed, 0.18)
	assert.Equal(t, int64(180), tax)
	assert.Equal(t, int64(1330), total)
}

func TestComputeTotals_PercentageDiscount(t *testing.T) {
	tax, total := ComputeTotals(1000, nil, 10, domain.DiscountPercentage, 0.18)
	assert.Equal(t, int64(180), tax)
	assert.Equal(t, int64(1080), total)
}

func TestComputeTotals_NeverNegative(t *testing.T) {
	_, total := ComputeTotals(100, nil, 5000, domain.DiscountFixed, 0.18)
	assert.Equal(t, int64(0), total)
}

func TestRefundPercentage_Tiers(t *testing.T) {
	cases := []struct {
		hours float64
		want  float64
	}{
		{48, 1.0},
		{24.01, 1.0},
		{24, 0.75},
		{18, 0.75},
		{12.01, 0.75},
		{12, 0.5},
		{6, 0.5},
		{2.01, 0.5},
		{2, 0.25},
		{1, 0.25},
		{0, 0.25},
		{-5, 0.25},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RefundPercentage(tc.hours), "hours=%v", tc.hours)
	}
}

func TestRefundPercentage_Monotonic(t *testing.T) {
	prev := 0.0
	for h := -10.0; h <= 72; h += 0.5 {
		pct := RefundPercentage(h)
		assert.GreaterOrEqual(t, pct, prev, "refund percentage must not shrink as lead time grows (h=%v)", h)
		prev = pct
	}
}

func TestComputeRefundAmount_Scenarios(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		scheduled time.Time
		want      int64
	}{
		{"48h out full refund", now.Add(48 * time.Hour), 1000},
		{"18h out 75 percent", now.Add(18 * time.Hour), 750},
		{"6h out 50 percent", now.Add(6 * time.Hour), 500},
		{"1h out 25 percent", now.Add(1 * time.Hour), 250},
		{"already passed 25 percent", now.Add(-3 * time.Hour), 250},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeRefundAmount(1000, tc.scheduled, now)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComputeRefundAmount_Deterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	scheduled := now.Add(30 * time.Hour)
	first := ComputeRefundAmount(12345, scheduled, now)
	second := ComputeRefundAmount(12345, scheduled, now)
	assert.Equal(t, first, second)
}
