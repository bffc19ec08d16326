// Package pricing holds the deterministic monetary computations for
// bookings. Everything here is a pure function of its inputs; amounts are
// whole currency units (no fractional values are ever persisted).
package pricing

import (
	"math"
	"time"

	"servicehub/internal/domain"
)

// DefaultTaxRate is the GST rate applied when no explicit rate is configured.
const DefaultTaxRate = 0.18

// ComputeTotals derives the tax and total for a booking at creation time.
// Tax is computed on the base amount only; additional charges and discounts
// adjust the total after tax. The result is frozen into the booking and never
// recomputed.
func ComputeTotals(baseAmount int64, charges []domain.AdditionalCharge, discount int64, discountType domain.DiscountType, taxRate float64) (taxAmount, totalAmount int64) {
	if taxRate <= 0 {
		taxRate = DefaultTaxRate
	}
	taxAmount = int64(math.Round(float64(baseAmount) * taxRate))

	var chargeSum int64
	for _, c := range charges {
		chargeSum += c.Amount
	}

	var discountAmount int64
	switch discountType {
	case domain.DiscountPercentage:
		discountAmount = int64(math.Round(float64(baseAmount) * float64(discount) / 100))
	default:
		discountAmount = discount
	}

	totalAmount = baseAmount + chargeSum - discountAmount + taxAmount
	if totalAmount < 0 {
		totalAmount = 0
	}
	return taxAmount, totalAmount
}

// RefundPercentage maps hours-until-service to the refund tier. A service
// time already in the past falls into the lowest tier rather than being
// rejected.
func RefundPercentage(hoursUntilService float64) float64 {
	switch {
	case hoursUntilService > 24:
		return 1.0
	case hoursUntilService > 12:
		return 0.75
	case hoursUntilService > 2:
		return 0.5
	default:
		return 0.25
	}
}

// ComputeRefundAmount returns the amount owed back for a cancellation at
// "now" of a booking scheduled at scheduledDate. Identical inputs always give
// identical results.
func ComputeRefundAmount(totalAmount int64, scheduledDate, now time.Time) int64 {
	hours := scheduledDate.Sub(now).Hours()
	return int64(math.Round(float64(totalAmount) * RefundPercentage(hours)))
}
