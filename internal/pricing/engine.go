package pricing

import (
	"math"
	"strconv"
	"strings"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// Line describes a cart line used for totals calculation.
type Line struct {
	Qty       int
	UnitPrice Money
	// TaxRateBps is the line tax rate in basis points (10% == 1000).
	TaxRateBps int64
}

// Summary aggregates computed totals for the display.
type Summary struct {
	Subtotal Money
	Discount Money
	Tax      Money
	Total    Money
}

// Compute derives subtotal, tax and grand total from the cart lines and the
// order-level discount, reproducing the checkout rule so the displayed total
// matches the eventual charge.
//
// The discount is prorated per line proportionally to the line subtotal, with
// the last line taking the remainder so the shares sum exactly to the
// discount despite truncation. Line tax is floor(taxable * rate), taxable
// being the line subtotal net of its discount share, clamped at zero.
func Compute(lines []Line, discount Money) Summary {
	if discount < 0 {
		discount = 0
	}
	var subtotal Money
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		subtotal += Money(ln.Qty) * ln.UnitPrice
	}

	shares := DiscountShares(lines, discount)
	var tax Money
	for i, ln := range lines {
		if ln.Qty <= 0 || ln.TaxRateBps <= 0 {
			continue
		}
		lineSubtotal := Money(ln.Qty) * ln.UnitPrice
		taxable := lineSubtotal - shares[i]
		if taxable < 0 {
			taxable = 0
		}
		tax += (taxable * ln.TaxRateBps) / 10000
	}

	total := subtotal + tax - discount
	if total < 0 {
		total = 0
	}
	return Summary{Subtotal: subtotal, Discount: discount, Tax: tax, Total: total}
}

// DiscountShares splits the order-level discount across lines proportionally
// to each line's subtotal. Every share except the last is floored; the last
// line in iteration order receives the remainder, guaranteeing the shares sum
// exactly to the discount. The iteration-order tie-break matches the backend
// checkout rule and must not change independently.
func DiscountShares(lines []Line, discount Money) []Money {
	shares := make([]Money, len(lines))
	if discount <= 0 || len(lines) == 0 {
		return shares
	}
	var subtotal Money
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		subtotal += Money(ln.Qty) * ln.UnitPrice
	}
	if subtotal <= 0 {
		return shares
	}
	last := -1
	for i, ln := range lines {
		if ln.Qty > 0 {
			last = i
		}
	}
	var assigned Money
	for i, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		if i == last {
			shares[i] = discount - assigned
			break
		}
		lineSubtotal := Money(ln.Qty) * ln.UnitPrice
		share := (discount * lineSubtotal) / subtotal
		shares[i] = share
		assigned += share
	}
	return shares
}

// ParseAmount converts a decimal-string amount from the wire into whole
// currency units, truncating any fractional part. Empty and malformed values
// yield zero.
func ParseAmount(s string) Money {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Money(math.Trunc(f))
}

// ParseRateBps converts a decimal-string percentage ("10", "7.5") into basis
// points. Malformed values yield zero.
func ParseRateBps(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f * 100))
}
