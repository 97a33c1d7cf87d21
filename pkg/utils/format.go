// Package utils provides shared formatting and retry helpers.
package utils

import (
	"fmt"
	"strings"
)

// FormatIndianCurrency renders an amount with the Indian digit
// grouping (lakhs and crores), e.g. 1234567.5 -> ₹12,34,567.50.
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	parts := strings.SplitN(fmt.Sprintf("%.2f", amount), ".", 2)
	out := "₹" + groupIndian(parts[0]) + "." + parts[1]
	if negative {
		out = "-" + out
	}
	return out
}

// groupIndian inserts commas per the Indian numbering system: the
// rightmost group has three digits, the rest two.
func groupIndian(s string) string {
	if len(s) <= 3 {
		return s
	}
	out := s[len(s)-3:]
	s = s[:len(s)-3]
	for len(s) > 2 {
		out = s[len(s)-2:] + "," + out
		s = s[:len(s)-2]
	}
	return s + "," + out
}

// FormatPercent renders a percentage with an explicit sign on gains.
func FormatPercent(value float64) string {
	if value > 0 {
		return fmt.Sprintf("+%.2f%%", value)
	}
	return fmt.Sprintf("%.2f%%", value)
}

// FormatPnL renders a P&L amount, prefixing gains with a plus sign.
func FormatPnL(pnl float64) string {
	out := FormatIndianCurrency(pnl)
	if pnl > 0 {
		return "+" + out
	}
	return out
}

// FormatQuantity renders a quantity with Indian digit grouping.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + groupIndian(fmt.Sprintf("%d", -qty))
	}
	return groupIndian(fmt.Sprintf("%d", qty))
}
