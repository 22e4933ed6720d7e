package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amounts are carried as int64 minor currency units (two decimal places).
// Storefront payloads transmit decimals as strings ("20.00"), so parsing is
// centralised here rather than trusting float JSON decoding.

// ParseAmount converts a decimal string such as "20.00" or "-1.5" into minor
// units. An empty string parses to zero.
func ParseAmount(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	negative := false
	switch trimmed[0] {
	case '-':
		negative = true
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}

	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		frac = frac[:2]
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", raw)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", raw)
	}

	value := units*100 + cents
	if negative {
		value = -value
	}
	return value, nil
}

// FormatAmount renders minor units back into a two-decimal string.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// UnitAmount divides a line amount by quantity, rounding to the nearest minor
// unit. Mirrors the per-unit price derivation applied to inbound order lines.
func UnitAmount(total int64, quantity int) int64 {
	if quantity <= 0 {
		return 0
	}
	return int64(math.Round(float64(total) / float64(quantity)))
}
