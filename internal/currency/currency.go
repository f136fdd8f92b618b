package currency

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrPrecision = errors.New("amount out of range")

// Config is an immutable snapshot of the currency settings. Callers receive it
// by value at construction time instead of reading process-wide state.
type Config struct {
	DecimalPlaces int32
	Name          string
	NamePlural    string
	Symbol        string
}

func DefaultConfig() Config {
	return Config{
		DecimalPlaces: 2,
		Name:          "coin",
		NamePlural:    "coins",
		Symbol:        "",
	}
}

// MajorToMinor converts a major-unit amount to integer minor units, rounding half
// away from zero at the configured precision.
func (c Config) MajorToMinor(major decimal.Decimal) (int64, error) {
	minor := major.Round(c.DecimalPlaces).Shift(c.DecimalPlaces)

	if !minor.IsInteger() {
		return 0, ErrPrecision
	}

	big := minor.BigInt()
	if !big.IsInt64() {
		return 0, ErrPrecision
	}

	return big.Int64(), nil
}

// MinorToMajor is the exact inverse of MajorToMinor for stored values.
func (c Config) MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.DecimalPlaces)
}

// Label picks the singular name for exactly one major unit, plural otherwise.
func (c Config) Label(minor int64) string {
	if c.MinorToMajor(minor).Abs().Equal(decimal.NewFromInt(1)) {
		return c.Name
	}
	if c.NamePlural != "" {
		return c.NamePlural
	}
	return c.Name
}

// Format renders minor as e.g. "12.50 coins" or "$12.50 coins" when a symbol is set.
func (c Config) Format(minor int64) string {
	major := c.MinorToMajor(minor)
	sign := ""
	if major.IsNegative() {
		sign = "-"
		major = major.Abs()
	}

	num := major.StringFixed(c.DecimalPlaces)
	label := c.Label(minor)

	if label == "" {
		return fmt.Sprintf("%s%s%s", sign, c.Symbol, num)
	}
	return fmt.Sprintf("%s%s%s %s", sign, c.Symbol, num, label)
}

// Amount is the wire form of every monetary value.
type Amount struct {
	Minor     int64  `json:"minor"`
	Major     string `json:"major"`
	Formatted string `json:"formatted"`
}

func (c Config) Amount(minor int64) Amount {
	return Amount{
		Minor:     minor,
		Major:     c.MinorToMajor(minor).StringFixed(c.DecimalPlaces),
		Formatted: c.Format(minor),
	}
}
