package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount marks a milestone amount that is not a positive decimal.
var ErrInvalidAmount = errors.New("invalid amount")

const etherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)

// ParseAmount converts a decimal ETH string to wei using exact integer
// arithmetic. Non-numeric, non-positive, or over-precise inputs fail with
// ErrInvalidAmount.
func ParseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, etherDecimals)
	}

	digits := whole + frac + strings.Repeat("0", etherDecimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, s)
	}
	return wei, nil
}

// ParseAmounts converts each decimal string to wei and returns the exact
// integer sum alongside the per-milestone values.
func ParseAmounts(amounts []string) ([]*big.Int, *big.Int, error) {
	if len(amounts) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one milestone amount is required", ErrInvalidAmount)
	}
	values := make([]*big.Int, 0, len(amounts))
	total := new(big.Int)
	for i, a := range amounts {
		wei, err := ParseAmount(a)
		if err != nil {
			return nil, nil, fmt.Errorf("milestone %d: %w", i+1, err)
		}
		values = append(values, wei)
		total.Add(total, wei)
	}
	return values, total, nil
}

// FormatWei renders a wei value as a decimal ETH string without rounding.
func FormatWei(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(new(big.Int).Abs(wei), weiPerEther, new(big.Int))
	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
	}
	if rem.Sign() == 0 {
		return sign + quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", rem.String()), "0")
	return sign + quo.String() + "." + frac
}
