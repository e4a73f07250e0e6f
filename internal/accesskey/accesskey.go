// Package accesskey computes the 44-digit access key that uniquely and
// verifiably identifies a fiscal document:
//
//	region(2) yymm(4) issuer-cnpj(14) model(2) series(3) number(9) emission-type(1) code(8) check-digit(1)
//
// The check digit is a modulo-11 weighted sum over the 43 data digits.
package accesskey

import (
	"fmt"
	"time"
)

const (
	// KeyLength is the full key length including the check digit.
	KeyLength = 44

	issuerOffset = 6
	issuerWidth  = 14
)

// Generate builds the access key. Every field must already be a
// fixed-width decimal string; a wrong width or a non-digit character is
// an input error, never silently truncated or padded.
func Generate(ufCode string, issuedAt time.Time, cnpj, model, series, number, emissionType, code string) (string, error) {
	fields := []struct {
		name  string
		value string
		width int
	}{
		{"region code", ufCode, 2},
		{"issuer tax id", cnpj, 14},
		{"document model", model, 2},
		{"series", series, 3},
		{"number", number, 9},
		{"emission type", emissionType, 1},
		{"arbitrary code", code, 8},
	}
	for _, f := range fields {
		if len(f.value) != f.width {
			return "", fmt.Errorf("%s must be %d digits, got %q", f.name, f.width, f.value)
		}
		if !allDigits(f.value) {
			return "", fmt.Errorf("%s must be numeric, got %q", f.name, f.value)
		}
	}

	yymm := issuedAt.Format("0601")
	base := ufCode + yymm + cnpj + model + series + number + emissionType + code

	dv, err := CheckDigit(base)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", base, dv), nil
}

// CheckDigit computes the modulo-11 check digit of a 43-digit string.
// Digits are weighted right to left with cyclic weights 2..9; the digit
// is 11 - (sum mod 11), with 10 and 11 both mapping to 0.
func CheckDigit(base string) (int, error) {
	if len(base) != KeyLength-1 {
		return 0, fmt.Errorf("key base must be %d digits, got %d", KeyLength-1, len(base))
	}
	if !allDigits(base) {
		return 0, fmt.Errorf("key base must be numeric")
	}

	sum := 0
	weight := 2
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		if weight == 9 {
			weight = 2
		} else {
			weight++
		}
	}

	dv := 11 - (sum % 11)
	if dv == 10 || dv == 11 {
		dv = 0
	}
	return dv, nil
}

// Verify recomputes the check digit of a full 44-digit key and fails if
// it does not match the embedded one.
func Verify(key string) error {
	if len(key) != KeyLength {
		return fmt.Errorf("access key must be %d digits, got %d", KeyLength, len(key))
	}
	if !allDigits(key) {
		return fmt.Errorf("access key must be numeric")
	}
	dv, err := CheckDigit(key[:KeyLength-1])
	if err != nil {
		return err
	}
	if byte('0'+dv) != key[KeyLength-1] {
		return fmt.Errorf("access key check digit mismatch: expected %d", dv)
	}
	return nil
}

// Issuer extracts the 14-digit issuer tax id embedded in a key. The
// cancellation event needs it without a round trip to configuration.
func Issuer(key string) (string, error) {
	if err := Verify(key); err != nil {
		return "", err
	}
	return key[issuerOffset : issuerOffset+issuerWidth], nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
