package common

import "github.com/holiman/uint256"

// Amount is a non-negative integer encoded as big-endian bytes, the wire
// representation used for deposits, balances, and transfer values crossing
// the host/guest boundary.
type Amount []byte

// IsZero reports whether the amount is empty or all-zero, the two shapes an
// absent value can take on the wire.
func (a Amount) IsZero() bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// Uint256 decodes the amount into a uint256.Int, treating an amount longer
// than 32 bytes as an error rather than silently truncating it. A nil or
// empty amount decodes to zero.
func (a Amount) Uint256() (*uint256.Int, error) {
	if len(a) > 32 {
		return nil, errAmountTooLarge
	}
	return new(uint256.Int).SetBytes(a), nil
}

// AmountFromUint256 encodes v as the minimal big-endian Amount.
func AmountFromUint256(v *uint256.Int) Amount {
	return Amount(v.Bytes())
}

var errAmountTooLarge = amountError("amount exceeds 32 bytes")

type amountError string

func (e amountError) Error() string { return string(e) }
