package vm

import "github.com/idena-network/wasmvm/common"

// Gas is a unit of metered computation, charged against a frame's fixed
// limit until it reaches zero.
type Gas = uint64

func saturatingSub(a, b Gas) Gas { return common.SaturatingUSub(a, b) }
func saturatingAdd(a, b Gas) Gas { return common.SaturatingUAdd(a, b) }

// GasMeter tracks the remaining gas budget for one execution frame. It is
// the single source of truth the host imports and the runner's pre-flight
// charges debit against; guest instructions themselves are not metered
// through it.
type GasMeter struct {
	limit     Gas
	remaining Gas
}

// NewGasMeter creates a meter with limit gas available.
func NewGasMeter(limit Gas) *GasMeter {
	return &GasMeter{limit: limit, remaining: limit}
}

// Limit returns the frame's original gas budget.
func (m *GasMeter) Limit() Gas { return m.limit }

// Remaining returns the gas left in the budget.
func (m *GasMeter) Remaining() Gas { return m.remaining }

// Used returns limit - remaining.
func (m *GasMeter) Used() Gas { return m.limit - m.remaining }

// SetRemaining overwrites the remaining counter, used to publish a value a
// Backend call computed back into the meter (the mirror of reading it to
// hand a Backend a snapshot of gas left).
func (m *GasMeter) SetRemaining(remaining Gas) { m.remaining = remaining }

// Charge debits cost from the remaining budget. If the budget would go
// negative it is saturated to zero and an out-of-gas Error is returned;
// the caller must treat any returned error as terminal for the frame.
func (m *GasMeter) Charge(cost Gas) error {
	if cost > m.remaining {
		m.remaining = 0
		return newOutOfGasError()
	}
	m.remaining -= cost
	return nil
}

// Refund credits gas back to the remaining budget, saturating at the
// original limit (a frame can never end up with more gas than it started
// with).
func (m *GasMeter) Refund(amount Gas) {
	m.remaining = saturatingAdd(m.remaining, amount)
	if m.remaining > m.limit {
		m.remaining = m.limit
	}
}
