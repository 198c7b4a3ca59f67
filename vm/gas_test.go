package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGasMeterCharge(t *testing.T) {
	m := NewGasMeter(1000)
	require.NoError(t, m.Charge(400))
	require.Equal(t, Gas(600), m.Remaining())
	require.Equal(t, Gas(400), m.Used())
}

func TestGasMeterChargeExhausts(t *testing.T) {
	m := NewGasMeter(100)
	err := m.Charge(150)
	require.Error(t, err)
	require.True(t, IsOutOfGas(err))
	require.Zero(t, m.Remaining())
}

func TestGasMeterRefundSaturatesAtLimit(t *testing.T) {
	m := NewGasMeter(1000)
	require.NoError(t, m.Charge(900))
	m.Refund(10_000)
	require.Equal(t, Gas(1000), m.Remaining())
}

func TestSaturatingSub(t *testing.T) {
	require.Equal(t, Gas(0), saturatingSub(10, 20))
	require.Equal(t, Gas(5), saturatingSub(20, 15))
}
