package chain

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveAddress_Deterministic(t *testing.T) {
	mint := testMint()

	first, err := CurveAddress(mint)
	require.NoError(t, err)
	second, err := CurveAddress(mint)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	decoded, err := base58.Decode(first)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)

	// Derived addresses must be off the ed25519 curve.
	assert.False(t, isOnCurve(decoded))
}

func TestDerivedAddresses_DistinctPerSeed(t *testing.T) {
	mint := testMint()

	curve, err := CurveAddress(mint)
	require.NoError(t, err)
	solVault, err := SolVaultAddress(mint)
	require.NoError(t, err)
	tokenVault, err := TokenVaultAddress(mint)
	require.NoError(t, err)

	assert.NotEqual(t, curve, solVault)
	assert.NotEqual(t, curve, tokenVault)
	assert.NotEqual(t, solVault, tokenVault)
}

func TestDerivedAddresses_DistinctPerMint(t *testing.T) {
	a, err := CurveAddress(testMint())
	require.NoError(t, err)
	b, err := CurveAddress(testTrader())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCurveAddress_InvalidMint(t *testing.T) {
	_, err := CurveAddress("not-base58-0OIl")
	assert.Error(t, err)
}
