package chain

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Seeds used by the on-chain program for its derived accounts.
var (
	curveSeed      = []byte("bonding_curve")
	solVaultSeed   = []byte("sol_vault")
	tokenVaultSeed = []byte("token_vault")
)

// CurveAddress derives the bonding curve account address for a mint.
func CurveAddress(mint string) (string, error) {
	return deriveAddress([][]byte{curveSeed}, mint)
}

// SolVaultAddress derives the curve's lamport vault address for a mint.
func SolVaultAddress(mint string) (string, error) {
	return deriveAddress([][]byte{solVaultSeed}, mint)
}

// TokenVaultAddress derives the curve's token vault address for a mint.
func TokenVaultAddress(mint string) (string, error) {
	return deriveAddress([][]byte{tokenVaultSeed}, mint)
}

// deriveAddress computes the program-derived address for seeds plus the mint,
// searching bump values downward for the first off-curve result.
func deriveAddress(seeds [][]byte, mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", err
	}
	programBytes, err := base58.Decode(LaunchpadProgram)
	if err != nil {
		return "", err
	}

	all := make([][]byte, 0, len(seeds)+1)
	all = append(all, seeds...)
	all = append(all, mintBytes)

	for bump := byte(255); ; bump-- {
		var data []byte
		for _, seed := range all {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programBytes...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// A PDA must not be a valid ed25519 point.
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}

		if bump == 0 {
			break
		}
	}

	return "", ErrNoValidBump
}

// ErrNoValidBump indicates no off-curve address exists for the seeds.
var ErrNoValidBump = errors.New("no valid bump for derived address")

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
