package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGasCostEth(t *testing.T) {
	t.Run("standard transfer at one gwei", func(t *testing.T) {
		// 21000 gas at 1 gwei
		eth, err := GasCostEth("0x5208", "0x3B9ACA00")
		require.NoError(t, err)
		assert.Equal(t, "0.000021000000000000", FormatEth(eth))

		ethPrice := decimal.NewFromInt(2000)
		assert.Equal(t, "0.04", FormatUsd(eth.Mul(ethPrice)))
	})

	t.Run("accepts base-10 quantities", func(t *testing.T) {
		eth, err := GasCostEth("21000", "1000000000")
		require.NoError(t, err)
		assert.Equal(t, "0.000021000000000000", FormatEth(eth))
	})

	t.Run("accepts zero-padded hex", func(t *testing.T) {
		eth, err := GasCostEth("0x005208", "0x3B9ACA00")
		require.NoError(t, err)
		assert.Equal(t, "0.000021000000000000", FormatEth(eth))
	})

	t.Run("rejects malformed quantities", func(t *testing.T) {
		_, err := GasCostEth("", "0x3B9ACA00")
		assert.Error(t, err)

		_, err = GasCostEth("0x5208", "not-a-number")
		assert.Error(t, err)
	})
}

func TestUnitsToDecimal(t *testing.T) {
	t.Run("uses token decimals", func(t *testing.T) {
		d, err := UnitsToDecimal("1500000", 6)
		require.NoError(t, err)
		assert.Equal(t, "1.5", d.String())
	})

	t.Run("defaults invalid decimals to 18", func(t *testing.T) {
		d, err := UnitsToDecimal("1000000000000000000", 0)
		require.NoError(t, err)
		assert.Equal(t, "1", d.String())

		d, err = UnitsToDecimal("1000000000000000000", -3)
		require.NoError(t, err)
		assert.Equal(t, "1", d.String())
	})
}

func TestParseDecimal(t *testing.T) {
	assert.True(t, ParseDecimal("12.5").Equal(decimal.RequireFromString("12.5")))
	assert.True(t, ParseDecimal("").IsZero())
	assert.True(t, ParseDecimal("garbage").IsZero())
	assert.True(t, ParseDecimal("  3 ").Equal(decimal.NewFromInt(3)))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "0x1234...cdef",
		ShortenAddress("0x1234567890abcdef1234567890abcdef1234cdef"))
	assert.Equal(t, "0xdead", ShortenAddress("0xdead"))

	assert.Equal(t, "0xaaaaaaaa...bbbbbb",
		ShortenHash("0xaaaaaaaa11112222333344445555666677778888999900001111222233bbbbbb"))
}
