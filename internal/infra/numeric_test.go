package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToMinor(t *testing.T) {
	tests := []struct {
		name string
		in   pgtype.Numeric
		want int64
	}{
		{"zero", MinorToNumeric(0), 0},
		{"ticket price", MinorToNumeric(250), 250},
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(25), Exp: 2, Valid: true}, 2500},
		{"trailing zeros below scale", pgtype.Numeric{Int: big.NewInt(25000), Exp: -2, Valid: true}, 250},
		{"max int64", MinorToNumeric(math.MaxInt64), math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NumericToMinor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumericToMinor_Rejects(t *testing.T) {
	overflow := new(big.Int).SetInt64(math.MaxInt64)
	overflow.Add(overflow, big.NewInt(1))

	tests := []struct {
		name    string
		in      pgtype.Numeric
		wantErr string
	}{
		{"null", pgtype.Numeric{}, "NULL"},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, "finite"},
		{"infinity", pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}, "finite"},
		{"fractional", pgtype.Numeric{Int: big.NewInt(25099), Exp: -2, Valid: true}, "fractional"},
		{"overflow", pgtype.Numeric{Int: overflow, Valid: true}, "overflows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NumericToMinor(tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMinorToNumeric_Roundtrip(t *testing.T) {
	for _, v := range []int64{1, 99_999, math.MaxInt64} {
		got, err := NumericToMinor(MinorToNumeric(v))
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, got)
	}
}
