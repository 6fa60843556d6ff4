package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// NumericToMinor reads a numeric(20,0) money column as int64 minor units.
// Values with a fractional part are rejected rather than truncated.
func NumericToMinor(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("minor amount is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("minor amount is not a finite number")
	}

	// pgtype.Numeric is Int * 10^Exp.
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, pow10(n.Exp))
	case n.Exp < 0:
		var rem big.Int
		v.QuoRem(v, pow10(-n.Exp), &rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("minor amount %s has a fractional part", n.Int.String())
		}
	}

	if !v.IsInt64() {
		return 0, fmt.Errorf("minor amount %s overflows int64", v.String())
	}
	return v.Int64(), nil
}

// MinorToNumeric encodes minor units for a numeric(20,0) column.
func MinorToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(v), InfinityModifier: pgtype.Finite, Valid: true}
}

func pow10(exp int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
