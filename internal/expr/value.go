package expr

import (
	"math"
	"math/big"
)

// Value is an intermediate result: either a wrapping int64 or a float64.
// Operations report failure through their bool result instead of
// panicking; a failed sample falls back to 0 at the top of the evaluator.
type Value struct {
	I     int64
	F     float64
	Float bool
}

func intVal(i int64) Value     { return Value{I: i} }
func floatVal(f float64) Value { return Value{F: f, Float: true} }

func (v Value) float() float64 {
	if v.Float {
		return v.F
	}
	return float64(v.I)
}

func (v Value) truthy() bool {
	if v.Float {
		return v.F != 0
	}
	return v.I != 0
}

// Int converts the value to a signed integer, truncating floats toward
// zero. NaN and infinities do not convert. Floats beyond the int64 range
// keep the low 64 bits of their exact integer value.
func (v Value) Int() (int64, bool) {
	if !v.Float {
		return v.I, true
	}
	f := v.F
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f >= -(1<<63) && f < 1<<63 {
		return int64(f), true
	}
	bi, _ := new(big.Float).SetFloat64(f).Int(nil)
	return wrapBig(bi), true
}

func binary(op BinaryOp, a, b Value) (Value, bool) {
	switch op {
	case Add:
		if a.Float || b.Float {
			return floatVal(a.float() + b.float()), true
		}
		return intVal(a.I + b.I), true
	case Sub:
		if a.Float || b.Float {
			return floatVal(a.float() - b.float()), true
		}
		return intVal(a.I - b.I), true
	case Mult:
		if a.Float || b.Float {
			return floatVal(a.float() * b.float()), true
		}
		return intVal(a.I * b.I), true
	case Div, FloorDiv:
		return floorDiv(a, b)
	case Mod:
		return mod(a, b)
	case Pow:
		return pow(a, b)
	case LShift, RShift, BitOr, BitAnd, BitXor:
		if a.Float || b.Float {
			return Value{}, false
		}
		return bitwise(op, a.I, b.I)
	}
	return Value{}, false
}

func floorDiv(a, b Value) (Value, bool) {
	if a.Float || b.Float {
		y := b.float()
		if y == 0 {
			return Value{}, false
		}
		return floatVal(math.Floor(a.float() / y)), true
	}
	if b.I == 0 {
		return Value{}, false
	}
	if b.I == -1 {
		return intVal(-a.I), true
	}
	q := a.I / b.I
	if a.I%b.I != 0 && (a.I < 0) != (b.I < 0) {
		q--
	}
	return intVal(q), true
}

// mod follows the sign of the divisor.
func mod(a, b Value) (Value, bool) {
	if a.Float || b.Float {
		y := b.float()
		if y == 0 {
			return Value{}, false
		}
		r := math.Mod(a.float(), y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return floatVal(r), true
	}
	if b.I == 0 {
		return Value{}, false
	}
	if b.I == -1 {
		return intVal(0), true
	}
	r := a.I % b.I
	if r != 0 && (r < 0) != (b.I < 0) {
		r += b.I
	}
	return intVal(r), true
}

func pow(a, b Value) (Value, bool) {
	if !a.Float && !b.Float {
		if b.I >= 0 {
			return intVal(ipow(a.I, b.I)), true
		}
		if a.I == 0 {
			return Value{}, false
		}
		return floatPow(float64(a.I), float64(b.I))
	}
	return floatPow(a.float(), b.float())
}

// ipow is exponentiation by squaring in wrapping int64 arithmetic.
func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func floatPow(x, y float64) (Value, bool) {
	if x == 0 && y < 0 {
		return Value{}, false
	}
	// a negative base with a fractional exponent has no real result
	if x < 0 && y != math.Trunc(y) && !math.IsInf(y, 0) {
		return Value{}, false
	}
	r := math.Pow(x, y)
	if math.IsInf(r, 0) && !math.IsInf(x, 0) && !math.IsInf(y, 0) {
		return Value{}, false
	}
	return floatVal(r), true
}

func bitwise(op BinaryOp, a, b int64) (Value, bool) {
	switch op {
	case BitOr:
		return intVal(a | b), true
	case BitAnd:
		return intVal(a & b), true
	case BitXor:
		return intVal(a ^ b), true
	case LShift:
		if b < 0 {
			return Value{}, false
		}
		if b >= 64 {
			return intVal(0), true
		}
		return intVal(a << uint(b)), true
	case RShift:
		if b < 0 {
			return Value{}, false
		}
		if b >= 64 {
			b = 63
		}
		return intVal(a >> uint(b)), true
	}
	return Value{}, false
}

func unary(op UnaryOp, v Value) (Value, bool) {
	switch op {
	case UAdd:
		return v, true
	case USub:
		if v.Float {
			return floatVal(-v.F), true
		}
		return intVal(-v.I), true
	case Invert:
		if v.Float {
			return Value{}, false
		}
		return intVal(^v.I), true
	case Not:
		if v.truthy() {
			return intVal(0), true
		}
		return intVal(1), true
	}
	return Value{}, false
}
