package natives

import (
	"math"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerMath binds the transcendental natives java.lang.Math and
// java.lang.StrictMath share (both classes resolve to the same
// underlying fdlibm-derived routines in the real JDK; Go's math
// package is the stand-in here), covering the full native list from
// JDK 8's Math.java declarations.
func registerMath(e *runtime.Engine) {
	unary := func(name string, fn func(float64) float64) {
		body := func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
			return oop.Double(fn(args[0].D)), nil
		}
		e.RegisterNative("java/lang/Math", name, "(D)D", body)
		e.RegisterNative("java/lang/StrictMath", name, "(D)D", body)
	}
	binary := func(name string, fn func(a, b float64) float64) {
		body := func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
			return oop.Double(fn(args[0].D, args[1].D)), nil
		}
		e.RegisterNative("java/lang/Math", name, "(DD)D", body)
		e.RegisterNative("java/lang/StrictMath", name, "(DD)D", body)
	}

	unary("sqrt", math.Sqrt)
	unary("cbrt", math.Cbrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	unary("exp", math.Exp)
	unary("log", math.Log)
	unary("log10", math.Log10)
	unary("sinh", math.Sinh)
	unary("cosh", math.Cosh)
	unary("tanh", math.Tanh)
	unary("expm1", math.Expm1)
	unary("log1p", math.Log1p)

	binary("pow", math.Pow)
	binary("atan2", math.Atan2)
	binary("IEEEremainder", math.Remainder)
	binary("hypot", math.Hypot)
}
