package natives

import (
	"math"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerFloatDouble binds the bit-reinterpretation natives of
// java.lang.Float and java.lang.Double — the only methods on either
// class JDK 8 actually marks native; isNaN and friends are pure Java
// built atop these.
func registerFloatDouble(e *runtime.Engine) {
	e.RegisterNative("java/lang/Float", "floatToRawIntBits", "(F)I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(int32(math.Float32bits(args[0].F))), nil
	})
	e.RegisterNative("java/lang/Float", "intBitsToFloat", "(I)F", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Float(math.Float32frombits(uint32(args[0].I))), nil
	})

	e.RegisterNative("java/lang/Double", "doubleToRawLongBits", "(D)J", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Long(int64(math.Float64bits(args[0].D))), nil
	})
	e.RegisterNative("java/lang/Double", "longBitsToDouble", "(J)D", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Double(math.Float64frombits(uint64(args[0].L))), nil
	})
}
