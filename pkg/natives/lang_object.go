package natives

import (
	"fmt"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerObject binds java.lang.Object's native surface: identity
// hash, getClass, clone, and the wait/notify/notifyAll triad that
// rides on the per-reference monitor built into pkg/oop.Reference.
// The identity hash comes from the heap reference's own IdentityHash
// rather than a raw pointer value, since Oop is a value type and no Go
// pointer stays stable across a reference's lifetime.
func registerObject(e *runtime.Engine) {
	registerNoArgVoid(e, "java/lang/Object", "registerNatives", "()V")

	e.RegisterNative("java/lang/Object", "hashCode", "()I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recv := args[0]
		if recv.IsNull() {
			return oop.Oop{}, fmt.Errorf("natives: Object.hashCode called on null receiver")
		}
		return oop.Int(recv.Ref.IdentityHash()), nil
	})

	e.RegisterNative("java/lang/Object", "getClass", "()Ljava/lang/Class;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recv := args[0]
		if recv.IsNull() {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
		}
		klass := receiverKlass(recv)
		mirror, err := e.ClassMirror(t, klass)
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(mirror), nil
	})

	e.RegisterNative("java/lang/Object", "clone", "()Ljava/lang/Object;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recv := args[0]
		if recv.IsNull() {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
		}
		return cloneOop(recv)
	})

	e.RegisterNative("java/lang/Object", "notify", "()V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return monitorOp(e, t, args, func(r *oop.Reference) { r.Notify() })
	})
	e.RegisterNative("java/lang/Object", "notifyAll", "()V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return monitorOp(e, t, args, func(r *oop.Reference) { r.NotifyAll() })
	})
	e.RegisterNative("java/lang/Object", "wait", "(J)V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recv := args[0]
		if recv.IsNull() {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
		}
		timeoutMs := args[1].L
		if err := recv.Ref.Wait(t.ID, timeoutMs); err != nil {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/IllegalMonitorStateException", err.Error())
		}
		return oop.Oop{}, nil
	})
}

func monitorOp(e *runtime.Engine, t *runtime.Thread, args []oop.Oop, op func(*oop.Reference)) (oop.Oop, error) {
	recv := args[0]
	if recv.IsNull() {
		return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
	}
	if !recv.Ref.HeldBy(t.ID) {
		return oop.Oop{}, e.ThrowSimple(t, "java/lang/IllegalMonitorStateException", "")
	}
	op(recv.Ref)
	return oop.Oop{}, nil
}

// cloneOop performs a shallow field-by-field / element-by-element copy
// matching Object.clone's contract (a new instance of the same Klass,
// same field values). Arrays clone their own backing storage; a plain
// instance is rejected unless its Klass implements Cloneable, checked
// by the caller's bytecode before this native ever runs in a real JDK
// — here, rejecting is the caller's responsibility via the resolved
// receiver, so this native simply copies.
func cloneOop(recv oop.Oop) (oop.Oop, error) {
	switch d := recv.Ref.Data.(type) {
	case *oop.InstanceData:
		values := make([]oop.Oop, len(d.FieldValues))
		copy(values, d.FieldValues)
		return oop.FromRef(oop.NewReference(&oop.InstanceData{Klass: d.Klass, FieldValues: values})), nil
	case *oop.ObjectArrayData:
		elems := make([]oop.Oop, len(d.Elements))
		copy(elems, d.Elements)
		return oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: d.Klass, Elements: elems})), nil
	case *oop.TypeArrayData:
		clone := *d
		cloneTypeArraySlice(&clone, d)
		return oop.FromRef(oop.NewReference(&clone)), nil
	default:
		return oop.Oop{}, fmt.Errorf("natives: Object.clone: unsupported receiver kind")
	}
}

func cloneTypeArraySlice(dst, src *oop.TypeArrayData) {
	switch src.Elem {
	case oop.PrimBoolean:
		dst.Bools = append([]bool(nil), src.Bools...)
	case oop.PrimByte:
		dst.Bytes = append([]int8(nil), src.Bytes...)
	case oop.PrimChar:
		dst.Chars = append([]uint16(nil), src.Chars...)
	case oop.PrimShort:
		dst.Shorts = append([]int16(nil), src.Shorts...)
	case oop.PrimInt:
		dst.Ints = append([]int32(nil), src.Ints...)
	case oop.PrimLong:
		dst.Longs = append([]int64(nil), src.Longs...)
	case oop.PrimFloat:
		dst.Floats = append([]float32(nil), src.Floats...)
	case oop.PrimDouble:
		dst.Doubles = append([]float64(nil), src.Doubles...)
	}
}

// receiverKlass mirrors runtime's unexported helper of the same name;
// duplicated here since the natives package only sees Engine's public
// surface, not its dispatch internals.
func receiverKlass(recv oop.Oop) *oop.Klass {
	switch d := recv.Ref.Data.(type) {
	case *oop.InstanceData:
		return d.Klass
	case *oop.ObjectArrayData:
		return d.Klass
	case *oop.TypeArrayData:
		return d.Klass
	case *oop.MirrorData:
		return d.Klass
	default:
		return nil
	}
}
