package natives

import (
	"fmt"
	"os"
	"time"

	"github.com/corvusvm/corvus/internal/hostenv"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerSystem binds java.lang.System's native surface: arraycopy,
// the two clocks, identityHashCode, process exit, and the host-
// environment property bridge.
func registerSystem(e *runtime.Engine) {
	registerNoArgVoid(e, "java/lang/System", "registerNatives", "()V")

	e.RegisterNative("java/lang/System", "initProperties", "(Ljava/util/Properties;)Ljava/util/Properties;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return initProperties(e, t, args[0])
	})

	e.RegisterNative("java/lang/System", "currentTimeMillis", "()J", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Long(time.Now().UnixMilli()), nil
	})

	e.RegisterNative("java/lang/System", "nanoTime", "()J", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Long(time.Now().UnixNano()), nil
	})

	e.RegisterNative("java/lang/System", "identityHashCode", "(Ljava/lang/Object;)I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recv := args[0]
		if recv.IsNull() {
			return oop.Int(0), nil
		}
		return oop.Int(recv.Ref.IdentityHash()), nil
	})

	e.RegisterNative("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Oop{}, arraycopy(e, t, args)
	})

	e.RegisterNative("java/lang/System", "exit", "(I)V", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		os.Exit(int(args[0].I))
		return oop.Oop{}, nil
	})
}

// initProperties populates the Properties instance System.initProperties
// was handed with the host's Java system properties (file.encoding,
// os.name, java.home, ...), by invoking the real Properties.setProperty
// bytecode once per entry rather than poking Hashtable internals from
// Go. It returns the same instance, matching the real native's contract.
func initProperties(e *runtime.Engine, t *runtime.Thread, props oop.Oop) (oop.Oop, error) {
	if props.IsNull() {
		return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
	}

	klass := receiverKlass(props)
	setProperty := klass.LookupMethod("setProperty", "(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/Object;")
	if setProperty == nil {
		return oop.Oop{}, fmt.Errorf("natives: java.util.Properties has no setProperty(String,String)")
	}

	for key, value := range hostenv.Properties() {
		keyRef, err := e.NewJavaString(t, key)
		if err != nil {
			return oop.Oop{}, err
		}
		valRef, err := e.NewJavaString(t, value)
		if err != nil {
			return oop.Oop{}, err
		}
		if _, err := e.Invoke(t, setProperty, []oop.Oop{props, oop.FromRef(keyRef), oop.FromRef(valRef)}, true); err != nil {
			return oop.Oop{}, err
		}
	}

	return props, nil
}

// arraycopy implements the five-argument System.arraycopy contract
// (JLS/JDK javadoc): null checks, ArrayStoreException for mismatched
// reference-array component types, and overlap-safe copying (Go's
// copy/builtin slice semantics already handle overlapping ranges
// correctly for same-backing-array self-copies, matching arraycopy's
// "as if" ordering guarantee).
func arraycopy(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) error {
	src, srcPos, dst, dstPos, length := args[0], int(args[1].I), args[2], int(args[3].I), int(args[4].I)
	if src.IsNull() || dst.IsNull() {
		return e.ThrowSimple(t, "java/lang/NullPointerException", "")
	}

	switch s := src.Ref.Data.(type) {
	case *oop.ObjectArrayData:
		d, ok := dst.Ref.Data.(*oop.ObjectArrayData)
		if !ok {
			return e.ThrowSimple(t, "java/lang/ArrayStoreException", "")
		}
		if srcPos < 0 || dstPos < 0 || length < 0 || srcPos+length > len(s.Elements) || dstPos+length > len(d.Elements) {
			return e.ThrowSimple(t, "java/lang/ArrayIndexOutOfBoundsException", "")
		}
		for i := 0; i < length; i++ {
			v := s.Elements[srcPos+i]
			if !v.IsNull() && !receiverKlass(v).IsAssignableTo(d.Klass.ComponentKlass()) {
				return e.ThrowSimple(t, "java/lang/ArrayStoreException", receiverKlass(v).Name)
			}
		}
		copy(d.Elements[dstPos:dstPos+length], s.Elements[srcPos:srcPos+length])
		return nil

	case *oop.TypeArrayData:
		d, ok := dst.Ref.Data.(*oop.TypeArrayData)
		if !ok || d.Elem != s.Elem {
			return e.ThrowSimple(t, "java/lang/ArrayStoreException", "")
		}
		return copyTypeArray(e, t, s, d, srcPos, dstPos, length)

	default:
		return fmt.Errorf("natives: System.arraycopy: unsupported source kind")
	}
}

func copyTypeArray(e *runtime.Engine, t *runtime.Thread, s, d *oop.TypeArrayData, srcPos, dstPos, length int) error {
	oob := func(srcLen, dstLen int) bool {
		return srcPos < 0 || dstPos < 0 || length < 0 || srcPos+length > srcLen || dstPos+length > dstLen
	}
	switch s.Elem {
	case oop.PrimBoolean:
		if oob(len(s.Bools), len(d.Bools)) {
			break
		}
		copy(d.Bools[dstPos:dstPos+length], s.Bools[srcPos:srcPos+length])
		return nil
	case oop.PrimByte:
		if oob(len(s.Bytes), len(d.Bytes)) {
			break
		}
		copy(d.Bytes[dstPos:dstPos+length], s.Bytes[srcPos:srcPos+length])
		return nil
	case oop.PrimChar:
		if oob(len(s.Chars), len(d.Chars)) {
			break
		}
		copy(d.Chars[dstPos:dstPos+length], s.Chars[srcPos:srcPos+length])
		return nil
	case oop.PrimShort:
		if oob(len(s.Shorts), len(d.Shorts)) {
			break
		}
		copy(d.Shorts[dstPos:dstPos+length], s.Shorts[srcPos:srcPos+length])
		return nil
	case oop.PrimInt:
		if oob(len(s.Ints), len(d.Ints)) {
			break
		}
		copy(d.Ints[dstPos:dstPos+length], s.Ints[srcPos:srcPos+length])
		return nil
	case oop.PrimLong:
		if oob(len(s.Longs), len(d.Longs)) {
			break
		}
		copy(d.Longs[dstPos:dstPos+length], s.Longs[srcPos:srcPos+length])
		return nil
	case oop.PrimFloat:
		if oob(len(s.Floats), len(d.Floats)) {
			break
		}
		copy(d.Floats[dstPos:dstPos+length], s.Floats[srcPos:srcPos+length])
		return nil
	case oop.PrimDouble:
		if oob(len(s.Doubles), len(d.Doubles)) {
			break
		}
		copy(d.Doubles[dstPos:dstPos+length], s.Doubles[srcPos:srcPos+length])
		return nil
	}
	return e.ThrowSimple(t, "java/lang/ArrayIndexOutOfBoundsException", "")
}
