package natives

import (
	"fmt"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerMisc binds the assorted low-level natives that don't belong
// to any one java.lang class: jdk.internal.misc.VM/CDS bootstrap
// stubs, a minimal jdk.internal.misc.Unsafe (just enough for classes
// that probe it without actually doing unsafe memory tricks), a
// Runtime.maxMemory stub, and java.lang.reflect.Array's dynamic
// array-construction pair (Array.newArray, the native behind
// Array.newInstance, and Array.getLength).
func registerMisc(e *runtime.Engine) {
	registerNoArgVoid(e, "jdk/internal/misc/VM", "initialize", "()V")

	e.RegisterNative("jdk/internal/misc/VM", "getSavedProperty", "(Ljava/lang/String;)Ljava/lang/String;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Null(), nil
	})

	registerNoArgVoid(e, "jdk/internal/misc/CDS", "initializeFromArchive", "(Ljava/lang/Class;)V")
	for _, name := range []string{"isDumpingClassList0", "isDumpingArchive0", "isSharingEnabled0"} {
		e.RegisterNative("jdk/internal/misc/CDS", name, "()Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
			return oop.Int(0), nil
		})
	}
	e.RegisterNative("jdk/internal/misc/CDS", "getRandomSeedForDumping", "()J", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Long(0), nil
	})

	e.RegisterNative("jdk/internal/misc/Unsafe", "getUnsafe", "()Ljdk/internal/misc/Unsafe;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		klass, err := e.Boot.Require(t.ID, "jdk/internal/misc/Unsafe")
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(oop.NewInstance(klass)), nil
	})
	registerNoArgVoid(e, "jdk/internal/misc/Unsafe", "storeFence", "()V")
	registerNoArgVoid(e, "jdk/internal/misc/Unsafe", "loadFence", "()V")
	registerNoArgVoid(e, "jdk/internal/misc/Unsafe", "fullFence", "()V")
	e.RegisterNative("jdk/internal/misc/Unsafe", "arrayBaseOffset", "(Ljava/lang/Class;)I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(0), nil
	})
	e.RegisterNative("jdk/internal/misc/Unsafe", "arrayIndexScale", "(Ljava/lang/Class;)I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(1), nil
	})
	e.RegisterNative("jdk/internal/misc/Unsafe", "objectFieldOffset1", "(Ljava/lang/Class;Ljava/lang/String;)J", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		recvClass := args[1].Ref.Data.(*oop.MirrorData)
		name := runtime.JavaStringValue(args[2].Ref)
		if recvClass.Target == nil {
			return oop.Long(0), nil
		}
		return oop.Long(int64(fieldOffsetByName(recvClass.Target, name))), nil
	})

	e.RegisterNative("java/lang/Runtime", "maxMemory", "()J", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Long(256 * 1024 * 1024), nil
	})
	e.RegisterNative("java/lang/Runtime", "availableProcessors", "()I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(1), nil
	})

	registerArray(e)
}

var primitiveDescriptorChars = map[string]byte{
	"boolean": 'Z', "byte": 'B', "char": 'C', "short": 'S',
	"int": 'I', "long": 'J', "float": 'F', "double": 'D',
}

// registerArray binds java.lang.reflect.Array's two natives: dynamic
// array allocation given a runtime Class (used by varargs boxing,
// collection toArray(Class), and serialization frameworks) and length
// introspection.
func registerArray(e *runtime.Engine) {
	e.RegisterNative("java/lang/reflect/Array", "newArray", "(Ljava/lang/Class;I)Ljava/lang/Object;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		componentMirror := args[0].Ref.Data.(*oop.MirrorData)
		length := int(args[1].I)
		if length < 0 {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/NegativeArraySizeException", "")
		}

		arrayName, err := arrayClassName(componentMirror)
		if err != nil {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/IllegalArgumentException", err.Error())
		}
		arrKlass, err := e.Boot.Require(t.ID, arrayName)
		if err != nil {
			return oop.Oop{}, err
		}

		if arrKlass.Kind == oop.KindTypeArrayKlass {
			return oop.FromRef(oop.NewTypeArray(arrKlass, arrKlass.TypeArray.Elem, length)), nil
		}
		return oop.FromRef(oop.NewObjectArray(arrKlass, length)), nil
	})

	e.RegisterNative("java/lang/reflect/Array", "getLength", "(Ljava/lang/Object;)I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		if args[0].IsNull() {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
		}
		switch d := args[0].Ref.Data.(type) {
		case *oop.ObjectArrayData:
			return oop.Int(int32(len(d.Elements))), nil
		case *oop.TypeArrayData:
			return oop.Int(int32(typeArrayLen(d))), nil
		default:
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/IllegalArgumentException", "Argument is not an array")
		}
	})
}

func arrayClassName(m *oop.MirrorData) (string, error) {
	if m.IsPrimitive {
		c, ok := primitiveDescriptorChars[m.Name]
		if !ok {
			return "", fmt.Errorf("unsupported primitive component %q", m.Name)
		}
		return "[" + string(c), nil
	}
	if m.Target.IsArray() {
		return "[" + m.Target.Name, nil
	}
	return "[L" + m.Target.Name + ";", nil
}

// fieldOffsetByName walks k's superclass chain looking for an
// instance field named name, descriptor unknown (Unsafe's caller only
// ever has a java.lang.reflect.Field's declaring name in hand here,
// not its full signature). Returns 0, a harmless sentinel, if absent.
func fieldOffsetByName(k *oop.Klass, name string) int {
	for c := k; c != nil; c = c.Super {
		if c.Kind != oop.KindInstanceKlass {
			continue
		}
		for _, f := range c.Instance.InstFields {
			if f.Name == name {
				return f.Offset
			}
		}
	}
	return 0
}

func typeArrayLen(d *oop.TypeArrayData) int {
	switch d.Elem {
	case oop.PrimBoolean:
		return len(d.Bools)
	case oop.PrimByte:
		return len(d.Bytes)
	case oop.PrimChar:
		return len(d.Chars)
	case oop.PrimShort:
		return len(d.Shorts)
	case oop.PrimInt:
		return len(d.Ints)
	case oop.PrimLong:
		return len(d.Longs)
	case oop.PrimFloat:
		return len(d.Floats)
	case oop.PrimDouble:
		return len(d.Doubles)
	}
	return 0
}
