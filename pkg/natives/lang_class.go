package natives

import (
	"strings"

	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// primitiveNames is the set of Java source names used by
// Class.getPrimitiveClass (and printed by Class.getName), so
// getPrimitiveClass can validate its argument against exactly the
// eight primitives plus void.
var primitiveNames = map[string]bool{
	"byte": true, "boolean": true, "char": true, "short": true,
	"int": true, "float": true, "long": true, "double": true, "void": true,
}

// registerClass binds java.lang.Class's native surface:
// getPrimitiveClass/desiredAssertionStatus0/isArray/isPrimitive/
// forName0/isAssignableFrom/getComponentType/getSuperclass/getName0/
// isInterface/isInstance/getModifiers.
func registerClass(e *runtime.Engine) {
	registerNoArgVoid(e, "java/lang/Class", "registerNatives", "()V")

	e.RegisterNative("java/lang/Class", "desiredAssertionStatus0", "(Ljava/lang/Class;)Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return oop.Int(0), nil
	})

	e.RegisterNative("java/lang/Class", "getPrimitiveClass", "(Ljava/lang/String;)Ljava/lang/Class;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		name := runtime.JavaStringValue(args[0].Ref)
		if !primitiveNames[name] {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/ClassNotFoundException", name)
		}
		return oop.FromRef(e.PrimitiveMirror(name)), nil
	})

	e.RegisterNative("java/lang/Class", "isPrimitive", "()Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		return oop.Int(boolInt(m.IsPrimitive)), nil
	})

	e.RegisterNative("java/lang/Class", "isArray", "()Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		return oop.Int(boolInt(m.Target != nil && m.Target.IsArray())), nil
	})

	e.RegisterNative("java/lang/Class", "isInterface", "()Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		return oop.Int(boolInt(m.Target != nil && m.Target.IsInterface())), nil
	})

	e.RegisterNative("java/lang/Class", "getModifiers", "()I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		if m.Target == nil {
			return oop.Int(0x0411), nil // ACC_PUBLIC|ACC_FINAL|ACC_ABSTRACT, matching a primitive's synthetic modifiers
		}
		return oop.Int(int32(m.Target.AccessFlags)), nil
	})

	e.RegisterNative("java/lang/Class", "getSuperclass", "()Ljava/lang/Class;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		if m.Target == nil || m.Target.Super == nil {
			return oop.Null(), nil
		}
		mirror, err := e.ClassMirror(t, m.Target.Super)
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(mirror), nil
	})

	e.RegisterNative("java/lang/Class", "getComponentType", "()Ljava/lang/Class;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		if m.Target == nil || !m.Target.IsArray() {
			return oop.Null(), nil
		}
		mirror, err := e.ClassMirror(t, m.Target.ComponentKlass())
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(mirror), nil
	})

	e.RegisterNative("java/lang/Class", "getName0", "()Ljava/lang/String;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		name := m.Name
		if m.Target != nil {
			name = strings.ReplaceAll(m.Target.Name, "/", ".")
		}
		ref, err := e.NewJavaString(t, name)
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(ref), nil
	})

	e.RegisterNative("java/lang/Class", "isInstance", "(Ljava/lang/Object;)Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		obj := args[1]
		if obj.IsNull() || m.Target == nil {
			return oop.Int(0), nil
		}
		return oop.Int(boolInt(receiverKlass(obj).IsAssignableTo(m.Target))), nil
	})

	e.RegisterNative("java/lang/Class", "isAssignableFrom", "(Ljava/lang/Class;)Z", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		self := args[0].Ref.Data.(*oop.MirrorData)
		other := args[1].Ref.Data.(*oop.MirrorData)
		if self.Target == nil || other.Target == nil {
			return oop.Int(boolInt(self.Target == other.Target)), nil
		}
		return oop.Int(boolInt(other.Target.IsAssignableTo(self.Target))), nil
	})

	e.RegisterNative("java/lang/Class", "forName0", "(Ljava/lang/String;ZLjava/lang/ClassLoader;Ljava/lang/Class;)Ljava/lang/Class;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		javaName := runtime.JavaStringValue(args[0].Ref)
		initialize := args[1].I != 0
		internalName := strings.ReplaceAll(javaName, ".", "/")

		klass, err := e.Boot.Require(t.ID, internalName)
		if err != nil {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/ClassNotFoundException", javaName)
		}
		if initialize {
			if err := e.Boot.EnsureInitialized(t.ID, klass); err != nil {
				return oop.Oop{}, err
			}
		}
		mirror, err := e.ClassMirror(t, klass)
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(mirror), nil
	})
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
