package natives

import (
	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// registerReflect binds three low-level reflection natives that ride
// beneath java.lang.Class and java.lang.reflect:
// sun.reflect.Reflection.getCallerClass, used by security- and
// logging-sensitive call sites to find "who called me",
// sun.reflect.Reflection.getClassAccessFlags, which reports a class's
// access flags, and sun.reflect.ConstantPool.getUTF8At0, a narrow
// read-only window onto a class's own constant pool.
func registerReflect(e *runtime.Engine) {
	e.RegisterNative("sun/reflect/Reflection", "getCallerClass", "()Ljava/lang/Class;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		trace := t.CaptureStackTrace()
		if len(trace) == 0 {
			return oop.Null(), nil
		}
		callerKlass, err := e.Boot.Require(t.ID, trace[0].ClassName)
		if err != nil {
			return oop.Oop{}, err
		}
		mirror, err := e.ClassMirror(t, callerKlass)
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(mirror), nil
	})

	e.RegisterNative("sun/reflect/Reflection", "getClassAccessFlags", "(Ljava/lang/Class;)I", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		m := args[0].Ref.Data.(*oop.MirrorData)
		if m.Target == nil {
			return oop.Int(0x0411), nil
		}
		return oop.Int(int32(m.Target.AccessFlags)), nil
	})

	e.RegisterNative("sun/reflect/ConstantPool", "getUTF8At0", "(Ljava/lang/Object;I)Ljava/lang/String;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		cpOop := args[1]
		index := uint16(args[2].I)
		if cpOop.IsNull() {
			return oop.Oop{}, e.ThrowSimple(t, "java/lang/NullPointerException", "")
		}
		m, ok := cpOop.Ref.Data.(*oop.MirrorData)
		if !ok || m.Target == nil || m.Target.Instance == nil {
			return oop.Null(), nil
		}
		s, err := classfile.GetUtf8(m.Target.Instance.ClassFile.ConstantPool, index)
		if err != nil {
			return oop.Null(), nil
		}
		ref, err := e.NewJavaString(t, s)
		if err != nil {
			return oop.Oop{}, err
		}
		return oop.FromRef(ref), nil
	})
}
