// Package reflectutil populates java.lang.reflect.Field, Method, and
// Constructor instances from a Klass's C3 metadata (C11): the native
// half of Class.getDeclaredFields0/getDeclaredMethods0/
// getDeclaredConstructors0. Everything here is read-only introspection
// over a Klass already loaded by pkg/classloader — it never changes
// the class model, only reports it.
package reflectutil

import (
	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/runtime"
)

// Register binds the three getDeclaredX0 natives onto e. All three
// ignore the publicOnly argument the real signature carries and
// always report every declared member, a narrowing a caller-side
// filter in java.lang.Class can apply if it cares.
func Register(e *runtime.Engine) {
	e.RegisterNative("java/lang/Class", "getDeclaredFields0", "(Z)[Ljava/lang/reflect/Field;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return getDeclaredFields0(e, t, args)
	})
	e.RegisterNative("java/lang/Class", "getDeclaredMethods0", "(Z)[Ljava/lang/reflect/Method;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return getDeclaredMethods0(e, t, args)
	})
	e.RegisterNative("java/lang/Class", "getDeclaredConstructors0", "(Z)[Ljava/lang/reflect/Constructor;", func(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
		return getDeclaredConstructors0(e, t, args)
	})
}

func getDeclaredFields0(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
	target, err := declaringKlass(e, t, args[0])
	if err != nil {
		return oop.Oop{}, err
	}
	if target == nil || !target.IsInstance() {
		return emptyArray(e, t, "[Ljava/lang/reflect/Field;")
	}

	fieldKlass, err := e.Boot.Require(t.ID, "java/lang/reflect/Field")
	if err != nil {
		return oop.Oop{}, err
	}
	ctor := fieldKlass.LookupMethod("<init>", "(Ljava/lang/Class;Ljava/lang/String;Ljava/lang/Class;IILjava/lang/String;[B)V")

	var fields []*oop.Field
	for _, f := range target.Instance.InstFields {
		fields = append(fields, f)
	}
	for _, f := range target.Instance.StaticFields {
		fields = append(fields, f)
	}

	mirrors := make([]oop.Oop, 0, len(fields))
	for _, f := range fields {
		classMirror, err := e.ClassMirror(t, target)
		if err != nil {
			return oop.Oop{}, err
		}
		nameRef, err := e.NewJavaString(t, f.Name)
		if err != nil {
			return oop.Oop{}, err
		}
		typeOop, err := typeToMirror(e, t, f.ValueType)
		if err != nil {
			return oop.Oop{}, err
		}
		annotations, err := emptyByteArray(e, t)
		if err != nil {
			return oop.Oop{}, err
		}

		inst := oop.FromRef(oop.NewInstance(fieldKlass))
		if ctor != nil {
			callArgs := []oop.Oop{
				inst,
				oop.FromRef(classMirror),
				oop.FromRef(nameRef),
				typeOop,
				oop.Int(int32(f.AccessFlags)),
				oop.Int(0),
				oop.Null(),
				annotations,
			}
			if _, err := e.Invoke(t, ctor, callArgs, true); err != nil {
				return oop.Oop{}, err
			}
		}
		mirrors = append(mirrors, inst)
	}

	return wrapArray(e, t, "[Ljava/lang/reflect/Field;", mirrors)
}

func getDeclaredMethods0(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
	target, err := declaringKlass(e, t, args[0])
	if err != nil {
		return oop.Oop{}, err
	}
	if target == nil || !target.IsInstance() {
		return emptyArray(e, t, "[Ljava/lang/reflect/Method;")
	}

	methodKlass, err := e.Boot.Require(t.ID, "java/lang/reflect/Method")
	if err != nil {
		return oop.Oop{}, err
	}
	ctor := methodKlass.LookupMethod("<init>", "(Ljava/lang/Class;Ljava/lang/String;[Ljava/lang/Class;Ljava/lang/Class;[Ljava/lang/Class;IILjava/lang/String;[B[B[B)V")

	emptyExceptions, err := emptyClassArray(e, t)
	if err != nil {
		return oop.Oop{}, err
	}

	mirrors := make([]oop.Oop, 0)
	for _, m := range target.Instance.AllMethods {
		if m.IsConstructor() || m.Name == "<clinit>" {
			continue
		}
		classMirror, err := e.ClassMirror(t, target)
		if err != nil {
			return oop.Oop{}, err
		}
		nameRef, err := e.NewJavaString(t, m.Name)
		if err != nil {
			return oop.Oop{}, err
		}
		paramTypes, err := classArray(e, t, m.Signature.Args)
		if err != nil {
			return oop.Oop{}, err
		}
		returnType, err := typeToMirror(e, t, m.Signature.Return)
		if err != nil {
			return oop.Oop{}, err
		}
		annotations, err := emptyByteArray(e, t)
		if err != nil {
			return oop.Oop{}, err
		}
		paramAnnotations, err := emptyByteArray(e, t)
		if err != nil {
			return oop.Oop{}, err
		}
		annotationDefault, err := emptyByteArray(e, t)
		if err != nil {
			return oop.Oop{}, err
		}

		inst := oop.FromRef(oop.NewInstance(methodKlass))
		if ctor != nil {
			callArgs := []oop.Oop{
				inst,
				oop.FromRef(classMirror),
				oop.FromRef(nameRef),
				paramTypes,
				returnType,
				emptyExceptions,
				oop.Int(int32(m.AccessFlags)),
				oop.Int(int32(m.Index)),
				oop.Null(),
				annotations,
				paramAnnotations,
				annotationDefault,
			}
			if _, err := e.Invoke(t, ctor, callArgs, true); err != nil {
				return oop.Oop{}, err
			}
		}
		mirrors = append(mirrors, inst)
	}

	return wrapArray(e, t, "[Ljava/lang/reflect/Method;", mirrors)
}

func getDeclaredConstructors0(e *runtime.Engine, t *runtime.Thread, args []oop.Oop) (oop.Oop, error) {
	target, err := declaringKlass(e, t, args[0])
	if err != nil {
		return oop.Oop{}, err
	}
	if target == nil || !target.IsInstance() {
		return emptyArray(e, t, "[Ljava/lang/reflect/Constructor;")
	}

	ctorKlass, err := e.Boot.Require(t.ID, "java/lang/reflect/Constructor")
	if err != nil {
		return oop.Oop{}, err
	}
	ctor := ctorKlass.LookupMethod("<init>", "(Ljava/lang/Class;[Ljava/lang/Class;[Ljava/lang/Class;IILjava/lang/String;[B[B)V")

	emptyExceptions, err := emptyClassArray(e, t)
	if err != nil {
		return oop.Oop{}, err
	}

	mirrors := make([]oop.Oop, 0)
	for _, m := range target.Instance.AllMethods {
		if !m.IsConstructor() {
			continue
		}
		classMirror, err := e.ClassMirror(t, target)
		if err != nil {
			return oop.Oop{}, err
		}
		paramTypes, err := classArray(e, t, m.Signature.Args)
		if err != nil {
			return oop.Oop{}, err
		}
		annotations, err := emptyByteArray(e, t)
		if err != nil {
			return oop.Oop{}, err
		}
		paramAnnotations, err := emptyByteArray(e, t)
		if err != nil {
			return oop.Oop{}, err
		}

		inst := oop.FromRef(oop.NewInstance(ctorKlass))
		if ctor != nil {
			callArgs := []oop.Oop{
				inst,
				oop.FromRef(classMirror),
				paramTypes,
				emptyExceptions,
				oop.Int(int32(m.AccessFlags)),
				oop.Int(int32(m.Index)),
				oop.Null(),
				annotations,
				paramAnnotations,
			}
			if _, err := e.Invoke(t, ctor, callArgs, true); err != nil {
				return oop.Oop{}, err
			}
		}
		mirrors = append(mirrors, inst)
	}

	return wrapArray(e, t, "[Ljava/lang/reflect/Constructor;", mirrors)
}

// declaringKlass recovers the target Klass from a java.lang.Class
// mirror Oop (the receiver every getDeclaredX0 native is invoked on).
func declaringKlass(e *runtime.Engine, t *runtime.Thread, classMirror oop.Oop) (*oop.Klass, error) {
	if classMirror.IsNull() {
		return nil, e.ThrowSimple(t, "java/lang/NullPointerException", "")
	}
	m := classMirror.Ref.Data.(*oop.MirrorData)
	return m.Target, nil
}

// typeToMirror resolves a parsed descriptor Type to the java.lang.Class
// mirror it denotes: the cached primitive mirror for a primitive kind,
// or the loaded Klass's mirror for an object/array kind.
func typeToMirror(e *runtime.Engine, t *runtime.Thread, ty classfile.Type) (oop.Oop, error) {
	if name, ok := primitiveSourceName(ty.Kind); ok {
		return oop.FromRef(e.PrimitiveMirror(name)), nil
	}
	desc := descriptorOf(ty)
	klass, err := e.Boot.Require(t.ID, desc)
	if err != nil {
		return oop.Oop{}, err
	}
	mirror, err := e.ClassMirror(t, klass)
	if err != nil {
		return oop.Oop{}, err
	}
	return oop.FromRef(mirror), nil
}

func primitiveSourceName(k classfile.Kind) (string, bool) {
	switch k {
	case classfile.KindBoolean:
		return "boolean", true
	case classfile.KindByte:
		return "byte", true
	case classfile.KindChar:
		return "char", true
	case classfile.KindShort:
		return "short", true
	case classfile.KindInt:
		return "int", true
	case classfile.KindLong:
		return "long", true
	case classfile.KindFloat:
		return "float", true
	case classfile.KindDouble:
		return "double", true
	case classfile.KindVoid:
		return "void", true
	}
	return "", false
}

// descriptorOf rebuilds a JVMS §4.3.2 field descriptor from a parsed
// Type, the form Klass names and e.Boot.Require expect for object and
// array types (object types pass as a plain internal class name, not
// an "L...;"-wrapped one).
func descriptorOf(ty classfile.Type) string {
	switch ty.Kind {
	case classfile.KindObject:
		return ty.ClassName
	case classfile.KindArray:
		return "[" + arrayElemDescriptor(*ty.Elem)
	}
	return ""
}

// arrayElemDescriptor renders ty the way it appears one level inside an
// array descriptor, where object types do need their "L...;" wrapper.
func arrayElemDescriptor(ty classfile.Type) string {
	switch ty.Kind {
	case classfile.KindBoolean:
		return "Z"
	case classfile.KindByte:
		return "B"
	case classfile.KindChar:
		return "C"
	case classfile.KindShort:
		return "S"
	case classfile.KindInt:
		return "I"
	case classfile.KindLong:
		return "J"
	case classfile.KindFloat:
		return "F"
	case classfile.KindDouble:
		return "D"
	case classfile.KindObject:
		return "L" + ty.ClassName + ";"
	case classfile.KindArray:
		return "[" + arrayElemDescriptor(*ty.Elem)
	}
	return ""
}

func classArray(e *runtime.Engine, t *runtime.Thread, types []classfile.Type) (oop.Oop, error) {
	mirrors := make([]oop.Oop, len(types))
	for i, ty := range types {
		m, err := typeToMirror(e, t, ty)
		if err != nil {
			return oop.Oop{}, err
		}
		mirrors[i] = m
	}
	return wrapArray(e, t, "[Ljava/lang/Class;", mirrors)
}

func emptyClassArray(e *runtime.Engine, t *runtime.Thread) (oop.Oop, error) {
	return wrapArray(e, t, "[Ljava/lang/Class;", nil)
}

func emptyByteArray(e *runtime.Engine, t *runtime.Thread) (oop.Oop, error) {
	klass, err := e.Boot.Require(t.ID, "[B")
	if err != nil {
		return oop.Oop{}, err
	}
	return oop.FromRef(oop.NewTypeArray(klass, oop.PrimByte, 0)), nil
}

func emptyArray(e *runtime.Engine, t *runtime.Thread, arrayName string) (oop.Oop, error) {
	return wrapArray(e, t, arrayName, nil)
}

func wrapArray(e *runtime.Engine, t *runtime.Thread, arrayName string, elements []oop.Oop) (oop.Oop, error) {
	klass, err := e.Boot.Require(t.ID, arrayName)
	if err != nil {
		return oop.Oop{}, err
	}
	return oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: klass, Elements: elements})), nil
}
