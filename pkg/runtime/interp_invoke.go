package runtime

import (
	"fmt"

	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

// execLdc implements ldc/ldc_w (JVMS §6.5): push an int, float, String,
// or Class constant.
func (e *Engine) execLdc(t *Thread, f *Frame, index uint16) error {
	pool := f.constantPool()
	if int(index) >= len(pool) || pool[index] == nil {
		return fmt.Errorf("runtime: invalid constant pool index %d", index)
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantInteger:
		f.Push(oop.Int(c.Value))
	case *classfile.ConstantFloat:
		f.Push(oop.Float(c.Value))
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return fmt.Errorf("runtime: resolving ldc String: %w", err)
		}
		ref, err := e.newJavaString(t, s)
		if err != nil {
			return err
		}
		f.Push(oop.FromRef(ref))
	case *classfile.ConstantClass:
		name, err := classfile.GetClassName(pool, index)
		if err != nil {
			return fmt.Errorf("runtime: resolving ldc Class: %w", err)
		}
		klass, err := e.Boot.Require(t.ID, name)
		if err != nil {
			return err
		}
		mirror, err := e.classMirror(t, klass)
		if err != nil {
			return err
		}
		f.Push(oop.FromRef(mirror))
	case *classfile.ConstantMethodHandle, *classfile.ConstantMethodType:
		return fmt.Errorf("runtime: internal error: ldc of MethodHandle/MethodType constants is unsupported")
	default:
		return fmt.Errorf("runtime: ldc of unexpected constant pool tag at index %d", index)
	}
	return nil
}

// execLdc2W implements ldc2_w: push a long or double constant.
func (e *Engine) execLdc2W(f *Frame, index uint16) error {
	pool := f.constantPool()
	if int(index) >= len(pool) || pool[index] == nil {
		return fmt.Errorf("runtime: invalid constant pool index %d", index)
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantLong:
		f.Push(oop.Long(c.Value))
	case *classfile.ConstantDouble:
		f.Push(oop.Double(c.Value))
	default:
		return fmt.Errorf("runtime: ldc2_w of unexpected constant pool tag at index %d", index)
	}
	return nil
}

// resolveMethodref resolves an invoke* operand via the owning class's
// constant-pool cache.
func (e *Engine) resolveMethodref(t *Thread, f *Frame, index uint16, isInterface bool) (*oop.Method, error) {
	cache := f.Class.Instance.CPCache
	if entry := cache.Lookup(index); entry != nil && entry.Method != nil {
		return entry.Method, nil
	}

	pool := f.constantPool()
	var ref *classfile.MethodRefInfo
	var err error
	if isInterface {
		ref, err = classfile.ResolveInterfaceMethodref(pool, index)
	} else {
		ref, err = classfile.ResolveMethodref(pool, index)
	}
	if err != nil {
		return nil, fmt.Errorf("runtime: resolving methodref: %w", err)
	}

	klass, err := e.Boot.Require(t.ID, ref.ClassName)
	if err != nil {
		return nil, fmt.Errorf("runtime: resolving method class %s: %w", ref.ClassName, err)
	}

	var method *oop.Method
	if isInterface {
		method = klass.LookupInterfaceMethod(ref.MethodName, ref.Descriptor)
	} else {
		method = klass.LookupMethod(ref.MethodName, ref.Descriptor)
	}
	if method == nil {
		return nil, fmt.Errorf("runtime: NoSuchMethodError: %s.%s%s", ref.ClassName, ref.MethodName, ref.Descriptor)
	}
	cache.StoreMethod(index, method)
	return method, nil
}

// execInvokeOp handles the five invoke* opcodes. invokedynamic is
// parsed (so well-formed class files still decode) but never
// executed: dispatching a real call site requires a bootstrap-method
// linkage this core does not implement.
func (e *Engine) execInvokeOp(t *Thread, f *Frame, opcode byte) error {
	switch opcode {
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic:
		idx := f.readU16()
		method, err := e.resolveMethodref(t, f, idx, false)
		if err != nil {
			return err
		}
		return e.dispatchInvoke(t, f, method, opcode == OpInvokevirtual)

	case OpInvokeinterface:
		idx := f.readU16()
		_ = f.readU8() // count, historical; unused by this interpreter
		_ = f.readU8() // must be zero
		method, err := e.resolveMethodref(t, f, idx, true)
		if err != nil {
			return err
		}
		return e.dispatchInvoke(t, f, method, true)

	case OpInvokedynamic:
		idx := f.readU16()
		_ = f.readU16() // two reserved zero bytes
		pool := f.constantPool()
		if int(idx) < len(pool) {
			if _, ok := pool[idx].(*classfile.ConstantInvokeDynamic); ok {
				return fmt.Errorf("runtime: internal error: invokedynamic call site at constant pool index %d has no bootstrap linkage support", idx)
			}
		}
		return fmt.Errorf("runtime: internal error: invokedynamic with invalid constant pool index %d", idx)
	}
	return nil
}

func (e *Engine) dispatchInvoke(t *Thread, f *Frame, method *oop.Method, allowResolve bool) error {
	argc := method.ArgSlots()
	if !method.IsStatic() {
		argc++
	}
	args := make([]oop.Oop, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = f.Pop()
	}

	result, err := e.Invoke(t, method, args, !allowResolve)
	if err != nil {
		return err
	}
	if method.Signature.Return.Kind != classfile.KindVoid {
		f.Push(result)
	}
	return nil
}
