package runtime

import (
	"fmt"

	"github.com/corvusvm/corvus/pkg/classfile"
	"github.com/corvusvm/corvus/pkg/oop"
)

// resolveFieldref resolves a getfield/putfield/getstatic/putstatic
// operand via the owning class's constant-pool cache (§3.2),
// populating it on a miss.
func (e *Engine) resolveFieldref(t *Thread, f *Frame, index uint16, static bool) (*oop.Field, *oop.Klass, error) {
	cache := f.Class.Instance.CPCache
	if entry := cache.Lookup(index); entry != nil && entry.Field != nil {
		return entry.Field, entry.Field.Owner, nil
	}
	ref, err := classfile.ResolveFieldref(f.constantPool(), index)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: resolving fieldref: %w", err)
	}
	klass, err := e.Boot.Require(t.ID, ref.ClassName)
	if err != nil {
		return nil, nil, fmt.Errorf("runtime: resolving field class %s: %w", ref.ClassName, err)
	}
	field := klass.FieldID(ref.FieldName, ref.Descriptor, static)
	if field == nil {
		return nil, nil, fmt.Errorf("runtime: NoSuchFieldError: %s.%s", ref.ClassName, ref.FieldName)
	}
	cache.StoreField(index, field)
	return field, field.Owner, nil
}

func (e *Engine) resolveClassOperand(t *Thread, f *Frame) (*oop.Klass, error) {
	idx := f.readU16()
	name, err := classfile.GetClassName(f.constantPool(), idx)
	if err != nil {
		return nil, fmt.Errorf("runtime: resolving class operand: %w", err)
	}
	return e.Boot.Require(t.ID, name)
}

// execObjectOp handles the opcodes that manipulate objects, arrays,
// and fields: new/newarray family, arraylength, athrow, checkcast,
// instanceof, monitorenter/exit, and the static/instance field
// accessors.
func (e *Engine) execObjectOp(t *Thread, f *Frame, opcode byte) error {
	switch opcode {
	case OpNew:
		klass, err := e.resolveClassOperand(t, f)
		if err != nil {
			return err
		}
		if err := e.Boot.EnsureInitialized(t.ID, klass); err != nil {
			return err
		}
		f.Push(oop.FromRef(oop.NewInstance(klass)))

	case OpNewarray:
		atype := f.readU8()
		length := f.Pop().I
		if length < 0 {
			return e.throwSimple(t, "java/lang/NegativeArraySizeException", "")
		}
		prim, name, err := primArrayTypeOf(atype)
		if err != nil {
			return err
		}
		klass, err := e.Boot.Require(t.ID, name)
		if err != nil {
			return err
		}
		f.Push(oop.FromRef(oop.NewTypeArray(klass, prim, int(length))))

	case OpAnewarray:
		elem, err := e.resolveClassOperand(t, f)
		if err != nil {
			return err
		}
		length := f.Pop().I
		if length < 0 {
			return e.throwSimple(t, "java/lang/NegativeArraySizeException", "")
		}
		name := "[L" + elem.Name + ";"
		klass, err := e.Boot.Require(t.ID, name)
		if err != nil {
			return err
		}
		f.Push(oop.FromRef(oop.NewObjectArray(klass, int(length))))

	case OpMultianewarray:
		klass, err := e.resolveClassOperand(t, f)
		if err != nil {
			return err
		}
		dims := int(f.readU8())
		counts := make([]int, dims)
		for i := dims - 1; i >= 0; i-- {
			n := f.Pop().I
			if n < 0 {
				return e.throwSimple(t, "java/lang/NegativeArraySizeException", "")
			}
			counts[i] = int(n)
		}
		ref, err := e.newMultiArray(t, klass, counts)
		if err != nil {
			return err
		}
		f.Push(oop.FromRef(ref))

	case OpArraylength:
		v := f.Pop()
		if v.IsNull() {
			return e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		f.Push(oop.Int(int32(arrayLen(v.Ref))))

	case OpAthrow:
		exc := f.Pop()
		if exc.IsNull() {
			return e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		t.SetException(exc)
		return &ThrownException{Exception: exc}

	case OpCheckcast:
		klass, err := e.resolveClassOperand(t, f)
		if err != nil {
			return err
		}
		v := f.Peek()
		if !v.IsNull() && !receiverKlass(v).IsAssignableTo(klass) {
			return e.throwSimple(t, "java/lang/ClassCastException",
				fmt.Sprintf("%s cannot be cast to %s", receiverKlass(v).Name, klass.Name))
		}

	case OpInstanceof:
		klass, err := e.resolveClassOperand(t, f)
		if err != nil {
			return err
		}
		v := f.Pop()
		if v.IsNull() {
			f.Push(oop.Int(0))
		} else if receiverKlass(v).IsAssignableTo(klass) {
			f.Push(oop.Int(1))
		} else {
			f.Push(oop.Int(0))
		}

	case OpMonitorenter:
		v := f.Pop()
		if v.IsNull() {
			return e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		v.Ref.MonitorEnter(t.ID)

	case OpMonitorexit:
		v := f.Pop()
		if v.IsNull() {
			return e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		if !v.Ref.HeldBy(t.ID) {
			return e.throwSimple(t, "java/lang/IllegalMonitorStateException", "")
		}
		v.Ref.MonitorExit(t.ID)

	case OpGetstatic:
		idx := f.readU16()
		field, owner, err := e.resolveFieldref(t, f, idx, true)
		if err != nil {
			return err
		}
		if err := e.Boot.EnsureInitialized(t.ID, owner); err != nil {
			return err
		}
		f.Push(owner.StaticValue(field.Offset))

	case OpPutstatic:
		idx := f.readU16()
		field, owner, err := e.resolveFieldref(t, f, idx, true)
		if err != nil {
			return err
		}
		if err := e.Boot.EnsureInitialized(t.ID, owner); err != nil {
			return err
		}
		owner.SetStaticValue(field.Offset, f.Pop())

	case OpGetfield:
		idx := f.readU16()
		field, _, err := e.resolveFieldref(t, f, idx, false)
		if err != nil {
			return err
		}
		v := f.Pop()
		if v.IsNull() {
			return e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		inst := v.Ref.Data.(*oop.InstanceData)
		f.Push(inst.FieldValues[field.Offset])

	case OpPutfield:
		idx := f.readU16()
		field, _, err := e.resolveFieldref(t, f, idx, false)
		if err != nil {
			return err
		}
		val := f.Pop()
		v := f.Pop()
		if v.IsNull() {
			return e.throwSimple(t, "java/lang/NullPointerException", "")
		}
		inst := v.Ref.Data.(*oop.InstanceData)
		inst.FieldValues[field.Offset] = val
	}
	return nil
}

func primArrayTypeOf(atype byte) (oop.PrimitiveKind, string, error) {
	switch atype {
	case ArrBoolean:
		return oop.PrimBoolean, "[Z", nil
	case ArrChar:
		return oop.PrimChar, "[C", nil
	case ArrFloat:
		return oop.PrimFloat, "[F", nil
	case ArrDouble:
		return oop.PrimDouble, "[D", nil
	case ArrByte:
		return oop.PrimByte, "[B", nil
	case ArrShort:
		return oop.PrimShort, "[S", nil
	case ArrInt:
		return oop.PrimInt, "[I", nil
	case ArrLong:
		return oop.PrimLong, "[J", nil
	default:
		return 0, "", fmt.Errorf("runtime: unknown newarray type code %d", atype)
	}
}

// newMultiArray implements JVMS §6.5's multianewarray: the outermost
// `dims` dimensions are allocated eagerly (ObjectArray of ObjectArray
// of ... of the innermost component), recursing down counts.
func (e *Engine) newMultiArray(t *Thread, arrayKlass *oop.Klass, counts []int) (*oop.Reference, error) {
	length := counts[0]
	if len(counts) == 1 {
		switch arrayKlass.Kind {
		case oop.KindTypeArrayKlass:
			return oop.NewTypeArray(arrayKlass, arrayKlass.TypeArray.Elem, length), nil
		default:
			return oop.NewObjectArray(arrayKlass, length), nil
		}
	}

	ref := oop.NewObjectArray(arrayKlass, length)
	elems := ref.Data.(*oop.ObjectArrayData).Elements
	componentKlass := arrayKlass.ComponentKlass()
	for i := 0; i < length; i++ {
		sub, err := e.newMultiArray(t, componentKlass, counts[1:])
		if err != nil {
			return nil, err
		}
		elems[i] = oop.FromRef(sub)
	}
	return ref, nil
}

func arrayLen(ref *oop.Reference) int {
	switch d := ref.Data.(type) {
	case *oop.ObjectArrayData:
		return len(d.Elements)
	case *oop.TypeArrayData:
		return d.Len()
	default:
		return 0
	}
}

// execArrayLoad handles the eight T-aload opcodes.
func (e *Engine) execArrayLoad(t *Thread, f *Frame, opcode byte) error {
	idx := f.Pop().I
	arr := f.Pop()
	if arr.IsNull() {
		return e.throwSimple(t, "java/lang/NullPointerException", "")
	}
	if idx < 0 || int(idx) >= arrayLen(arr.Ref) {
		return e.throwSimple(t, "java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("%d", idx))
	}
	i := int(idx)
	switch d := arr.Ref.Data.(type) {
	case *oop.ObjectArrayData:
		f.Push(d.Elements[i])
	case *oop.TypeArrayData:
		switch opcode {
		case OpIaload:
			f.Push(oop.Int(d.Ints[i]))
		case OpLaload:
			f.Push(oop.Long(d.Longs[i]))
		case OpFaload:
			f.Push(oop.Float(d.Floats[i]))
		case OpDaload:
			f.Push(oop.Double(d.Doubles[i]))
		case OpBaload:
			if d.Elem == oop.PrimBoolean {
				if d.Bools[i] {
					f.Push(oop.Int(1))
				} else {
					f.Push(oop.Int(0))
				}
			} else {
				f.Push(oop.Int(int32(d.Bytes[i])))
			}
		case OpCaload:
			f.Push(oop.Int(int32(d.Chars[i])))
		case OpSaload:
			f.Push(oop.Int(int32(d.Shorts[i])))
		}
	}
	return nil
}

// execArrayStore handles the eight T-astore opcodes.
func (e *Engine) execArrayStore(t *Thread, f *Frame, opcode byte) error {
	val := f.Pop()
	idx := f.Pop().I
	arr := f.Pop()
	if arr.IsNull() {
		return e.throwSimple(t, "java/lang/NullPointerException", "")
	}
	if idx < 0 || int(idx) >= arrayLen(arr.Ref) {
		return e.throwSimple(t, "java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("%d", idx))
	}
	i := int(idx)
	switch d := arr.Ref.Data.(type) {
	case *oop.ObjectArrayData:
		if !val.IsNull() && !receiverKlass(val).IsAssignableTo(d.Klass.ComponentKlass()) {
			return e.throwSimple(t, "java/lang/ArrayStoreException", receiverKlass(val).Name)
		}
		d.Elements[i] = val
	case *oop.TypeArrayData:
		switch opcode {
		case OpIastore:
			d.Ints[i] = val.I
		case OpLastore:
			d.Longs[i] = val.L
		case OpFastore:
			d.Floats[i] = val.F
		case OpDastore:
			d.Doubles[i] = val.D
		case OpBastore:
			if d.Elem == oop.PrimBoolean {
				d.Bools[i] = val.I != 0
			} else {
				d.Bytes[i] = int8(val.I)
			}
		case OpCastore:
			d.Chars[i] = uint16(val.I)
		case OpSastore:
			d.Shorts[i] = int16(val.I)
		}
	}
	return nil
}

// execTableswitch implements the 4-byte-aligned tableswitch opcode
// (JVMS §6.5).
func (e *Engine) execTableswitch(f *Frame) {
	opcodePC := f.pc - 1
	f.pc += padding(f.pc)
	defaultOff := f.readI32()
	low := f.readI32()
	high := f.readI32()
	key := f.Pop().I

	if key < low || key > high {
		f.pc = opcodePC + int(defaultOff)
		return
	}
	entry := int(key - low)
	f.pc += entry * 4
	off := f.readI32()
	f.pc = opcodePC + int(off)
}

// execLookupswitch implements the 4-byte-aligned lookupswitch opcode.
func (e *Engine) execLookupswitch(f *Frame) {
	opcodePC := f.pc - 1
	f.pc += padding(f.pc)
	defaultOff := f.readI32()
	npairs := f.readI32()
	key := f.Pop().I

	for i := int32(0); i < npairs; i++ {
		match := f.readI32()
		off := f.readI32()
		if match == key {
			f.pc = opcodePC + int(off)
			return
		}
	}
	f.pc = opcodePC + int(defaultOff)
}

// padding returns the number of zero-padding bytes to skip so pc lands
// on a 4-byte boundary relative to the start of the method's code
// array (tableswitch/lookupswitch's alignment rule).
func padding(pc int) int {
	return (4 - pc%4) % 4
}
